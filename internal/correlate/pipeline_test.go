package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/governor"
	"github.com/proposalsapp/govindexer/internal/store"
)

// fakeRPC answers FilterLogs from a fixed, pre-built log set filtered by
// topic0 and block range, and answers CallContract by looking up a
// per-(method, first-arg) canned response, mirroring the real view-call
// shape (selector + positional args) without a live node.
type fakeRPC struct {
	viewABI   gethabi.ABI
	logs      []gethtypes.Log
	head      uint64
	responses map[string][]byte
}

func (f *fakeRPC) BlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeRPC) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	topic := q.Topics[0][0]
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	var out []gethtypes.Log
	for _, l := range f.logs {
		if len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRPC) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: number, Time: uint64(1_700_000_000 + number.Uint64())}, nil
}

func (f *fakeRPC) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := f.viewABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	arg, _ := args[0].(*big.Int)
	key := viewCallKey(method.Name, arg)
	resp, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("fakeRPC: no canned response for %s", key)
	}
	return resp, nil
}

func viewCallKey(method string, arg *big.Int) string {
	return method + ":" + arg.String()
}

// fakeProposalStore answers LoadProposal from a seeded row map, returning
// gorm.ErrRecordNotFound for anything unseeded, exactly as store.Store does
// for a proposal the database has never seen.
type fakeProposalStore struct {
	rows map[string]store.Proposal
}

func (s *fakeProposalStore) LoadProposal(ctx context.Context, indexerID uuid.UUID, externalID string) (store.Proposal, error) {
	if row, ok := s.rows[externalID]; ok {
		return row, nil
	}
	return store.Proposal{}, gorm.ErrRecordNotFound
}

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), big.NewInt(1_000_000_000_000_000_000))
}

func buildProposalCreatedLog(t *testing.T, es chain.EventSpec, contractAddr common.Address, proposalID int64, proposer common.Address, startBlock, endBlock uint64, description string, blockNumber uint64, logIndex uint) gethtypes.Log {
	t.Helper()
	data, err := es.ABI.Inputs.NonIndexed().Pack(
		big.NewInt(proposalID), proposer,
		[]common.Address{}, []*big.Int{}, []string{}, [][]byte{},
		new(big.Int).SetUint64(startBlock), new(big.Int).SetUint64(endBlock), description,
	)
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{es.Topic0()},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      common.BigToHash(big.NewInt(int64(blockNumber))),
		Index:       logIndex,
	}
}

func buildContenderAddedLog(es chain.EventSpec, contractAddr common.Address, proposalID int64, contender common.Address, blockNumber uint64, logIndex uint) gethtypes.Log {
	return gethtypes.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{es.Topic0(), common.BigToHash(big.NewInt(proposalID)), common.BytesToHash(contender.Bytes())},
		BlockNumber: blockNumber,
		TxHash:      common.BigToHash(big.NewInt(int64(blockNumber))),
		Index:       logIndex,
	}
}

func buildVoteCastForContenderLog(t *testing.T, es chain.EventSpec, contractAddr common.Address, proposalID int64, voter, contender common.Address, voteTokens int64, blockNumber uint64, logIndex uint) gethtypes.Log {
	t.Helper()
	v := wei(voteTokens)
	data, err := es.ABI.Inputs.NonIndexed().Pack(v, v, v) // votes, totalUsedVotes, usableVotes
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{es.Topic0(), common.BigToHash(big.NewInt(proposalID)), common.BytesToHash(voter.Bytes()), common.BytesToHash(contender.Bytes())},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      common.BigToHash(big.NewInt(int64(blockNumber))),
		Index:       logIndex,
	}
}

func findProposalWrite(t *testing.T, proposals []store.ProposalWrite, predicate func(store.ProposalWrite) bool) store.ProposalWrite {
	t.Helper()
	for _, p := range proposals {
		if predicate(p) {
			return p
		}
	}
	t.Fatalf("no matching proposal write found among %d", len(proposals))
	return store.ProposalWrite{}
}

// TestPipelineRunCorrelatesNominationWindow exercises all six steps of the
// correlation algorithm in one window: a proposal is created, two
// contenders register, one vote lands on a known contender and a second
// references a contender the window never saw register (recorded
// untallied, not a dangling-nominee error, since the proposal itself is
// resolvable).
func TestPipelineRunCorrelatesNominationWindow(t *testing.T) {
	contractAddr := common.Address{0xEE}
	spec, err := governor.NewNominationSpec(contractAddr, "42161")
	require.NoError(t, err)

	proposer := common.Address{0xCC}
	contender1 := common.Address{0x11}
	contender2 := common.Address{0x22}
	contender3 := common.Address{0x33} // never added, referenced only by a vote
	voterA := common.Address{0xAA}
	voterB := common.Address{0xBB}

	created := spec.Events.ProposalCreated
	contenderAdded := *spec.Events.ContenderAdded
	voteCastForContender := *spec.Events.VoteCastForContender

	logs := []gethtypes.Log{
		buildProposalCreatedLog(t, created, contractAddr, 42, proposer, 100, 200, "Security Council Election #7", 100, 0),
		buildContenderAddedLog(contenderAdded, contractAddr, 42, contender1, 110, 0),
		buildContenderAddedLog(contenderAdded, contractAddr, 42, contender2, 115, 0),
		buildVoteCastForContenderLog(t, voteCastForContender, contractAddr, 42, voterA, contender1, 10, 120, 0),
		buildVoteCastForContenderLog(t, voteCastForContender, contractAddr, 42, voterB, contender3, 5, 121, 0),
	}

	deadlineOut, err := spec.ViewABI.Methods["proposalDeadline"].Outputs.Pack(big.NewInt(200))
	require.NoError(t, err)
	snapshotOut, err := spec.ViewABI.Methods["proposalSnapshot"].Outputs.Pack(big.NewInt(100))
	require.NoError(t, err)
	quorumOut, err := spec.ViewABI.Methods["quorum"].Outputs.Pack(wei(50))
	require.NoError(t, err)
	stateOut, err := spec.ViewABI.Methods["state"].Outputs.Pack(uint8(1)) // Active
	require.NoError(t, err)

	rpc := &fakeRPC{
		viewABI: spec.ViewABI,
		logs:    logs,
		head:    1_000,
		responses: map[string][]byte{
			viewCallKey("proposalDeadline", big.NewInt(42)): deadlineOut,
			viewCallKey("proposalSnapshot", big.NewInt(42)): snapshotOut,
			viewCallKey("quorum", big.NewInt(100)):          quorumOut,
			viewCallKey("state", big.NewInt(42)):             stateOut,
		},
	}
	client := chain.NewClient(rpc, "42161")

	pipeline := &Pipeline{
		Client:     client,
		Spec:       spec,
		Store:      &fakeProposalStore{},
		Timestamps: chain.NewTimestampEstimator(client, 12_000),
		IndexerID:  uuid.New(),
		DAOID:      uuid.New(),
	}

	batch, err := pipeline.Run(context.Background(), 100, 121)
	require.NoError(t, err)

	require.Len(t, batch.Proposals, 2)
	creation := findProposalWrite(t, batch.Proposals, func(p store.ProposalWrite) bool { return p.Author.Set })
	require.Equal(t, "42", creation.ExternalID)
	require.Equal(t, lowerHex(proposer), creation.Author.Value)
	require.Equal(t, store.StateActive, creation.State.Value)
	require.Equal(t, 50.0, creation.Quorum.Value)

	aggregate := findProposalWrite(t, batch.Proposals, func(p store.ProposalWrite) bool { return p.Choices.Set && !p.Author.Set })
	var choices []string
	require.NoError(t, json.Unmarshal(aggregate.Choices.Value, &choices))
	require.Equal(t, []string{lowerHex(contender1), lowerHex(contender2)}, choices)
	var scores []float64
	require.NoError(t, json.Unmarshal(aggregate.Scores.Value, &scores))
	require.Equal(t, []float64{10.0}, scores)
	require.Equal(t, 10.0, aggregate.ScoresTotal.Value)
	require.Equal(t, 10.0, aggregate.ScoresQuorum.Value)

	require.Len(t, batch.Votes, 2)
	require.NotNil(t, batch.Votes[0].Choice)
	require.Equal(t, 0, *batch.Votes[0].Choice)
	require.Nil(t, batch.Votes[1].Choice, "vote for a contender the window never saw register is recorded untallied")
}

// TestPipelineRunReturnsDanglingNomineeForUnresolvedProposal covers the
// case where a nominee event references a proposal the pipeline can
// neither find in this window nor load from the store.
func TestPipelineRunReturnsDanglingNomineeForUnresolvedProposal(t *testing.T) {
	contractAddr := common.Address{0xEE}
	spec, err := governor.NewNominationSpec(contractAddr, "42161")
	require.NoError(t, err)

	contenderAdded := *spec.Events.ContenderAdded
	logs := []gethtypes.Log{
		buildContenderAddedLog(contenderAdded, contractAddr, 99, common.Address{0x44}, 130, 0),
	}
	rpc := &fakeRPC{viewABI: spec.ViewABI, logs: logs, head: 1_000, responses: map[string][]byte{}}
	client := chain.NewClient(rpc, "42161")

	pipeline := &Pipeline{
		Client:     client,
		Spec:       spec,
		Store:      &fakeProposalStore{},
		Timestamps: chain.NewTimestampEstimator(client, 12_000),
		IndexerID:  uuid.New(),
		DAOID:      uuid.New(),
	}

	_, err = pipeline.Run(context.Background(), 130, 130)
	require.ErrorIs(t, err, chain.ErrDanglingNominee)
}

// TestPipelineRunFoldsVoteOntoProposalLoadedFromStore covers the
// cross-window case: the proposal was created in an earlier tick, so this
// window's vote must resolve it via Store.LoadProposal and fold onto the
// previously persisted scores rather than starting from zero.
func TestPipelineRunFoldsVoteOntoProposalLoadedFromStore(t *testing.T) {
	contractAddr := common.Address{0xEE}
	spec, err := governor.NewNominationSpec(contractAddr, "42161")
	require.NoError(t, err)

	contender := common.Address{0x11}
	voter := common.Address{0xAA}
	voteCastForContender := *spec.Events.VoteCastForContender

	logs := []gethtypes.Log{
		buildVoteCastForContenderLog(t, voteCastForContender, contractAddr, 7, voter, contender, 15, 140, 0),
	}

	existingChoices, err := json.Marshal([]string{lowerHex(contender)})
	require.NoError(t, err)
	existingScores, err := json.Marshal([]float64{5})
	require.NoError(t, err)

	fakeStore := &fakeProposalStore{
		rows: map[string]store.Proposal{
			"7": {
				ExternalID:   "7",
				Choices:      existingChoices,
				Scores:       existingScores,
				ScoresTotal:  5,
				ScoresQuorum: 5,
			},
		},
	}

	rpc := &fakeRPC{viewABI: spec.ViewABI, logs: logs, head: 1_000, responses: map[string][]byte{}}
	client := chain.NewClient(rpc, "42161")

	pipeline := &Pipeline{
		Client:     client,
		Spec:       spec,
		Store:      fakeStore,
		Timestamps: chain.NewTimestampEstimator(client, 12_000),
		IndexerID:  uuid.New(),
		DAOID:      uuid.New(),
	}

	batch, err := pipeline.Run(context.Background(), 140, 140)
	require.NoError(t, err)
	require.Len(t, batch.Proposals, 1)

	pw := batch.Proposals[0]
	require.Equal(t, "7", pw.ExternalID)
	require.True(t, pw.ScoresTotal.Set)
	require.Equal(t, 20.0, pw.ScoresTotal.Value)
	require.Equal(t, 20.0, pw.ScoresQuorum.Value)

	require.Len(t, batch.Votes, 1)
	require.NotNil(t, batch.Votes[0].Choice)
	require.Equal(t, 0, *batch.Votes[0].Choice)
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
