package indexer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/governor"
	"github.com/proposalsapp/govindexer/internal/schedule"
	"github.com/proposalsapp/govindexer/internal/store"
)

type fakeRPC struct {
	head       uint64
	logsErr    error
	headerTime int64
}

func (f *fakeRPC) BlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeRPC) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return nil, nil
}

func (f *fakeRPC) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: number, Time: uint64(f.headerTime)}, nil
}

func (f *fakeRPC) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

type fakeStore struct {
	committed []store.WriteSet
}

func (s *fakeStore) Commit(ctx context.Context, indexerID uuid.UUID, ws store.WriteSet) error {
	s.committed = append(s.committed, ws)
	return nil
}

func (s *fakeStore) LoadCursor(ctx context.Context, indexerID uuid.UUID) (store.Cursor, error) {
	return store.Cursor{ID: indexerID}, nil
}

func (s *fakeStore) LoadProposal(ctx context.Context, indexerID uuid.UUID, externalID string) (store.Proposal, error) {
	return store.Proposal{}, gorm.ErrRecordNotFound
}

func newDriver(t *testing.T, rpc *fakeRPC, st *fakeStore, cursor, speed uint64) *Driver {
	t.Helper()
	client := chain.NewClient(rpc, "42161")
	spec, err := governor.NewTreasurySpec(common.Address{1}, "42161")
	require.NoError(t, err)
	idx := Indexer{
		Name:      "treasury",
		ID:        uuid.New(),
		DAOID:     uuid.New(),
		Client:    client,
		Spec:      spec,
		Sched:     schedule.New(cursor, speed, 1, 10_000),
		Timestamp: chain.NewTimestampEstimator(client, 12_200),
		Store:     st,
		Interval:  time.Millisecond,
		Timeout:   time.Second,
	}
	return New(idx, nil)
}

func TestTickIdleWhenCaughtUp(t *testing.T) {
	rpc := &fakeRPC{head: 100}
	st := &fakeStore{}
	d := newDriver(t, rpc, st, 101, 50)
	d.Tick(context.Background())
	require.Empty(t, st.committed)
	require.Equal(t, uint64(101), d.idx.Sched.Cursor())
}

func TestTickCommitsAndAdvancesOnSuccess(t *testing.T) {
	rpc := &fakeRPC{head: 200, headerTime: 1_700_000_000}
	st := &fakeStore{}
	d := newDriver(t, rpc, st, 100, 50)
	d.Tick(context.Background())
	require.Len(t, st.committed, 1)
	require.Equal(t, uint64(150), st.committed[0].NewCursor)
	require.Equal(t, uint64(150), d.idx.Sched.Cursor())
	require.Equal(t, uint64(100), d.idx.Sched.Speed())
}

func TestTickShrinksSpeedOnRangeTooLarge(t *testing.T) {
	rpc := &fakeRPC{head: 200, logsErr: errRangeTooLarge{}}
	st := &fakeStore{}
	d := newDriver(t, rpc, st, 100, 64)
	d.Tick(context.Background())
	require.Empty(t, st.committed)
	require.Equal(t, uint64(100), d.idx.Sched.Cursor())
	require.Equal(t, uint64(32), d.idx.Sched.Speed())
}

type errRangeTooLarge struct{}

func (errRangeTooLarge) Error() string { return "query returned more than 10000 results" }
