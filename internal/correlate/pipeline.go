package correlate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/governor"
	"github.com/proposalsapp/govindexer/internal/store"
)

// electionNumberPattern extracts the Tally election round number embedded
// in a nomination proposal's description, per section 6's derived URL
// format.
var electionNumberPattern = regexp.MustCompile(`Security Council Election #(\d+)`)

// proposalStore is the subset of store.Store the pipeline needs to resolve
// proposals referenced from outside the current window.
type proposalStore interface {
	LoadProposal(ctx context.Context, indexerID uuid.UUID, externalID string) (store.Proposal, error)
}

// Pipeline runs one tick of the event correlation algorithm for a single
// registered indexer.
type Pipeline struct {
	Client     *chain.Client
	Spec       governor.Spec
	Store      proposalStore
	Timestamps *chain.TimestampEstimator
	IndexerID  uuid.UUID
	DAOID      uuid.UUID
}

// live tracks the in-tick choices/scores aggregate for one proposal,
// whether freshly created this tick or loaded from the store because a
// nominee or vote in this window references it.
type live struct {
	choices      []string
	scores       []float64
	scoresTotal  float64
	scoresQuorum float64
	touched      bool
}

func newLiveFromStore(row store.Proposal) (*live, error) {
	l := &live{scoresTotal: row.ScoresTotal, scoresQuorum: row.ScoresQuorum}
	if len(row.Choices) > 0 {
		if err := json.Unmarshal(row.Choices, &l.choices); err != nil {
			return nil, fmt.Errorf("correlate: unmarshal stored choices: %w", err)
		}
	}
	if len(row.Scores) > 0 {
		if err := json.Unmarshal(row.Scores, &l.scores); err != nil {
			return nil, fmt.Errorf("correlate: unmarshal stored scores: %w", err)
		}
	}
	return l, nil
}

func (l *live) indexOf(contender string) int {
	for i, c := range l.choices {
		if c == contender {
			return i
		}
	}
	return -1
}

func (l *live) appendContender(contender string) {
	if l.indexOf(contender) >= 0 {
		return
	}
	l.choices = append(l.choices, contender)
	l.touched = true
}

func (l *live) growScores(n int) {
	for len(l.scores) < n {
		l.scores = append(l.scores, 0.0)
	}
}

func (l *live) addVote(choiceIndex int, power float64) {
	l.growScores(choiceIndex + 1)
	l.scores[choiceIndex] += power
	l.scoresTotal += power
	l.scoresQuorum = maxFloat(l.scores)
	l.touched = true
}

func maxFloat(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

// Run executes the six-step correlation algorithm over [from, to] and
// returns the batch handed to the reconciler (C6).
func (p *Pipeline) Run(ctx context.Context, from, to uint64) (Batch, error) {
	streams, err := fetchStreams(ctx, p.Client, p.Spec, from, to)
	if err != nil {
		return Batch{}, err
	}

	liveByID := make(map[string]*live)
	dbFetched := make(map[string]bool)
	var batch Batch

	// Step 2: build created-proposals.
	for _, ev := range streams.created {
		pw, err := p.buildCreatedProposal(ctx, ev)
		if err != nil {
			return Batch{}, err
		}
		seed := &live{}
		if !p.Spec.Events.HasNominees() {
			seed.choices = governor.StaticChoices()
		}
		liveByID[ev.ProposalID] = seed
		batch.Proposals = append(batch.Proposals, pw)
	}

	// Step 3: build terminal-only proposals.
	for _, ev := range streams.canceled {
		pw, err := p.buildTerminalProposal(ctx, ev.ProposalID, ev.Log.BlockNumber)
		if err != nil {
			return Batch{}, err
		}
		batch.Proposals = append(batch.Proposals, pw)
	}
	for _, ev := range streams.executed {
		pw, err := p.buildTerminalProposal(ctx, ev.ProposalID, ev.Log.BlockNumber)
		if err != nil {
			return Batch{}, err
		}
		batch.Proposals = append(batch.Proposals, pw)
	}

	// Step 4: merge nominees.
	for _, ev := range streams.contenderAdded {
		l, err := p.resolveLive(ctx, liveByID, dbFetched, ev.ProposalID)
		if err != nil {
			return Batch{}, err
		}
		l.appendContender(ev.Contender)
	}

	// Step 5: fold votes.
	for _, ev := range streams.voteCastForContender {
		l, err := p.resolveLive(ctx, liveByID, dbFetched, ev.ProposalID)
		if err != nil {
			return Batch{}, err
		}
		power := chain.WeiToFloatString(ev.Votes)
		idx := l.indexOf(ev.Contender)
		var choice *int
		if idx >= 0 {
			l.addVote(idx, power)
			choice = &idx
		}
		ts, err := p.Timestamps.Estimate(ctx, ev.Log.BlockNumber)
		if err != nil {
			return Batch{}, err
		}
		batch.Votes = append(batch.Votes, store.VoteWrite{
			IndexerID:          p.IndexerID,
			DAOID:              p.DAOID,
			ProposalExternalID: ev.ProposalID,
			VoterAddress:       ev.Voter,
			Choice:             choice,
			VotingPower:        power,
			BlockCreated:       ev.Log.BlockNumber,
			CreatedAt:          ts,
			TxID:               ev.Log.TxHash,
			LogIndex:           ev.Log.LogIndex,
		})
	}

	// Treasury variant: static three-choice support voting, no contender
	// resolution needed.
	for _, ev := range streams.voteCast {
		power := chain.WeiToFloatString(ev.Weight)
		idx := int(ev.Support)
		l, err := p.resolveLive(ctx, liveByID, dbFetched, ev.ProposalID)
		if err != nil {
			return Batch{}, err
		}
		l.addVote(idx, power)
		ts, err := p.Timestamps.Estimate(ctx, ev.Log.BlockNumber)
		if err != nil {
			return Batch{}, err
		}
		batch.Votes = append(batch.Votes, store.VoteWrite{
			IndexerID:          p.IndexerID,
			DAOID:              p.DAOID,
			ProposalExternalID: ev.ProposalID,
			VoterAddress:       ev.Voter,
			Choice:             &idx,
			VotingPower:        power,
			Reason:             ev.Reason,
			BlockCreated:       ev.Log.BlockNumber,
			CreatedAt:          ts,
			TxID:               ev.Log.TxHash,
			LogIndex:           ev.Log.LogIndex,
		})
	}

	// Step 6: assemble batch — emit one aggregate choices/scores update per
	// proposal touched by a nominee or vote event this tick.
	for externalID, l := range liveByID {
		if !l.touched {
			continue
		}
		choicesJSON, err := json.Marshal(l.choices)
		if err != nil {
			return Batch{}, fmt.Errorf("correlate: marshal choices: %w", err)
		}
		scoresJSON, err := json.Marshal(l.scores)
		if err != nil {
			return Batch{}, fmt.Errorf("correlate: marshal scores: %w", err)
		}
		batch.Proposals = append(batch.Proposals, store.ProposalWrite{
			IndexerID:    p.IndexerID,
			DAOID:        p.DAOID,
			ExternalID:   externalID,
			Choices:      store.SetField(choicesJSON),
			Scores:       store.SetField(scoresJSON),
			ScoresTotal:  store.SetField(l.scoresTotal),
			ScoresQuorum: store.SetField(l.scoresQuorum),
		})
	}

	return batch, nil
}

// resolveLive locates the in-memory aggregate for externalID, loading it
// from the store at most once per tick if it wasn't created in this
// window, per the "resolve-or-load" rule shared by steps 4 and 5.
func (p *Pipeline) resolveLive(ctx context.Context, liveByID map[string]*live, dbFetched map[string]bool, externalID string) (*live, error) {
	if l, ok := liveByID[externalID]; ok {
		return l, nil
	}
	if dbFetched[externalID] {
		return nil, fmt.Errorf("%w: %s", chain.ErrDanglingNominee, externalID)
	}
	dbFetched[externalID] = true
	row, err := p.Store.LoadProposal(ctx, p.IndexerID, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", chain.ErrDanglingNominee, externalID)
		}
		return nil, err
	}
	l, err := newLiveFromStore(row)
	if err != nil {
		return nil, err
	}
	liveByID[externalID] = l
	return l, nil
}

func (p *Pipeline) buildCreatedProposal(ctx context.Context, ev chain.ProposalCreated) (store.ProposalWrite, error) {
	proposalID, ok := new(big.Int).SetString(ev.ProposalID, 10)
	if !ok {
		return store.ProposalWrite{}, fmt.Errorf("correlate: bad proposal id %q", ev.ProposalID)
	}

	endBlock := ev.EndBlock
	deadline, err := governor.ProposalDeadline(ctx, p.Client, p.Spec, proposalID, ev.Log.BlockNumber)
	if err != nil {
		return store.ProposalWrite{}, err
	}
	if deadline > endBlock {
		endBlock = deadline
	}

	var quorum float64
	if p.Spec.Events.HasNominees() {
		snapshot, err := governor.ProposalSnapshot(ctx, p.Client, p.Spec, proposalID, ev.Log.BlockNumber)
		if err != nil {
			return store.ProposalWrite{}, err
		}
		quorum, err = governor.Quorum(ctx, p.Client, p.Spec, new(big.Int).SetUint64(snapshot), ev.Log.BlockNumber)
		if err != nil {
			return store.ProposalWrite{}, err
		}
	}

	state, err := governor.State(ctx, p.Client, p.Spec, proposalID, ev.Log.BlockNumber)
	if err != nil {
		return store.ProposalWrite{}, err
	}

	createdAt, err := p.Timestamps.Estimate(ctx, ev.Log.BlockNumber)
	if err != nil {
		return store.ProposalWrite{}, err
	}
	startAt, err := p.Timestamps.Estimate(ctx, ev.StartBlock)
	if err != nil {
		return store.ProposalWrite{}, err
	}
	endAt, err := p.Timestamps.Estimate(ctx, endBlock)
	if err != nil {
		return store.ProposalWrite{}, err
	}

	url := electionURL(ev.Description)
	initialChoices := []string{}
	if !p.Spec.Events.HasNominees() {
		initialChoices = governor.StaticChoices()
	}
	choicesJSON, err := json.Marshal(initialChoices)
	if err != nil {
		return store.ProposalWrite{}, err
	}
	emptyScores, _ := json.Marshal([]float64{})

	return store.ProposalWrite{
		IndexerID:    p.IndexerID,
		DAOID:        p.DAOID,
		ExternalID:   ev.ProposalID,
		Author:       store.SetField(ev.Proposer),
		Name:         store.SetField(ev.Description),
		Body:         store.SetField(ev.Description),
		URL:          store.SetField(url),
		Choices:      store.SetField(choicesJSON),
		Scores:       store.SetField(emptyScores),
		ScoresTotal:  store.SetField(0.0),
		ScoresQuorum: store.SetField(0.0),
		Quorum:       store.SetField(quorum),
		State:        store.SetField(state),
		BlockCreated: store.SetField(ev.Log.BlockNumber),
		CreatedAt:    store.SetField(createdAt),
		StartAt:      store.SetField(startAt),
		EndAt:        store.SetField(endAt),
		TxID:         store.SetField(ev.Log.TxHash),
	}, nil
}

func (p *Pipeline) buildTerminalProposal(ctx context.Context, externalID string, atBlock uint64) (store.ProposalWrite, error) {
	proposalID, ok := new(big.Int).SetString(externalID, 10)
	if !ok {
		return store.ProposalWrite{}, fmt.Errorf("correlate: bad proposal id %q", externalID)
	}
	state, err := governor.State(ctx, p.Client, p.Spec, proposalID, atBlock)
	if err != nil {
		return store.ProposalWrite{}, err
	}
	return store.ProposalWrite{
		IndexerID:  p.IndexerID,
		DAOID:      p.DAOID,
		ExternalID: externalID,
		State:      store.SetField(state),
	}, nil
}

func electionURL(description string) string {
	match := electionNumberPattern.FindStringSubmatch(description)
	if len(match) < 2 {
		return ""
	}
	return fmt.Sprintf("https://www.tally.xyz/gov/arbitrum/council/security-council/election/%s/round-1", match[1])
}
