package store

import (
	"time"

	"github.com/google/uuid"
)

// ProposalWrite is the reconciler's output shape for one proposal: the
// owning keys are always known, every other column carries a Field
// discriminator so the store can upsert only the columns a given event
// path actually observed.
type ProposalWrite struct {
	IndexerID  uuid.UUID
	DAOID      uuid.UUID
	ExternalID string

	Author       Field[string]
	Name         Field[string]
	Body         Field[string]
	URL          Field[string]
	Choices      Field[[]byte]
	Scores       Field[[]byte]
	ScoresTotal  Field[float64]
	ScoresQuorum Field[float64]
	Quorum       Field[float64]
	State        Field[ProposalState]
	BlockCreated Field[uint64]
	CreatedAt    Field[time.Time]
	StartAt      Field[time.Time]
	EndAt        Field[time.Time]
	TxID         Field[string]
	Metadata     Field[[]byte]
}

// SetColumns returns the gorm column names this write actually sets, used
// to build the ON CONFLICT DO UPDATE assignment list so unset columns are
// never overwritten.
func (w ProposalWrite) SetColumns() []string {
	var cols []string
	add := func(set bool, name string) {
		if set {
			cols = append(cols, name)
		}
	}
	add(w.Author.Set, "author")
	add(w.Name.Set, "name")
	add(w.Body.Set, "body")
	add(w.URL.Set, "url")
	add(w.Choices.Set, "choices")
	add(w.Scores.Set, "scores")
	add(w.ScoresTotal.Set, "scores_total")
	add(w.ScoresQuorum.Set, "scores_quorum")
	add(w.Quorum.Set, "quorum")
	add(w.State.Set, "state")
	add(w.BlockCreated.Set, "block_created")
	add(w.CreatedAt.Set, "created_at")
	add(w.StartAt.Set, "start_at")
	add(w.EndAt.Set, "end_at")
	add(w.TxID.Set, "tx_id")
	add(w.Metadata.Set, "metadata")
	return cols
}

// VoteWrite is one vote row to insert; votes are never upserted, only
// inserted with a DoNothing conflict policy.
type VoteWrite struct {
	IndexerID          uuid.UUID
	DAOID              uuid.UUID
	ProposalExternalID string
	VoterAddress       string
	Choice             *int
	VotingPower        float64
	Reason             string
	BlockCreated       uint64
	CreatedAt          time.Time
	TxID               string
	LogIndex           uint
}

// WriteSet is the full output of one tick's reconciliation: the proposals
// to upsert and the votes to insert, plus the cursor to advance to.
type WriteSet struct {
	Proposals []ProposalWrite
	Votes     []VoteWrite
	NewCursor uint64
	NewSpeed  uint64
}
