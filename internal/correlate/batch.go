// Package correlate implements the event correlation pipeline (C5): the
// algorithmic core that fans out five log queries for a block window,
// reconstructs per-proposal aggregates, resolves contender addresses to
// choice indices, and folds votes into running scores.
package correlate

import "github.com/proposalsapp/govindexer/internal/store"

// Batch is the pipeline's output for one tick: every proposal write
// (created, terminal-only, or nominee/vote aggregate update) and every
// vote row observed in the window. Multiple ProposalWrite entries may
// share an ExternalID; the reconciler (C6) folds them.
type Batch struct {
	Proposals []store.ProposalWrite
	Votes     []store.VoteWrite
}
