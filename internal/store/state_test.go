package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proposalsapp/govindexer/internal/store"
)

func TestProposalStateFromContract(t *testing.T) {
	cases := map[uint8]store.ProposalState{
		0: store.StatePending,
		1: store.StateActive,
		2: store.StateCanceled,
		3: store.StateDefeated,
		4: store.StateSucceeded,
		5: store.StateQueued,
		6: store.StateExpired,
		7: store.StateExecuted,
		8: store.StateUnknown,
	}
	for raw, want := range cases {
		require.Equal(t, want, store.ProposalStateFromContract(raw))
	}
}

func TestCanTransitionToBlocksTerminalRollback(t *testing.T) {
	require.True(t, store.StateActive.CanTransitionTo(store.StateExecuted))
	require.False(t, store.StateExecuted.CanTransitionTo(store.StateActive))
	require.True(t, store.StateExecuted.CanTransitionTo(store.StateExecuted))
	require.False(t, store.StateCanceled.CanTransitionTo(store.StateDefeated))
}

func TestProposalWriteSetColumnsOnlyIncludesSetFields(t *testing.T) {
	pw := store.ProposalWrite{
		State:        store.SetField(store.StateCanceled),
		ScoresTotal:  store.UnsetField[float64](),
		BlockCreated: store.SetField(uint64(100)),
	}
	cols := pw.SetColumns()
	require.ElementsMatch(t, []string{"state", "block_created"}, cols)
}
