// Package store is the checkpoint store (C3): a transactional, idempotent
// writer for indexer cursors, proposals, and votes backed by
// gorm.io/gorm, following the transaction-scoped locking style of
// services/otc-gateway/server.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store commits tick results for a single indexer atomically.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Commit applies a WriteSet for indexerID: the cursor advance, every
// proposal upsert, and every vote insert happen inside one transaction, or
// none of them do. Matches the contract in section 4.3: cursor advance is
// monotone, proposal columns upsert per-field, votes are insert-only and
// idempotent under replay.
func (s *Store) Commit(ctx context.Context, indexerID uuid.UUID, ws WriteSet) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cursor Cursor
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cursor, "id = ?", indexerID).Error; err != nil {
			return fmt.Errorf("store: load cursor: %w", err)
		}
		if ws.NewCursor <= cursor.CursorBlock {
			return fmt.Errorf("%w: cursor regression: have %d, got %d", ErrConflict, cursor.CursorBlock, ws.NewCursor)
		}

		for _, pw := range ws.Proposals {
			if err := upsertProposal(tx, pw); err != nil {
				return err
			}
		}

		for _, vw := range ws.Votes {
			if err := insertVote(tx, vw); err != nil {
				return err
			}
		}

		cursor.CursorBlock = ws.NewCursor
		if ws.NewSpeed > 0 {
			cursor.Speed = ws.NewSpeed
		}
		if err := tx.Model(&Cursor{}).Where("id = ?", indexerID).
			Updates(map[string]interface{}{
				"cursor_block": cursor.CursorBlock,
				"speed":        cursor.Speed,
			}).Error; err != nil {
			return fmt.Errorf("store: advance cursor: %w", err)
		}
		return nil
	})
}

func upsertProposal(tx *gorm.DB, pw ProposalWrite) error {
	row := Proposal{
		ID:         uuid.New(),
		IndexerID:  pw.IndexerID,
		DAOID:      pw.DAOID,
		ExternalID: pw.ExternalID,
	}
	if pw.Author.Set {
		row.Author = pw.Author.Value
	}
	if pw.Name.Set {
		row.Name = pw.Name.Value
	}
	if pw.Body.Set {
		row.Body = pw.Body.Value
	}
	if pw.URL.Set {
		row.URL = pw.URL.Value
	}
	if pw.Choices.Set {
		row.Choices = pw.Choices.Value
	}
	if pw.Scores.Set {
		row.Scores = pw.Scores.Value
	}
	if pw.ScoresTotal.Set {
		row.ScoresTotal = pw.ScoresTotal.Value
	}
	if pw.ScoresQuorum.Set {
		row.ScoresQuorum = pw.ScoresQuorum.Value
	}
	if pw.Quorum.Set {
		row.Quorum = pw.Quorum.Value
	}
	stateAllowed := true
	if pw.State.Set {
		var err error
		stateAllowed, err = allowStateTransition(tx, pw)
		if err != nil {
			return fmt.Errorf("store: check state transition for %s: %w", pw.ExternalID, err)
		}
		if stateAllowed {
			row.State = pw.State.Value
		}
	}
	if pw.BlockCreated.Set {
		row.BlockCreated = pw.BlockCreated.Value
	}
	if pw.CreatedAt.Set {
		row.CreatedAt = pw.CreatedAt.Value
	}
	if pw.StartAt.Set {
		row.StartAt = pw.StartAt.Value
	}
	if pw.EndAt.Set {
		row.EndAt = pw.EndAt.Value
	}
	if pw.TxID.Set {
		row.TxID = pw.TxID.Value
	}
	if pw.Metadata.Set {
		row.Metadata = pw.Metadata.Value
	}

	setColumns := pw.SetColumns()
	if pw.State.Set && !stateAllowed {
		// ProposalState.CanTransitionTo blocked this write's state (section
		// 3's monotone state invariant: a terminal state never rolls back
		// to a non-terminal one): drop "state" from the update set so the
		// conflict clause leaves the persisted column untouched, the same
		// treatment an Unset field gets.
		filtered := setColumns[:0]
		for _, col := range setColumns {
			if col != "state" {
				filtered = append(filtered, col)
			}
		}
		setColumns = filtered
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "indexer_id"}, {Name: "external_id"}},
	}
	if len(setColumns) == 0 {
		// Nothing to update; still ensure the row exists (e.g. a lone
		// ContenderAdded merge that only touches choices would set at
		// least one column, so this is mainly a defensive no-op path).
		conflict.DoNothing = true
	} else {
		assignments := make(map[string]interface{}, len(setColumns))
		for _, col := range setColumns {
			assignments[col] = gorm.Expr("EXCLUDED." + col)
		}
		conflict.DoUpdates = clause.Assignments(assignments)
	}

	if err := tx.Clauses(conflict).Create(&row).Error; err != nil {
		return fmt.Errorf("store: upsert proposal %s: %w", pw.ExternalID, err)
	}
	return nil
}

// allowStateTransition reports whether pw's proposed state is a legal
// overlay of whatever state is currently persisted for
// (pw.IndexerID, pw.ExternalID), per ProposalState.CanTransitionTo — the
// single source of truth for the monotone state-transition rule. A
// proposal with no persisted row yet has nothing to protect, so any state
// is allowed.
func allowStateTransition(tx *gorm.DB, pw ProposalWrite) (bool, error) {
	var existing Proposal
	err := tx.Select("state").
		Where("indexer_id = ? AND external_id = ?", pw.IndexerID, pw.ExternalID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	return existing.State.CanTransitionTo(pw.State.Value), nil
}

func insertVote(tx *gorm.DB, vw VoteWrite) error {
	row := Vote{
		ID:                 uuid.New(),
		IndexerID:          vw.IndexerID,
		DAOID:              vw.DAOID,
		ProposalExternalID: vw.ProposalExternalID,
		VoterAddress:       vw.VoterAddress,
		Choice:             vw.Choice,
		VotingPower:        vw.VotingPower,
		Reason:             vw.Reason,
		BlockCreated:       vw.BlockCreated,
		CreatedAt:          vw.CreatedAt,
		TxID:               vw.TxID,
		LogIndex:           vw.LogIndex,
	}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: insert vote %s/%d: %w", vw.TxID, vw.LogIndex, err)
	}
	return nil
}

// LoadProposal fetches the current persisted proposal for
// (indexerID, externalID), used by the correlation pipeline to resolve
// contenders and votes that reference a proposal outside the current
// window. Returns gorm.ErrRecordNotFound when absent.
func (s *Store) LoadProposal(ctx context.Context, indexerID uuid.UUID, externalID string) (Proposal, error) {
	var row Proposal
	err := s.db.WithContext(ctx).
		Where("indexer_id = ? AND external_id = ?", indexerID, externalID).
		First(&row).Error
	return row, err
}

// LoadCursor fetches the current cursor row for indexerID.
func (s *Store) LoadCursor(ctx context.Context, indexerID uuid.UUID) (Cursor, error) {
	var row Cursor
	err := s.db.WithContext(ctx).First(&row, "id = ?", indexerID).Error
	return row, err
}
