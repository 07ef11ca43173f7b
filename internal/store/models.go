package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cursor is the per-indexer checkpoint row: the next unscanned block and
// the adaptive window size, mutated only by the driver after a successful
// commit.
type Cursor struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Variant     string    `gorm:"size:64;index"`
	CursorBlock uint64    `gorm:"not null;default:0"`
	Speed       uint64    `gorm:"not null;default:0"`
	DAOID       uuid.UUID `gorm:"type:uuid;index"`
	Enabled     bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Proposal is the materialized on-chain proposal row, keyed by
// (indexer_id, external_id).
type Proposal struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey"`
	IndexerID    uuid.UUID     `gorm:"type:uuid;uniqueIndex:idx_proposal_indexer_external"`
	DAOID        uuid.UUID     `gorm:"type:uuid;index"`
	ExternalID   string        `gorm:"size:78;uniqueIndex:idx_proposal_indexer_external"`
	Author       string        `gorm:"size:64"`
	Name         string        `gorm:"type:text"`
	Body         string        `gorm:"type:text"`
	URL          string        `gorm:"size:512"`
	Choices      []byte        `gorm:"type:jsonb"`
	Scores       []byte        `gorm:"type:jsonb"`
	ScoresTotal  float64       `gorm:"not null;default:0"`
	ScoresQuorum float64       `gorm:"not null;default:0"`
	Quorum       float64       `gorm:"not null;default:0"`
	State        ProposalState `gorm:"size:32;index"`
	BlockCreated uint64        `gorm:"index"`
	CreatedAt    time.Time
	StartAt      time.Time
	EndAt        time.Time
	TxID         string `gorm:"size:80"`
	Metadata     []byte `gorm:"type:jsonb"`
	UpdatedAt    time.Time
}

// Vote is one VoteCastForContender / VoteCast log, append-only and unique
// by (indexer_id, txid, log_index).
type Vote struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	IndexerID          uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_vote_indexer_tx_log"`
	DAOID              uuid.UUID `gorm:"type:uuid;index"`
	ProposalExternalID string    `gorm:"size:78;index"`
	VoterAddress       string    `gorm:"size:64;index"`
	Choice             *int      `gorm:"index"`
	VotingPower        float64   `gorm:"not null;default:0"`
	Reason             string    `gorm:"type:text"`
	BlockCreated       uint64    `gorm:"index"`
	CreatedAt          time.Time
	TxID               string `gorm:"size:80;uniqueIndex:idx_vote_indexer_tx_log"`
	LogIndex           uint   `gorm:"uniqueIndex:idx_vote_indexer_tx_log"`
}

// AutoMigrate creates/updates the schema for all indexer-owned tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Cursor{},
		&Proposal{},
		&Vote{},
	)
}
