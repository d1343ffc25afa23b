// Package domain contains the append-only audit trail model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventKind string

const (
	EventAllocateNumber EventKind = "ALLOCATE_NUMBER"
	EventTransition     EventKind = "TRANSITION"
	EventAmend          EventKind = "AMEND"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventAllocateNumber, EventTransition, EventAmend:
		return true
	default:
		return false
	}
}

const (
	EntityTypeDocument        = "document"
	EntityTypeSequenceCounter = "sequence_counter"
)

// AuditLog is never updated or deleted.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	EntityType string            `gorm:"type:text;not null;index:ix_audit_logs_entity,priority:1" json:"entity_type"`
	EntityID   string            `gorm:"type:text;not null;index:ix_audit_logs_entity,priority:2" json:"entity_id"`
	EventKind  EventKind         `gorm:"type:text;not null;index" json:"event_kind"`
	FromState  *string           `gorm:"type:text" json:"from_state,omitempty"`
	ToState    *string           `gorm:"type:text" json:"to_state,omitempty"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Remarks    *string           `gorm:"type:text" json:"remarks,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamp  time.Time         `gorm:"not null;index" json:"timestamp"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	Timestamp time.Time
}

type ListFilter struct {
	EntityType string
	EntityID   string
	EventKind  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

// Repository deliberately exposes no update or delete.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
