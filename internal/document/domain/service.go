package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateRequest struct {
	DocumentType string
	DocumentDate time.Time
	Attributes   map[string]any
	Lines        []LineInput
	Actor        Actor
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, doc *Document) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Document, error)
	// FindByIDForUpdate takes a row lock where the dialect supports one.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Document, error)
	HasChild(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListByChain(ctx context.Context, db *gorm.DB, chainID snowflake.ID) ([]Document, error)
	// UpdateStatus applies a transition only if the row is still in from and
	// has no child. It reports whether a row was changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
}

type StatusUpdate struct {
	ID              snowflake.ID
	From            string
	To              string
	ApprovedByID    *string
	ApprovalDate    *time.Time
	ApprovalRemarks *string
	UpdatedAt       time.Time
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Document, error)
	GetByID(ctx context.Context, id string) (*Document, error)
	ListRevisions(ctx context.Context, id string) ([]Document, error)
	Latest(ctx context.Context, id string) (*Document, error)
}

var (
	ErrDocumentNotFound       = errors.New("document_not_found")
	ErrInvalidDocumentID      = errors.New("invalid_document_id")
	ErrInvalidActor           = errors.New("invalid_actor")
	ErrInvalidLine            = errors.New("invalid_line")
	ErrNotLatestRevision      = errors.New("not_latest_revision")
	ErrNotAmendable           = errors.New("not_amendable")
	ErrMissingReason          = errors.New("missing_reason")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrMissingRemarks         = errors.New("missing_remarks")
	ErrConcurrentModification = errors.New("concurrent_modification")
)

func ParseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, ErrInvalidDocumentID
	}
	return parsed, nil
}
