package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pipetrade/pkg/db/pagination"
)

// Entry is what the engine hands to the recorder.
type Entry struct {
	EntityType string
	EntityID   string
	EventKind  EventKind
	FromState  string
	ToState    string
	ActorID    string
	Remarks    string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	EntityType string
	EntityID   string
	EventKind  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidEventKind = errors.New("invalid_event_kind")
	ErrInvalidEntity    = errors.New("invalid_entity")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
