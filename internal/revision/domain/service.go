package domain

import (
	"context"
	"time"

	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
)

// FieldChanges describes how a revision differs from its parent. Zero values
// mean "keep the parent's value".
type FieldChanges struct {
	// Attributes are merged into the parent's; a nil value removes the key.
	Attributes map[string]any
	// Lines, when non-nil, replaces every line of the parent.
	Lines        *[]documentdomain.LineInput
	DocumentDate *time.Time
}

type CreateAmendmentRequest struct {
	OriginalID string
	Changes    FieldChanges
	Reason     string
	Actor      documentdomain.Actor
}

type Service interface {
	CreateAmendment(ctx context.Context, req CreateAmendmentRequest) (*documentdomain.Document, error)
}

// MergeAttributes returns base with changes applied; base is not modified.
func MergeAttributes(base, changes map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(changes))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range changes {
		if value == nil {
			delete(out, key)
			continue
		}
		out[key] = value
	}
	return out
}
