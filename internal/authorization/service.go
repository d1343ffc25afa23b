package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/pipetrade/internal/doctype"
)

// Service answers whether any of a set of roles may apply an action to a
// document type while it sits in a given status.
type Service interface {
	Authorize(ctx context.Context, documentType doctype.DocumentType, from doctype.Status, action doctype.Action, roles []doctype.Role) error
	Allowed(documentType doctype.DocumentType, from doctype.Status, action doctype.Action, roles []doctype.Role) bool
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
