package domain

import (
	"context"

	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
)

type TransitionRequest struct {
	DocumentID string
	Action     string
	Actor      documentdomain.Actor
	Remarks    string
}

// AvailableAction is one transition the actor could apply right now.
type AvailableAction struct {
	Action  doctype.Action             `json:"action"`
	To      doctype.Status             `json:"to"`
	Remarks doctype.RemarksRequirement `json:"remarks"`
}

type Service interface {
	Transition(ctx context.Context, req TransitionRequest) (*documentdomain.Document, error)
	AvailableActions(ctx context.Context, documentID string, actor documentdomain.Actor) ([]AvailableAction, error)
}
