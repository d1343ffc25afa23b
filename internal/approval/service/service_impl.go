package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	approvaldomain "github.com/smallbiznis/pipetrade/internal/approval/domain"
	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	"github.com/smallbiznis/pipetrade/internal/authorization"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	"github.com/smallbiznis/pipetrade/internal/observability/logger"
	"github.com/smallbiznis/pipetrade/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retryDelay = 5 * time.Millisecond

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *doctype.Registry
	Repo     documentdomain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	registry *doctype.Registry
	repo     documentdomain.Repository
	authz    authorization.Service
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) approvaldomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("approval.service"),
		clock:    c,
		registry: p.Registry,
		repo:     p.Repo,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

type applied struct {
	doc  *documentdomain.Document
	from doctype.Status
	rule doctype.Rule
}

// Transition applies one lifecycle action. A lost optimistic race is retried
// once from a fresh read; a second loss is returned to the caller.
func (s *Service) Transition(ctx context.Context, req approvaldomain.TransitionRequest) (*documentdomain.Document, error) {
	if !req.Actor.Valid() {
		return nil, documentdomain.ErrInvalidActor
	}
	docID, err := documentdomain.ParseID(req.DocumentID)
	if err != nil {
		return nil, err
	}
	action := doctype.ParseAction(req.Action)

	var result applied
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), 1),
		ctx,
	)
	err = backoff.Retry(func() error {
		var err error
		result, err = s.apply(ctx, docID, action, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, documentdomain.ErrConcurrentModification) {
			s.metrics.RecordConflict(ctx, "transition")
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, result, req)
	s.metrics.RecordTransition(ctx, result.doc.DocumentType, string(result.rule.Action))
	log := logger.WithDocument(s.log, result.doc.DocumentType, result.doc.Number, result.doc.Version)
	logger.WithActor(log, req.Actor.ID, req.Actor.RoleList()).Info("document transitioned",
		zap.String("document_id", result.doc.ID.String()),
		zap.String("action", string(result.rule.Action)),
		zap.String("from", string(result.from)),
		zap.String("to", result.doc.Status),
	)
	return result.doc, nil
}

func (s *Service) apply(ctx context.Context, docID snowflake.ID, action doctype.Action, req approvaldomain.TransitionRequest) (applied, error) {
	doc, def, err := s.load(ctx, docID)
	if err != nil {
		return applied{}, err
	}

	hasChild, err := s.repo.HasChild(ctx, s.db, doc.ID)
	if err != nil {
		return applied{}, err
	}
	if hasChild {
		return applied{}, documentdomain.ErrNotLatestRevision
	}

	from := doc.CurrentStatus()
	rule, ok := def.Lifecycle.Lookup(from, action)
	if !ok {
		return applied{}, fmt.Errorf("%w: %s from %s", documentdomain.ErrInvalidTransition, action, from)
	}

	if err := s.authz.Authorize(ctx, def.Type, from, action, req.Actor.RolesFor(doc)); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return applied{}, documentdomain.ErrUnauthorized
		}
		return applied{}, err
	}

	remarks := strings.TrimSpace(req.Remarks)
	if rule.Remarks == doctype.RemarksMandatory && remarks == "" {
		return applied{}, documentdomain.ErrMissingRemarks
	}

	now := s.clock.Now()
	update := documentdomain.StatusUpdate{
		ID:        doc.ID,
		From:      string(from),
		To:        string(rule.To),
		UpdatedAt: now,
	}
	// The approval stamp describes the latest approve/reject decision only, so
	// a decision without remarks clears the previous remarks. Earlier remarks
	// stay in the TRANSITION audit entries.
	if rule.Approval {
		approver := strings.TrimSpace(req.Actor.ID)
		update.ApprovedByID = &approver
		update.ApprovalDate = &now
		if remarks != "" {
			update.ApprovalRemarks = &remarks
		}
	}

	changed, err := s.repo.UpdateStatus(ctx, s.db, update)
	if err != nil {
		return applied{}, err
	}
	if !changed {
		return applied{}, documentdomain.ErrConcurrentModification
	}

	doc.Status = update.To
	doc.UpdatedAt = now
	if rule.Approval {
		doc.ApprovedByID = update.ApprovedByID
		doc.ApprovalDate = update.ApprovalDate
		doc.ApprovalRemarks = update.ApprovalRemarks
	}
	return applied{doc: doc, from: from, rule: rule}, nil
}

// AvailableActions lists the transitions actor may apply to the document in
// its current status. Superseded revisions have none.
func (s *Service) AvailableActions(ctx context.Context, documentID string, actor documentdomain.Actor) ([]approvaldomain.AvailableAction, error) {
	if !actor.Valid() {
		return nil, documentdomain.ErrInvalidActor
	}
	docID, err := documentdomain.ParseID(documentID)
	if err != nil {
		return nil, err
	}
	doc, def, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}

	actions := []approvaldomain.AvailableAction{}
	hasChild, err := s.repo.HasChild(ctx, s.db, doc.ID)
	if err != nil {
		return nil, err
	}
	if hasChild {
		return actions, nil
	}

	roles := actor.RolesFor(doc)
	from := doc.CurrentStatus()
	for _, rule := range def.Lifecycle.Rules(from) {
		if !s.authz.Allowed(def.Type, from, rule.Action, roles) {
			continue
		}
		actions = append(actions, approvaldomain.AvailableAction{
			Action:  rule.Action,
			To:      rule.To,
			Remarks: rule.Remarks,
		})
	}
	return actions, nil
}

func (s *Service) load(ctx context.Context, docID snowflake.ID) (*documentdomain.Document, doctype.Definition, error) {
	doc, err := s.repo.FindByID(ctx, s.db, docID)
	if err != nil {
		return nil, doctype.Definition{}, err
	}
	if doc == nil {
		return nil, doctype.Definition{}, documentdomain.ErrDocumentNotFound
	}
	def, err := s.registry.Get(doc.Type())
	if err != nil {
		return nil, doctype.Definition{}, err
	}
	return doc, def, nil
}

func (s *Service) recordTransition(ctx context.Context, result applied, req approvaldomain.TransitionRequest) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Append(ctx, auditdomain.Entry{
		EntityType: auditdomain.EntityTypeDocument,
		EntityID:   result.doc.ID.String(),
		EventKind:  auditdomain.EventTransition,
		FromState:  string(result.from),
		ToState:    result.doc.Status,
		ActorID:    req.Actor.ID,
		Remarks:    req.Remarks,
		Metadata: map[string]any{
			"action":        string(result.rule.Action),
			"document_type": result.doc.DocumentType,
			"number":        result.doc.Number,
			"version":       result.doc.Version,
		},
	})
	if err != nil {
		s.metrics.RecordAuditWriteFailure(ctx, string(auditdomain.EventTransition))
		s.log.Warn("failed to audit transition",
			zap.String("document_id", result.doc.ID.String()),
			zap.String("action", string(result.rule.Action)),
			zap.Error(err),
		)
	}
}
