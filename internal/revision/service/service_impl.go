package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	"github.com/smallbiznis/pipetrade/internal/observability/logger"
	"github.com/smallbiznis/pipetrade/internal/observability/metrics"
	revisiondomain "github.com/smallbiznis/pipetrade/internal/revision/domain"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"github.com/smallbiznis/pipetrade/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Registry    *doctype.Registry
	Repo        documentdomain.Repository
	SequenceSvc sequencedomain.Service
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	registry    *doctype.Registry
	repo        documentdomain.Repository
	sequenceSvc sequencedomain.Service
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) revisiondomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("revision.service"),
		genID:       p.GenID,
		clock:       c,
		registry:    p.Registry,
		repo:        p.Repo,
		sequenceSvc: p.SequenceSvc,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// CreateAmendment inserts version n+1 of a document as a new row. The
// original row is only read.
func (s *Service) CreateAmendment(ctx context.Context, req revisiondomain.CreateAmendmentRequest) (*documentdomain.Document, error) {
	if !req.Actor.Valid() {
		return nil, documentdomain.ErrInvalidActor
	}
	originalID, err := documentdomain.ParseID(req.OriginalID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)

	var (
		original  *documentdomain.Document
		revision  *documentdomain.Document
		alloc     sequencedomain.Allocation
		allocated bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err = s.repo.FindByIDForUpdate(ctx, tx, originalID)
		if err != nil {
			return err
		}
		if original == nil {
			return documentdomain.ErrDocumentNotFound
		}
		if reason == "" {
			return documentdomain.ErrMissingReason
		}

		hasChild, err := s.repo.HasChild(ctx, tx, original.ID)
		if err != nil {
			return err
		}
		if hasChild {
			return documentdomain.ErrNotLatestRevision
		}

		def, err := s.registry.Get(original.Type())
		if err != nil {
			return err
		}
		if !def.Lifecycle.IsAmendable(original.CurrentStatus()) {
			return fmt.Errorf("%w: status %s", documentdomain.ErrNotAmendable, original.Status)
		}

		now := s.clock.Now()
		id := s.genID.Generate()

		documentDate := original.DocumentDate
		if req.Changes.DocumentDate != nil && !req.Changes.DocumentDate.IsZero() {
			documentDate = *req.Changes.DocumentDate
		}
		documentDate = s.registry.InCalendar(documentDate)

		var lines []documentdomain.DocumentLine
		if req.Changes.Lines != nil {
			lines, err = documentdomain.NewLines(s.genID, id, *req.Changes.Lines, now)
			if err != nil {
				return err
			}
		} else {
			lines = documentdomain.CopyLines(s.genID, id, original.Lines, now)
		}

		number := original.Number
		financialYear := original.FinancialYear
		if def.Policy == doctype.NumberPerRevision {
			alloc, err = s.sequenceSvc.NextTx(ctx, tx, sequencedomain.AllocateRequest{
				DocumentType: string(def.Type),
				DocumentDate: documentDate,
				ActorID:      req.Actor.ID,
			})
			if err != nil {
				return err
			}
			allocated = true
			number = alloc.Number
			financialYear = alloc.FinancialYear
		}

		parentID := original.ID
		revision = &documentdomain.Document{
			ID:              id,
			ChainID:         original.ChainID,
			DocumentType:    original.DocumentType,
			Number:          number,
			Version:         original.Version + 1,
			FinancialYear:   financialYear,
			ParentID:        &parentID,
			Status:          string(def.Lifecycle.RevisionEntry),
			Attributes:      datatypes.JSONMap(revisiondomain.MergeAttributes(original.Attributes, req.Changes.Attributes)),
			DocumentDate:    documentDate,
			CreatedByID:     strings.TrimSpace(req.Actor.ID),
			AmendmentReason: &reason,
			CreatedAt:       now,
			UpdatedAt:       now,
			Lines:           lines,
		}
		if err := s.repo.Insert(ctx, tx, revision); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return documentdomain.ErrNotLatestRevision
			}
			return fmt.Errorf("insert revision: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, documentdomain.ErrNotLatestRevision) {
			s.metrics.RecordConflict(ctx, "amend")
		}
		return nil, err
	}

	if allocated {
		s.sequenceSvc.RecordAllocation(ctx, alloc, req.Actor.ID)
	}
	s.recordAmendment(ctx, original, revision, req.Actor.ID)
	s.metrics.RecordAmendment(ctx, revision.DocumentType)

	log := logger.WithDocument(s.log, revision.DocumentType, revision.Number, revision.Version)
	logger.WithActor(log, req.Actor.ID, req.Actor.RoleList()).Info("revision created",
		zap.String("document_id", revision.ID.String()),
		zap.String("parent_id", original.ID.String()),
	)
	return revision, nil
}

func (s *Service) recordAmendment(ctx context.Context, original, revision *documentdomain.Document, actorID string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Append(ctx, auditdomain.Entry{
		EntityType: auditdomain.EntityTypeDocument,
		EntityID:   revision.ID.String(),
		EventKind:  auditdomain.EventAmend,
		FromState:  original.Status,
		ToState:    revision.Status,
		ActorID:    actorID,
		Remarks:    *revision.AmendmentReason,
		Metadata: map[string]any{
			"document_type":   revision.DocumentType,
			"number":          revision.Number,
			"previous_number": original.Number,
			"version":         revision.Version,
			"parent_id":       original.ID.String(),
			"chain_id":        revision.ChainID.String(),
		},
	})
	if err != nil {
		s.metrics.RecordAuditWriteFailure(ctx, string(auditdomain.EventAmend))
		s.log.Warn("failed to audit amendment",
			zap.String("document_id", revision.ID.String()),
			zap.String("parent_id", original.ID.String()),
			zap.Error(err),
		)
	}
}
