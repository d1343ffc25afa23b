package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"github.com/smallbiznis/pipetrade/internal/fiscalyear"
	"github.com/smallbiznis/pipetrade/internal/observability/metrics"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"github.com/smallbiznis/pipetrade/internal/sequence/format"
	"github.com/smallbiznis/pipetrade/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// retryDelay spaces the single retry after a key conflict.
const retryDelay = 5 * time.Millisecond

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *doctype.Registry
	Repo     sequencedomain.Repository
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	registry *doctype.Registry
	repo     sequencedomain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) sequencedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sequence.service"),
		clock:    c,
		registry: p.Registry,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Next(ctx context.Context, req sequencedomain.AllocateRequest) (sequencedomain.Allocation, error) {
	var alloc sequencedomain.Allocation
	err := s.retryOnConflict(ctx, req.DocumentType, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			alloc, err = s.allocate(ctx, tx, req)
			return err
		})
	})
	if err != nil {
		return sequencedomain.Allocation{}, err
	}

	s.RecordAllocation(ctx, alloc, req.ActorID)
	return alloc, nil
}

// NextTx runs each attempt under a savepoint so a conflicting attempt does not
// poison the caller's transaction.
func (s *Service) NextTx(ctx context.Context, tx *gorm.DB, req sequencedomain.AllocateRequest) (sequencedomain.Allocation, error) {
	if tx == nil {
		return sequencedomain.Allocation{}, errors.New("sequence: transaction is required")
	}

	var alloc sequencedomain.Allocation
	err := s.retryOnConflict(ctx, req.DocumentType, func() error {
		return tx.Transaction(func(sp *gorm.DB) error {
			var err error
			alloc, err = s.allocate(ctx, sp, req)
			return err
		})
	})
	if err != nil {
		return sequencedomain.Allocation{}, err
	}
	return alloc, nil
}

// RecordAllocation writes the ALLOCATE_NUMBER audit entry. A failure is
// logged and counted but never undoes the allocation.
func (s *Service) RecordAllocation(ctx context.Context, alloc sequencedomain.Allocation, actorID string) {
	s.metrics.RecordNumberAllocated(ctx, alloc.DocumentType, alloc.FinancialYear)
	if s.auditSvc == nil {
		return
	}

	err := s.auditSvc.Append(ctx, auditdomain.Entry{
		EntityType: auditdomain.EntityTypeSequenceCounter,
		EntityID:   alloc.DocumentType + "/" + alloc.FinancialYear,
		EventKind:  auditdomain.EventAllocateNumber,
		ToState:    strconv.FormatInt(alloc.Sequence, 10),
		ActorID:    actorID,
		Metadata: map[string]any{
			"document_type":  alloc.DocumentType,
			"financial_year": alloc.FinancialYear,
			"number":         alloc.Number,
		},
	})
	if err != nil {
		s.metrics.RecordAuditWriteFailure(ctx, string(auditdomain.EventAllocateNumber))
		s.log.Warn("failed to audit number allocation",
			zap.String("document_type", alloc.DocumentType),
			zap.String("number", alloc.Number),
			zap.Error(err),
		)
	}
}

func (s *Service) Current(ctx context.Context, documentType, financialYear string) (sequencedomain.Counter, error) {
	def, err := s.definition(documentType)
	if err != nil {
		return sequencedomain.Counter{}, err
	}
	financialYear = strings.TrimSpace(financialYear)
	if len(financialYear) != 2 {
		return sequencedomain.Counter{}, sequencedomain.ErrInvalidFinancialYear
	}
	if _, err := strconv.Atoi(financialYear); err != nil {
		return sequencedomain.Counter{}, sequencedomain.ErrInvalidFinancialYear
	}

	counter, err := s.repo.Get(ctx, s.db, string(def.Type), financialYear)
	if err != nil {
		return sequencedomain.Counter{}, err
	}
	out := sequencedomain.Counter{
		DocumentType:  string(def.Type),
		FinancialYear: financialYear,
		Prefix:        def.Prefix,
	}
	if counter != nil {
		out.CurrentNumber = counter.CurrentNumber
	}
	return out, nil
}

func (s *Service) allocate(ctx context.Context, tx *gorm.DB, req sequencedomain.AllocateRequest) (sequencedomain.Allocation, error) {
	def, err := s.definition(req.DocumentType)
	if err != nil {
		return sequencedomain.Allocation{}, err
	}

	date := req.DocumentDate
	if date.IsZero() {
		date = s.clock.Now()
	}
	fy, err := fiscalyear.Of(s.registry.InCalendar(date), def.ResetMonth)
	if err != nil {
		return sequencedomain.Allocation{}, err
	}
	label := fy.Label()
	now := s.clock.Now()

	if err := s.repo.EnsureCounter(ctx, tx, &sequencedomain.SequenceCounter{
		DocumentType:  string(def.Type),
		FinancialYear: label,
		Prefix:        def.Prefix,
		ResetMonth:    def.ResetMonth,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return sequencedomain.Allocation{}, fmt.Errorf("ensure counter: %w", err)
	}
	seq, err := s.repo.Increment(ctx, tx, string(def.Type), label, now)
	if err != nil {
		return sequencedomain.Allocation{}, fmt.Errorf("increment counter: %w", err)
	}

	number, err := format.FormatDocumentNumber(def.NumberTemplate, def.Prefix, fy, seq)
	if err != nil {
		return sequencedomain.Allocation{}, err
	}

	return sequencedomain.Allocation{
		DocumentType:  string(def.Type),
		FinancialYear: label,
		Sequence:      seq,
		Number:        number,
	}, nil
}

func (s *Service) definition(documentType string) (doctype.Definition, error) {
	return s.registry.Get(doctype.ParseDocumentType(documentType))
}

// retryOnConflict retries op exactly once when it fails on a unique key.
// Any other error is returned as is.
func (s *Service) retryOnConflict(ctx context.Context, documentType string, op func() error) error {
	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), 1),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if db.IsDuplicateKeyErr(err) {
			s.log.Warn("sequence allocation conflict",
				zap.String("document_type", documentType),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		s.metrics.RecordAllocationFailure(ctx, documentType, "conflict")
		return fmt.Errorf("%w: %v", sequencedomain.ErrAllocationFailed, err)
	}
	return err
}
