package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	"github.com/smallbiznis/pipetrade/internal/observability/logger"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
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
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	registry    *doctype.Registry
	repo        documentdomain.Repository
	sequenceSvc sequencedomain.Service
}

func NewService(p Params) documentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("document.service"),
		genID:       p.GenID,
		clock:       c,
		registry:    p.Registry,
		repo:        p.Repo,
		sequenceSvc: p.SequenceSvc,
	}
}

// Create allocates a number and stores version 0 in one transaction, so a
// failed insert also discards the allocation.
func (s *Service) Create(ctx context.Context, req documentdomain.CreateRequest) (*documentdomain.Document, error) {
	if !req.Actor.Valid() {
		return nil, documentdomain.ErrInvalidActor
	}
	def, err := s.registry.Get(doctype.ParseDocumentType(req.DocumentType))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	documentDate := req.DocumentDate
	if documentDate.IsZero() {
		documentDate = now
	}
	documentDate = s.registry.InCalendar(documentDate)

	id := s.genID.Generate()
	lines, err := documentdomain.NewLines(s.genID, id, req.Lines, now)
	if err != nil {
		return nil, err
	}

	var (
		doc   *documentdomain.Document
		alloc sequencedomain.Allocation
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alloc, err = s.sequenceSvc.NextTx(ctx, tx, sequencedomain.AllocateRequest{
			DocumentType: string(def.Type),
			DocumentDate: documentDate,
			ActorID:      req.Actor.ID,
		})
		if err != nil {
			return err
		}

		doc = &documentdomain.Document{
			ID:            id,
			ChainID:       id,
			DocumentType:  string(def.Type),
			Number:        alloc.Number,
			Version:       0,
			FinancialYear: alloc.FinancialYear,
			Status:        string(def.Lifecycle.Initial),
			Attributes:    datatypes.JSONMap(cleanAttributes(req.Attributes)),
			DocumentDate:  documentDate,
			CreatedByID:   strings.TrimSpace(req.Actor.ID),
			CreatedAt:     now,
			UpdatedAt:     now,
			Lines:         lines,
		}
		if err := s.repo.Insert(ctx, tx, doc); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sequenceSvc.RecordAllocation(ctx, alloc, req.Actor.ID)
	logger.WithDocument(s.log, doc.DocumentType, doc.Number, doc.Version).Info("document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("status", doc.Status),
	)
	return doc, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*documentdomain.Document, error) {
	docID, err := documentdomain.ParseID(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.FindByID(ctx, s.db, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documentdomain.ErrDocumentNotFound
	}
	return doc, nil
}

// ListRevisions returns the whole chain of id, oldest first.
func (s *Service) ListRevisions(ctx context.Context, id string) ([]documentdomain.Document, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByChain(ctx, s.db, doc.ChainID)
}

func (s *Service) Latest(ctx context.Context, id string) (*documentdomain.Document, error) {
	docs, err := s.ListRevisions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, documentdomain.ErrDocumentNotFound
	}
	latest := docs[len(docs)-1]
	return &latest, nil
}

func cleanAttributes(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" || value == nil {
			continue
		}
		out[key] = value
	}
	return out
}
