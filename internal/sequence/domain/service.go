package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Allocation is the outcome of issuing one document number.
type Allocation struct {
	DocumentType  string `json:"document_type"`
	FinancialYear string `json:"financial_year"`
	Sequence      int64  `json:"sequence"`
	Number        string `json:"number"`
}

type Counter struct {
	DocumentType  string `json:"document_type"`
	FinancialYear string `json:"financial_year"`
	Prefix        string `json:"prefix"`
	CurrentNumber int64  `json:"current_number"`
}

type AllocateRequest struct {
	DocumentType string
	DocumentDate time.Time
	ActorID      string
}

type Repository interface {
	EnsureCounter(ctx context.Context, db *gorm.DB, counter *SequenceCounter) error
	Increment(ctx context.Context, db *gorm.DB, documentType, financialYear string, now time.Time) (int64, error)
	Get(ctx context.Context, db *gorm.DB, documentType, financialYear string) (*SequenceCounter, error)
}

type Service interface {
	// Next allocates in its own transaction.
	Next(ctx context.Context, req AllocateRequest) (Allocation, error)
	// NextTx allocates inside tx so the number rolls back with the caller's work.
	// The audit entry is the caller's responsibility via RecordAllocation once tx commits.
	NextTx(ctx context.Context, tx *gorm.DB, req AllocateRequest) (Allocation, error)
	RecordAllocation(ctx context.Context, alloc Allocation, actorID string)
	Current(ctx context.Context, documentType, financialYear string) (Counter, error)
}

var (
	ErrAllocationFailed     = errors.New("allocation_failed")
	ErrInvalidFinancialYear = errors.New("invalid_financial_year")
)
