package repository

import (
	"context"
	"time"

	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() sequencedomain.Repository {
	return &repo{}
}

// EnsureCounter lazily creates the counter row. Concurrent callers race on the
// unique key and all but one become no-ops.
func (r *repo) EnsureCounter(ctx context.Context, db *gorm.DB, counter *sequencedomain.SequenceCounter) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(counter).Error
}

// Increment bumps the counter and reads it back on the same handle, so the
// row lock taken by the UPDATE covers the read.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, documentType, financialYear string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sequence_counters
		SET current_number = current_number + 1, updated_at = ?
		WHERE document_type = ? AND financial_year = ?`,
		now,
		documentType,
		financialYear,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var current int64
	if err := db.WithContext(ctx).Raw(
		`SELECT current_number FROM sequence_counters
		WHERE document_type = ? AND financial_year = ?`,
		documentType,
		financialYear,
	).Scan(&current).Error; err != nil {
		return 0, err
	}
	return current, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, documentType, financialYear string) (*sequencedomain.SequenceCounter, error) {
	var counter sequencedomain.SequenceCounter
	err := db.WithContext(ctx).Raw(
		`SELECT document_type, financial_year, prefix, reset_month, current_number, created_at, updated_at
		FROM sequence_counters
		WHERE document_type = ? AND financial_year = ?`,
		documentType,
		financialYear,
	).Scan(&counter).Error
	if err != nil {
		return nil, err
	}
	if counter.DocumentType == "" {
		return nil, nil
	}
	return &counter, nil
}

