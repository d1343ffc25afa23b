package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() documentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, doc *documentdomain.Document) error {
	if doc == nil {
		return nil
	}
	tx := db.WithContext(ctx)
	if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
		return err
	}
	if len(doc.Lines) == 0 {
		return nil
	}
	return tx.Create(&doc.Lines).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*documentdomain.Document, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*documentdomain.Document, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*documentdomain.Document, error) {
	var doc documentdomain.Document
	err := stmt.
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no asc")
		}).
		Where("id = ?", id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repo) HasChild(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM documents WHERE parent_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByChain(ctx context.Context, db *gorm.DB, chainID snowflake.ID) ([]documentdomain.Document, error) {
	var docs []documentdomain.Document
	err := db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no asc")
		}).
		Where("chain_id = ?", chainID).
		Order("version asc").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateStatus wraps the child check in a derived table so MySQL accepts a
// subquery on the table being updated.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, update documentdomain.StatusUpdate) (bool, error) {
	const guard = `id = ? AND status = ? AND NOT EXISTS (
			SELECT 1 FROM (SELECT parent_id FROM documents WHERE parent_id = ?) AS children
		)`

	var result *gorm.DB
	if update.ApprovedByID != nil {
		result = db.WithContext(ctx).Exec(
			`UPDATE documents
			SET status = ?, approved_by_id = ?, approval_date = ?, approval_remarks = ?, updated_at = ?
			WHERE `+guard,
			update.To,
			update.ApprovedByID,
			update.ApprovalDate,
			update.ApprovalRemarks,
			update.UpdatedAt,
			update.ID,
			update.From,
			update.ID,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE documents
			SET status = ?, updated_at = ?
			WHERE `+guard,
			update.To,
			update.UpdatedAt,
			update.ID,
			update.From,
			update.ID,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
