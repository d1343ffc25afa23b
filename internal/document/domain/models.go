package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"gorm.io/datatypes"
)

// Document is one revision in a chain. A row is never rewritten except for
// its status and approval stamps while it is the latest revision.
type Document struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	ChainID         snowflake.ID      `gorm:"not null;index" json:"chain_id"`
	DocumentType    string            `gorm:"type:text;not null;uniqueIndex:ux_documents_type_number_version,priority:1" json:"document_type"`
	Number          string            `gorm:"type:text;not null;uniqueIndex:ux_documents_type_number_version,priority:2" json:"number"`
	Version         int               `gorm:"not null;uniqueIndex:ux_documents_type_number_version,priority:3" json:"version"`
	FinancialYear   string            `gorm:"type:text;not null" json:"financial_year"`
	ParentID        *snowflake.ID     `gorm:"uniqueIndex:ux_documents_parent" json:"parent_id,omitempty"`
	Status          string            `gorm:"type:text;not null;index" json:"status"`
	Attributes      datatypes.JSONMap `json:"attributes,omitempty"`
	DocumentDate    time.Time         `gorm:"not null" json:"document_date"`
	CreatedByID     string            `gorm:"type:text;not null" json:"created_by_id"`
	ApprovedByID    *string           `gorm:"type:text" json:"approved_by_id,omitempty"`
	ApprovalDate    *time.Time        `json:"approval_date,omitempty"`
	ApprovalRemarks *string           `gorm:"type:text" json:"approval_remarks,omitempty"`
	AmendmentReason *string           `gorm:"type:text" json:"amendment_reason,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`

	Lines []DocumentLine `gorm:"foreignKey:DocumentID" json:"lines"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

func (d Document) Type() doctype.DocumentType { return doctype.DocumentType(d.DocumentType) }

func (d Document) CurrentStatus() doctype.Status { return doctype.Status(d.Status) }

// Total sums the line totals.
func (d Document) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

type DocumentLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	DocumentID  snowflake.ID    `gorm:"not null;index" json:"document_id"`
	LineNo      int             `gorm:"not null" json:"line_no"`
	ItemCode    string          `gorm:"type:text" json:"item_code"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"line_total"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (DocumentLine) TableName() string { return "document_lines" }

// LineInput is a line as supplied by a caller; totals are computed.
type LineInput struct {
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l LineInput) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// NewLines validates inputs and materialises them as lines of documentID.
func NewLines(genID *snowflake.Node, documentID snowflake.ID, inputs []LineInput, now time.Time) ([]DocumentLine, error) {
	lines := make([]DocumentLine, 0, len(inputs))
	for i, in := range inputs {
		if !in.Quantity.IsPositive() || in.UnitPrice.IsNegative() {
			return nil, ErrInvalidLine
		}
		lines = append(lines, DocumentLine{
			ID:          genID.Generate(),
			DocumentID:  documentID,
			LineNo:      i + 1,
			ItemCode:    in.ItemCode,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineTotal:   in.Total(),
			CreatedAt:   now,
		})
	}
	return lines, nil
}

// CopyLines duplicates lines under a new document id.
func CopyLines(genID *snowflake.Node, documentID snowflake.ID, src []DocumentLine, now time.Time) []DocumentLine {
	lines := make([]DocumentLine, 0, len(src))
	for _, line := range src {
		line.ID = genID.Generate()
		line.DocumentID = documentID
		line.CreatedAt = now
		lines = append(lines, line)
	}
	return lines
}
