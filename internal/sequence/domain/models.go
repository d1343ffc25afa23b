package domain

import "time"

// SequenceCounter holds the last number issued for a (document type, financial year) pair.
type SequenceCounter struct {
	DocumentType  string    `gorm:"type:text;primaryKey;uniqueIndex:ux_sequence_counters_type_fy,priority:1" json:"document_type"`
	FinancialYear string    `gorm:"type:text;primaryKey;uniqueIndex:ux_sequence_counters_type_fy,priority:2" json:"financial_year"`
	Prefix        string    `gorm:"type:text;not null" json:"prefix"`
	ResetMonth    int       `gorm:"not null" json:"reset_month"`
	CurrentNumber int64     `gorm:"not null;default:0" json:"current_number"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (SequenceCounter) TableName() string { return "sequence_counters" }
