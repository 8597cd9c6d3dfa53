package models

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSelected Outcome = "selected"
	OutcomeTied     Outcome = "tied"
	OutcomeSkipped  Outcome = "skipped"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSelected, OutcomeTied, OutcomeSkipped:
		return true
	}
	return false
}

// Comparison is one judgment of an ordered pair. A rejudge updates the row in
// place; rows are never deleted.
type Comparison struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `gorm:"type:varchar(36);not null;index"`
	Item1ID        string    `gorm:"column:item_1_id;type:varchar(36);not null"`
	Item2ID        string    `gorm:"column:item_2_id;type:varchar(36);not null"`
	SelectedItemID *string   `gorm:"column:selected_item_id;type:varchar(36)"`
	Outcome        Outcome   `gorm:"column:state;type:varchar(20);not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Comparison) TableName() string { return "comparisons" }

func NewComparison(userID, item1ID, item2ID string, outcome Outcome, selectedItemID *string) *Comparison {
	now := time.Now().UTC()
	return &Comparison{
		ID:             uuid.New().String(),
		UserID:         userID,
		Item1ID:        item1ID,
		Item2ID:        item2ID,
		SelectedItemID: selectedItemID,
		Outcome:        outcome,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
