package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

type ComparisonRepository struct {
	db  *DB
	log *logger.Logger
}

func NewComparisonRepository(db *DB) *ComparisonRepository {
	return &ComparisonRepository{db: db, log: db.log.With("repo", "ComparisonRepository")}
}

// Stats is the per user judgment tally.
type Stats struct {
	Compared int
	Skipped  int
}

// Create appends a comparison and reads back the user's stats inside the same
// transaction so both observe one snapshot.
func (r *ComparisonRepository) Create(ctx context.Context, c *models.Comparison) (Stats, error) {
	var stats Stats
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("failed to insert comparison: %w", err)
		}
		var err error
		stats, err = statsFor(tx, c.UserID)
		return err
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// GetForUser returns the comparison only when it belongs to userID.
func (r *ComparisonRepository) GetForUser(ctx context.Context, id, userID string) (*models.Comparison, error) {
	var c models.Comparison
	result := r.db.GORM().WithContext(ctx).First(&c, "id = ? AND user_id = ?", id, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("comparison %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get comparison: %w", result.Error)
	}
	return &c, nil
}

// Rejudge overwrites outcome and selected item of an existing comparison.
// The read and the write share a transaction; on Postgres the row is locked
// so concurrent rejudges of the same id serialise, last writer wins.
func (r *ComparisonRepository) Rejudge(ctx context.Context, id, userID string, outcome models.Outcome, selectedItemID *string) (*models.Comparison, error) {
	var updated models.Comparison
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		q := tx
		if r.db.Type() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&updated, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("comparison %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load comparison: %w", err)
		}

		updated.Outcome = outcome
		updated.SelectedItemID = selectedItemID
		updated.UpdatedAt = time.Now().UTC()

		if err := tx.Model(&models.Comparison{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(map[string]interface{}{
				"state":            updated.Outcome,
				"selected_item_id": updated.SelectedItemID,
				"updated_at":       updated.UpdatedAt,
			}).Error; err != nil {
			return fmt.Errorf("failed to update comparison: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *ComparisonRepository) StatsForUser(ctx context.Context, userID string) (Stats, error) {
	return statsFor(r.db.GORM().WithContext(ctx), userID)
}

// ListForUser returns the user's comparisons oldest first.
func (r *ComparisonRepository) ListForUser(ctx context.Context, userID string) ([]models.Comparison, error) {
	var rows []models.Comparison
	if err := r.db.GORM().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list comparisons: %w", err)
	}
	return rows, nil
}

func statsFor(tx *gorm.DB, userID string) (Stats, error) {
	var rows []struct {
		State string
		Count int
	}
	if err := tx.Model(&models.Comparison{}).
		Select("state, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("state").
		Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count comparisons: %w", err)
	}

	var stats Stats
	for _, row := range rows {
		switch models.Outcome(row.State) {
		case models.OutcomeSelected, models.OutcomeTied:
			stats.Compared += row.Count
		case models.OutcomeSkipped:
			stats.Skipped += row.Count
		}
	}
	return stats, nil
}
