package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

type UserRepository struct {
	db  *DB
	log *logger.Logger
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db, log: db.log.With("repo", "UserRepository")}
}

// Create stores the user and its group memberships in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, groupIDs []string) error {
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		for _, gid := range groupIDs {
			if err := tx.Create(&models.UserGroup{UserID: user.ID, GroupID: gid}).Error; err != nil {
				return fmt.Errorf("failed to insert user group: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Debug("registered user", "user_id", user.ID, "groups", len(groupIDs))
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	result := r.db.GORM().WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", result.Error)
	}
	return &user, nil
}

func (r *UserRepository) GroupIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.GORM().WithContext(ctx).
		Model(&models.UserGroup{}).
		Where("user_id = ?", userID).
		Order("id").
		Pluck("group_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	return ids, nil
}

// CompletedCycles returns the user's cycle count. A missing user or a NULL
// count both read as zero.
func (r *UserRepository) CompletedCycles(ctx context.Context, userID string) (int, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if user.CompletedCycles == nil {
		return 0, nil
	}
	return *user.CompletedCycles, nil
}

// IncrementCompletedCycles moves the count from `from` to from+1. It reports
// false when another request already advanced it, so each cycle is counted
// once.
func (r *UserRepository) IncrementCompletedCycles(ctx context.Context, userID string, from int) (bool, error) {
	result := r.db.GORM().WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND COALESCE(completed_cycles, 0) = ?", userID, from).
		Update("completed_cycles", from+1)
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment completed cycles: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
