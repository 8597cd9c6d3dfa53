package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

// CatalogRepository is the read side of items, groups and their memberships,
// plus the append-only item preference rows.
type CatalogRepository struct {
	db  *DB
	log *logger.Logger
}

func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db, log: db.log.With("repo", "CatalogRepository")}
}

// ItemsInGroups returns the union of items belonging to any of groupIDs, one
// row per item, in a stable order.
func (r *CatalogRepository) ItemsInGroups(ctx context.Context, groupIDs []string) ([]models.Item, error) {
	var items []models.Item
	if len(groupIDs) == 0 {
		return items, nil
	}

	result := r.db.GORM().WithContext(ctx).
		Where("id IN (?)", r.db.GORM().
			Model(&models.ItemGroup{}).
			Select("item_id").
			Where("group_id IN ?", groupIDs)).
		Order("name, id").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list items for groups: %w", result.Error)
	}
	return items, nil
}

// KnownItemsForUser returns items whose first recorded preference for userID
// marks them as known.
func (r *CatalogRepository) KnownItemsForUser(ctx context.Context, userID string) ([]models.Item, error) {
	var prefs []models.UserItemPreference
	result := r.db.GORM().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&prefs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list item preferences: %w", result.Error)
	}

	seen := make(map[string]bool, len(prefs))
	var known []string
	for _, p := range prefs {
		if seen[p.ItemID] {
			continue
		}
		seen[p.ItemID] = true
		if p.Known {
			known = append(known, p.ItemID)
		}
	}
	return r.ItemsByIDs(ctx, known)
}

// UnclassifiedItems returns items in groupIDs for which userID has no
// preference row at all.
func (r *CatalogRepository) UnclassifiedItems(ctx context.Context, userID string, groupIDs []string) ([]models.Item, error) {
	var items []models.Item
	if len(groupIDs) == 0 {
		return items, nil
	}

	db := r.db.GORM()
	classified := db.Model(&models.UserItemPreference{}).
		Select("1").
		Where("user_item_preferences.item_id = items.id AND user_item_preferences.user_id = ?", userID)

	result := db.WithContext(ctx).
		Where("id IN (?)", db.Model(&models.ItemGroup{}).Select("item_id").Where("group_id IN ?", groupIDs)).
		Where("NOT EXISTS (?)", classified).
		Order("name, id").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unclassified items: %w", result.Error)
	}
	return items, nil
}

func (r *CatalogRepository) RecordPreference(ctx context.Context, pref *models.UserItemPreference) error {
	if err := r.db.GORM().WithContext(ctx).Create(pref).Error; err != nil {
		return fmt.Errorf("failed to insert item preference: %w", err)
	}
	return nil
}

// ItemsByIDs returns the requested items ordered as in ids. Unknown ids are
// dropped.
func (r *CatalogRepository) ItemsByIDs(ctx context.Context, ids []string) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}

	var rows []models.Item
	if err := r.db.GORM().WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	byID := make(map[string]models.Item, len(rows))
	for _, it := range rows {
		byID[it.ID] = it
	}
	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	result := r.db.GORM().WithContext(ctx).First(&item, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", result.Error)
	}
	return &item, nil
}

func (r *CatalogRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.GORM().WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (r *CatalogRepository) GroupsByIDs(ctx context.Context, ids []string) ([]models.Group, error) {
	var groups []models.Group
	if len(ids) == 0 {
		return groups, nil
	}
	if err := r.db.GORM().WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	return groups, nil
}

// CustomPairs returns the weighted pairs registered for groupIDs.
func (r *CatalogRepository) CustomPairs(ctx context.Context, groupIDs []string) ([]models.CustomItemPair, error) {
	var pairs []models.CustomItemPair
	if len(groupIDs) == 0 {
		return pairs, nil
	}
	if err := r.db.GORM().WithContext(ctx).
		Where("group_id IN ?", groupIDs).
		Order("id").
		Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("failed to list custom pairs: %w", err)
	}
	return pairs, nil
}
