package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

// ImageImporter copies configured item images into the served image store.
type ImageImporter interface {
	ImportDir(srcDir string, names []string) error
	Clear() error
}

// Setup seeds a deployment from its configuration.
type Setup struct {
	db     *DB
	images ImageImporter
	log    *logger.Logger
}

func NewSetup(db *DB, images ImageImporter) *Setup {
	return &Setup{db: db, images: images, log: db.log.With("service", "Setup")}
}

// IsInitialized reports whether setup has already run against this database.
func (s *Setup) IsInitialized(ctx context.Context) (bool, error) {
	if !s.db.GORM().Migrator().HasTable(&models.WebsiteControl{}) {
		return false, nil
	}
	_, err := s.LatestControl(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// LatestControl returns the authoritative website control row.
func (s *Setup) LatestControl(ctx context.Context) (*models.WebsiteControl, error) {
	var ctl models.WebsiteControl
	result := s.db.GORM().WithContext(ctx).Order("id DESC").First(&ctl)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("website control: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get website control: %w", result.Error)
	}
	return &ctl, nil
}

// Exec wipes all data and seeds groups, items and weights from cfg.
func (s *Setup) Exec(ctx context.Context, cfg *config.Config) error {
	if err := s.resetSchema(ctx, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	if s.images != nil {
		if err := s.images.Clear(); err != nil {
			return fmt.Errorf("failed to clear images: %w", err)
		}
		if cfg.Images.SourceDirectory != "" {
			if err := s.images.ImportDir(cfg.Images.SourceDirectory, imageNames(cfg)); err != nil {
				return fmt.Errorf("failed to import images: %w", err)
			}
		}
	}

	mode := models.WeightMode(cfg.Comparison.WeightConfiguration)
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		for _, g := range cfg.Comparison.Groups {
			if err := s.seedGroup(tx, g, mode); err != nil {
				return err
			}
		}
		return tx.Create(&models.WebsiteControl{
			WeightConfiguration: mode,
			ConfigurationFile:   cfg.Path,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to seed deployment: %w", err)
	}

	s.log.Info("deployment seeded", "groups", len(cfg.Comparison.Groups), "weight_configuration", mode)
	return nil
}

func (s *Setup) resetSchema(ctx context.Context, migrationsPath string) error {
	if s.db.Type() != "postgres" {
		return s.db.RecreateTables()
	}
	if err := s.db.DropTables(); err != nil {
		return err
	}
	if err := s.db.GORM().WithContext(ctx).Exec("DROP TABLE IF EXISTS schema_migrations").Error; err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return s.db.RunMigrations(ctx, migrationsPath)
}

func (s *Setup) seedGroup(tx *gorm.DB, g config.GroupConfig, mode models.WeightMode) error {
	group := models.NewGroup(g.Name, g.DisplayName)
	if err := tx.Create(group).Error; err != nil {
		return fmt.Errorf("failed to insert group %s: %w", g.Name, err)
	}

	byName := make(map[string]string, len(g.Items))
	for _, ic := range g.Items {
		item, err := s.findOrCreateItem(tx, ic)
		if err != nil {
			return err
		}
		byName[ic.Name] = item.ID

		link := models.ItemGroup{ItemID: item.ID, GroupID: group.ID}
		if err := tx.Where(link).FirstOrCreate(&link).Error; err != nil {
			return fmt.Errorf("failed to link item %s to group %s: %w", ic.Name, g.Name, err)
		}
	}

	if mode != models.WeightCustom {
		return nil
	}
	for _, w := range g.Weights {
		pair := models.CustomItemPair{
			GroupID: group.ID,
			Item1ID: byName[w.Item1],
			Item2ID: byName[w.Item2],
			Weight:  w.Weight,
		}
		if err := tx.Create(&pair).Error; err != nil {
			return fmt.Errorf("failed to insert custom pair %s/%s: %w", w.Item1, w.Item2, err)
		}
	}
	return nil
}

// findOrCreateItem reuses an item already seeded by another group.
func (s *Setup) findOrCreateItem(tx *gorm.DB, ic config.ItemConfig) (*models.Item, error) {
	var existing models.Item
	err := tx.Where("name = ? AND display_name = ? AND image_path = ?", ic.Name, ic.DisplayName, ic.ImageName).
		First(&existing).Error
	if err == nil {
		s.log.Info("reusing item", "item", ic.Name)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up item %s: %w", ic.Name, err)
	}

	item := models.NewItem(ic.Name, ic.DisplayName, ic.ImageName)
	if err := tx.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to insert item %s: %w", ic.Name, err)
	}
	return item, nil
}

func imageNames(cfg *config.Config) []string {
	seen := map[string]bool{}
	var names []string
	for _, g := range cfg.Comparison.Groups {
		for _, it := range g.Items {
			if !seen[it.ImageName] {
				seen[it.ImageName] = true
				names = append(names, it.ImageName)
			}
		}
	}
	return names
}
