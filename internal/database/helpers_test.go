package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	dbConfig := Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := NewDB(dbConfig, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return db, cleanup
}

func testConfig() *config.Config {
	return &config.Config{
		Path: "test.yaml",
		Comparison: config.ComparisonConfig{
			WeightConfiguration: "equal",
			Groups: []config.GroupConfig{
				{
					Name:        "fruit",
					DisplayName: "Fruit",
					Items: []config.ItemConfig{
						{Name: "apple", DisplayName: "Apple", ImageName: "apple.png"},
						{Name: "pear", DisplayName: "Pear", ImageName: "pear.png"},
						{Name: "plum", DisplayName: "Plum", ImageName: "plum.png"},
					},
				},
				{
					Name:        "stone",
					DisplayName: "Stone fruit",
					Items: []config.ItemConfig{
						{Name: "plum", DisplayName: "Plum", ImageName: "plum.png"},
						{Name: "cherry", DisplayName: "Cherry", ImageName: "cherry.png"},
					},
				},
			},
		},
	}
}

func seed(t *testing.T, db *DB, cfg *config.Config) {
	t.Helper()
	if err := NewSetup(db, nil).Exec(context.Background(), cfg); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}
}

func groupIDsByName(t *testing.T, db *DB) map[string]string {
	t.Helper()
	groups, err := NewCatalogRepository(db).ListGroups(context.Background())
	if err != nil {
		t.Fatalf("Failed to list groups: %v", err)
	}
	out := map[string]string{}
	for _, g := range groups {
		out[g.Name] = g.ID
	}
	return out
}

func itemIDsByName(t *testing.T, db *DB) map[string]string {
	t.Helper()
	var items []models.Item
	if err := db.GORM().Find(&items).Error; err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	out := map[string]string{}
	for _, it := range items {
		out[it.Name] = it.ID
	}
	return out
}

func createUser(t *testing.T, db *DB, groupIDs ...string) *models.User {
	t.Helper()
	user := models.NewUser(map[string]interface{}{"age": 30}, true)
	if err := NewUserRepository(db).Create(context.Background(), user, groupIDs); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}
