package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/metrics"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
	"github.com/kdimtricp/pairjudge/internal/session"
	"github.com/kdimtricp/pairjudge/internal/storage"
	"github.com/kdimtricp/pairjudge/internal/weighting"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image body")

type TestServer struct {
	Server   *httptest.Server
	App      *App
	DB       *database.DB
	Catalog  *database.CatalogRepository
	Metrics  *metrics.Metrics
	GroupIDs map[string]string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	srcDir := filepath.Join(t.TempDir(), "source")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("Failed to create source dir: %v", err)
	}
	for _, name := range []string{"apple.png", "pear.png", "plum.png", "cherry.png"} {
		if err := os.WriteFile(filepath.Join(srcDir, name), pngBytes, 0644); err != nil {
			t.Fatalf("Failed to write image: %v", err)
		}
	}

	return &config.Config{
		Path:   "test.yaml",
		Images: config.ImagesConfig{SourceDirectory: srcDir},
		Behaviour: config.BehaviourConfig{
			AllowTies: true,
			AllowSkip: true,
			AllowBack: true,
		},
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

func setupTestServer(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()
	tempDir := t.TempDir()
	ctx := context.Background()

	images, err := storage.NewLocalStorage(filepath.Join(tempDir, "images"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(tempDir, "test.db"),
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	setup := database.NewSetup(db, images)
	if err := setup.Exec(ctx, cfg); err != nil {
		t.Fatalf("Failed to seed database: %v", err)
	}

	catalog := database.NewCatalogRepository(db)
	policy, err := weighting.FromControl(ctx, setup, catalog)
	if err != nil {
		t.Fatalf("Failed to build weighting policy: %v", err)
	}

	m := metrics.New()
	service := judgment.NewService(judgment.SettingsFromConfig(cfg), judgment.Deps{
		Catalog:     catalog,
		Comparisons: database.NewComparisonRepository(db),
		Users:       database.NewUserRepository(db),
		Policy:      policy,
		Rand:        rand.New(rand.NewSource(7)),
		Metrics:     m,
		Log:         logger.NewNop(),
	})

	sessions := session.NewMemoryStore(time.Hour)
	t.Cleanup(func() { sessions.Close() })

	app := &App{
		Service:      service,
		Sessions:     sessions,
		Items:        catalog,
		Images:       images,
		Log:          logger.NewNop(),
		MaxBodyBytes: 1 << 16,
	}

	server := httptest.NewServer(NewRouter(app, m.Registry))
	t.Cleanup(server.Close)

	groups, err := catalog.ListGroups(ctx)
	if err != nil {
		t.Fatalf("Failed to list groups: %v", err)
	}
	groupIDs := map[string]string{}
	for _, g := range groups {
		groupIDs[g.Name] = g.ID
	}

	return &TestServer{
		Server:   server,
		App:      app,
		DB:       db,
		Catalog:  catalog,
		Metrics:  m,
		GroupIDs: groupIDs,
	}
}

// do sends body as JSON and decodes a JSON response into out when non-nil.
func (ts *TestServer) do(t *testing.T, method, path, token string, body, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (ts *TestServer) register(t *testing.T, groups ...string) string {
	t.Helper()

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, ts.GroupIDs[g])
	}

	var reg registerResponse
	resp := ts.do(t, http.MethodPost, "/register", "", registerRequest{
		Attributes: map[string]interface{}{},
		GroupIDs:   ids,
	}, &reg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201 from register, got %d", resp.StatusCode)
	}
	if reg.Token == "" {
		t.Fatal("Expected a session token")
	}
	return reg.Token
}

func (ts *TestServer) userID(t *testing.T, token string) string {
	t.Helper()
	sess, err := ts.App.Sessions.Get(context.Background(), token)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	return sess.UserID
}

func strPtr(s string) *string { return &s }
