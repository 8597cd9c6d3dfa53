package judgment

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
	"github.com/kdimtricp/pairjudge/internal/weighting"
)

// memStore is an in-memory stand-in for the database repositories.
type memStore struct {
	mu sync.Mutex

	items       []models.Item
	groups      []models.Group
	memberships map[string][]string
	pairs       map[string][]models.CustomItemPair
	prefs       []models.UserItemPreference
	comparisons []*models.Comparison
	users       map[string]*models.User
	userGroups  map[string][]string

	// reverseLookups makes ItemsByIDs return rows in reverse id order.
	reverseLookups bool
	failWrites     error
}

func newMemStore() *memStore {
	return &memStore{
		memberships: map[string][]string{},
		pairs:       map[string][]models.CustomItemPair{},
		users:       map[string]*models.User{},
		userGroups:  map[string][]string{},
	}
}

func (m *memStore) addGroup(id string, itemIDs ...string) {
	m.groups = append(m.groups, models.Group{ID: id, Name: id, DisplayName: id})
	for _, itemID := range itemIDs {
		if !slices.ContainsFunc(m.items, func(it models.Item) bool { return it.ID == itemID }) {
			m.items = append(m.items, models.Item{ID: itemID, Name: itemID, DisplayName: itemID, ImagePath: itemID + ".png"})
		}
		m.memberships[id] = append(m.memberships[id], itemID)
	}
}

func (m *memStore) addPair(groupID, a, b string, weight float64) {
	m.pairs[groupID] = append(m.pairs[groupID], models.CustomItemPair{GroupID: groupID, Item1ID: a, Item2ID: b, Weight: weight})
}

func (m *memStore) item(id string) (models.Item, bool) {
	for _, it := range m.items {
		if it.ID == id {
			return it, true
		}
	}
	return models.Item{}, false
}

func (m *memStore) ItemsInGroups(_ context.Context, groupIDs []string) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Item
	for _, it := range m.items {
		for _, g := range groupIDs {
			if slices.Contains(m.memberships[g], it.ID) {
				out = append(out, it)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) KnownItemsForUser(_ context.Context, userID string) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []models.Item
	for _, p := range m.prefs {
		if p.UserID != userID || seen[p.ItemID] {
			continue
		}
		seen[p.ItemID] = true
		if p.Known {
			it, _ := m.item(p.ItemID)
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) ItemsByIDs(_ context.Context, ids []string) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Item
	for _, id := range ids {
		if it, ok := m.item(id); ok {
			out = append(out, it)
		}
	}
	if m.reverseLookups {
		slices.Reverse(out)
	}
	return out, nil
}

func (m *memStore) UnclassifiedItems(ctx context.Context, userID string, groupIDs []string) ([]models.Item, error) {
	visible, _ := m.ItemsInGroups(ctx, groupIDs)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Item
	for _, it := range visible {
		if !slices.ContainsFunc(m.prefs, func(p models.UserItemPreference) bool {
			return p.UserID == userID && p.ItemID == it.ID
		}) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) RecordPreference(_ context.Context, pref *models.UserItemPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = append(m.prefs, *pref)
	return nil
}

func (m *memStore) GroupsByIDs(_ context.Context, ids []string) ([]models.Group, error) {
	var out []models.Group
	for _, g := range m.groups {
		if slices.Contains(ids, g.ID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) CustomPairs(_ context.Context, groupIDs []string) ([]models.CustomItemPair, error) {
	var out []models.CustomItemPair
	for _, g := range groupIDs {
		out = append(out, m.pairs[g]...)
	}
	return out, nil
}

func (m *memStore) statsLocked(userID string) database.Stats {
	var s database.Stats
	for _, c := range m.comparisons {
		if c.UserID != userID {
			continue
		}
		if c.Outcome == models.OutcomeSkipped {
			s.Skipped++
		} else {
			s.Compared++
		}
	}
	return s
}

func (m *memStore) Create(_ context.Context, c *models.Comparison) (database.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return database.Stats{}, m.failWrites
	}
	cp := *c
	m.comparisons = append(m.comparisons, &cp)
	return m.statsLocked(c.UserID), nil
}

func (m *memStore) GetForUser(_ context.Context, id, userID string) (*models.Comparison, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.comparisons {
		if c.ID == id && c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) Rejudge(_ context.Context, id, userID string, outcome models.Outcome, selected *string) (*models.Comparison, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	for _, c := range m.comparisons {
		if c.ID == id && c.UserID == userID {
			c.Outcome = outcome
			c.SelectedItemID = selected
			c.UpdatedAt = time.Now().UTC()
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) StatsForUser(_ context.Context, userID string) (database.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked(userID), nil
}

func (m *memStore) ListForUser(_ context.Context, userID string) ([]models.Comparison, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comparison
	for _, c := range m.comparisons {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) GroupIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.userGroups[userID]), nil
}

func (m *memStore) CompletedCycles(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.CompletedCycles == nil {
		return 0, nil
	}
	return *u.CompletedCycles, nil
}

func (m *memStore) IncrementCompletedCycles(_ context.Context, userID string, from int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	current := 0
	if u.CompletedCycles != nil {
		current = *u.CompletedCycles
	}
	if current != from {
		return false, nil
	}
	next := from + 1
	u.CompletedCycles = &next
	return true, nil
}

func (m *memStore) setCycles(userID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = &models.User{ID: userID}
		m.users[userID] = u
	}
	u.CompletedCycles = &n
}

// memUsers adds the user Create on top of memStore, whose Create stores
// comparisons.
type memUsers struct{ *memStore }

func (u memUsers) Create(_ context.Context, user *models.User, groupIDs []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failWrites != nil {
		return u.failWrites
	}
	u.users[user.ID] = user
	u.userGroups[user.ID] = groupIDs
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	judgments  map[string]int
	drawn      map[string]int
	empty      map[string]int
	boundaries int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{judgments: map[string]int{}, drawn: map[string]int{}, empty: map[string]int{}}
}

func (r *countingRecorder) JudgmentSaved(outcome, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.judgments[outcome+"/"+kind]++
}

func (r *countingRecorder) PairDrawn(strategy string, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if empty {
		r.empty[strategy]++
		return
	}
	r.drawn[strategy]++
}

func (r *countingRecorder) CycleBoundary() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boundaries++
}

func newTestPolicy(t *testing.T, mode models.WeightMode, store *memStore) *weighting.Policy {
	t.Helper()
	p, err := weighting.NewPolicy(mode, store)
	if err != nil {
		t.Fatalf("Failed to build policy: %v", err)
	}
	return p
}

func newTestService(t *testing.T, store *memStore, mode models.WeightMode, settings Settings) (*Service, *countingRecorder) {
	t.Helper()
	rec := newCountingRecorder()
	svc := NewService(settings, Deps{
		Catalog:     store,
		Comparisons: store,
		Users:       memUsers{store},
		Policy:      newTestPolicy(t, mode, store),
		Rand:        rand.New(rand.NewSource(42)),
		Metrics:     rec,
		Log:         logger.NewNop(),
	})
	return svc, rec
}

func strPtr(s string) *string { return &s }
