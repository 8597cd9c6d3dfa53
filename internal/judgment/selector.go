package judgment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/weighting"
)

// Strategy names how a pair was produced.
type Strategy string

const (
	StrategyCustomWeighted Strategy = "custom_weighted"
	StrategyKnownItems     Strategy = "known_items"
	StrategyVisibleItems   Strategy = "visible_items"
	StrategyRejudge        Strategy = "rejudge"
)

// Pair is an ordered pair of items. Both sides are nil when there were not
// enough candidates.
type Pair struct {
	Item1 *models.Item
	Item2 *models.Item
}

func (p Pair) Empty() bool {
	return p.Item1 == nil || p.Item2 == nil
}

// Catalog is the item view the selector draws from.
type Catalog interface {
	ItemsInGroups(ctx context.Context, groupIDs []string) ([]models.Item, error)
	KnownItemsForUser(ctx context.Context, userID string) ([]models.Item, error)
	ItemsByIDs(ctx context.Context, ids []string) ([]models.Item, error)
}

// ComparisonReader looks up a user's stored comparison.
type ComparisonReader interface {
	GetForUser(ctx context.Context, id, userID string) (*models.Comparison, error)
}

// Selector draws the next pair. All draws share one generator so a fixed seed
// reproduces the same sequence.
type Selector struct {
	catalog     Catalog
	comparisons ComparisonReader
	policy      *weighting.Policy

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(catalog Catalog, comparisons ComparisonReader, policy *weighting.Policy, rng *rand.Rand) *Selector {
	return &Selector{
		catalog:     catalog,
		comparisons: comparisons,
		policy:      policy,
		rng:         rng,
	}
}

// Select picks the strategy and draws a pair. A non-empty requestedID always
// takes the rejudge path.
func (s *Selector) Select(ctx context.Context, userID string, state *SessionState, preferenceFiltering bool, requestedID string) (Pair, Strategy, error) {
	if requestedID != "" {
		pair, err := s.Rejudge(ctx, userID, requestedID)
		return pair, StrategyRejudge, err
	}

	if s.policy.Custom() {
		pair, err := s.CustomWeighted(ctx, state.GroupIDs)
		return pair, StrategyCustomWeighted, err
	}

	if preferenceFiltering {
		pair, err := s.KnownItems(ctx, userID)
		return pair, StrategyKnownItems, err
	}

	pair, err := s.VisibleItems(ctx, state.GroupIDs)
	return pair, StrategyVisibleItems, err
}

// CustomWeighted draws one configured pair with probability weight/total.
func (s *Selector) CustomWeighted(ctx context.Context, groupIDs []string) (Pair, error) {
	pairs, err := s.policy.PairsForGroups(ctx, groupIDs)
	if err != nil {
		if errors.Is(err, weighting.ErrNoPairs) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	chosen, ok := s.DrawWeighted(pairs)
	if !ok {
		return Pair{}, nil
	}

	items, err := s.catalog.ItemsByIDs(ctx, []string{chosen.Item1ID, chosen.Item2ID})
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	pair := orderedPair(items, chosen.Item1ID, chosen.Item2ID)
	if pair.Empty() {
		return Pair{}, fmt.Errorf("%w: custom pair references missing items", ErrConfiguration)
	}
	return pair, nil
}

// KnownItems draws two distinct items the user marked as known.
func (s *Selector) KnownItems(ctx context.Context, userID string) (Pair, error) {
	items, err := s.catalog.KnownItemsForUser(ctx, userID)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.uniformPair(items), nil
}

// VisibleItems draws two distinct items from the user's groups.
func (s *Selector) VisibleItems(ctx context.Context, groupIDs []string) (Pair, error) {
	items, err := s.catalog.ItemsInGroups(ctx, groupIDs)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.uniformPair(items), nil
}

// Rejudge returns the items of a stored comparison in their recorded order.
func (s *Selector) Rejudge(ctx context.Context, userID, comparisonID string) (Pair, error) {
	c, err := s.comparisons.GetForUser(ctx, comparisonID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Pair{}, fmt.Errorf("%w: %s", ErrNotFound, comparisonID)
		}
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.PairFor(ctx, c)
}

// PairFor loads the items of c as (item_1, item_2) whatever order the
// catalog returns them in.
func (s *Selector) PairFor(ctx context.Context, c *models.Comparison) (Pair, error) {
	items, err := s.catalog.ItemsByIDs(ctx, []string{c.Item1ID, c.Item2ID})
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	pair := orderedPair(items, c.Item1ID, c.Item2ID)
	if pair.Empty() {
		return Pair{}, fmt.Errorf("%w: comparison %s references missing items", ErrPersistence, c.ID)
	}
	return pair, nil
}

// Pick returns one of items uniformly, or nil when items is empty.
func (s *Selector) Pick(items []models.Item) *models.Item {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	i := s.rng.Intn(len(items))
	s.mu.Unlock()
	return &items[i]
}

func (s *Selector) uniformPair(items []models.Item) Pair {
	items = dedupe(items)
	if len(items) < 2 {
		return Pair{}
	}
	i, j := s.distinctIndexes(len(items))
	return Pair{Item1: &items[i], Item2: &items[j]}
}

// distinctIndexes draws two different indexes in [0, n) without replacement.
func (s *Selector) distinctIndexes(n int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.rng.Intn(n)
	j := s.rng.Intn(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

// DrawWeighted picks one pair with probability weight/total. It reports
// false when there is no pair with a positive weight.
func (s *Selector) DrawWeighted(pairs []weighting.Pair) (weighting.Pair, bool) {
	weights := make([]float64, len(pairs))
	for i, p := range pairs {
		weights[i] = p.Weight
	}
	idx, ok := s.weightedIndex(weights)
	if !ok {
		return weighting.Pair{}, false
	}
	return pairs[idx], true
}

// weightedIndex returns i with probability weights[i]/sum(weights). It
// reports false when there is nothing to draw.
func (s *Selector) weightedIndex(weights []float64) (int, bool) {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0, false
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if r < w {
			return i, true
		}
		r -= w
	}
	// Float rounding can leave r marginally above the last weight.
	return last, true
}

func orderedPair(items []models.Item, item1ID, item2ID string) Pair {
	var pair Pair
	for i := range items {
		switch items[i].ID {
		case item1ID:
			pair.Item1 = &items[i]
		case item2ID:
			pair.Item2 = &items[i]
		}
	}
	return pair
}

func dedupe(items []models.Item) []models.Item {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}
