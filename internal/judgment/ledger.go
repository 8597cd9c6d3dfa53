package judgment

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

// Action is what the respondent did with a pair.
type Action string

const (
	ActionConfirmed Action = "confirmed"
	ActionSkipped   Action = "skipped"
	ActionRejudged  Action = "rejudged"
)

// Stats are the running totals of a user's comparisons.
type Stats = database.Stats

// ComparisonStore is the persistence the ledger needs.
type ComparisonStore interface {
	ComparisonReader
	Create(ctx context.Context, c *models.Comparison) (database.Stats, error)
	Rejudge(ctx context.Context, id, userID string, outcome models.Outcome, selectedItemID *string) (*models.Comparison, error)
	StatsForUser(ctx context.Context, userID string) (database.Stats, error)
	ListForUser(ctx context.Context, userID string) ([]models.Comparison, error)
}

// DeriveOutcome maps an action and optional selected item to the stored
// outcome. A confirmation without a selection is a tie; a skip never keeps a
// selection.
func DeriveOutcome(action Action, selectedItemID *string) (models.Outcome, *string, error) {
	switch action {
	case ActionConfirmed:
		if selectedItemID == nil || *selectedItemID == "" {
			return models.OutcomeTied, nil, nil
		}
		selected := *selectedItemID
		return models.OutcomeSelected, &selected, nil
	case ActionSkipped:
		return models.OutcomeSkipped, nil, nil
	}
	return "", nil, fmt.Errorf("%w: action %q cannot be recorded", ErrInvalidAction, action)
}

// Ledger records and rejudges comparisons.
type Ledger struct {
	store ComparisonStore
	log   *logger.Logger
}

func NewLedger(store ComparisonStore, log *logger.Logger) *Ledger {
	return &Ledger{store: store, log: log.With("component", "Ledger")}
}

// Record appends a new comparison and returns its id with the user's totals
// read in the same transaction.
func (l *Ledger) Record(ctx context.Context, userID, item1ID, item2ID string, outcome models.Outcome, selectedItemID *string) (string, Stats, error) {
	if item1ID == "" || item2ID == "" || item1ID == item2ID {
		return "", Stats{}, fmt.Errorf("%w: a comparison needs two distinct items", ErrInvalidAction)
	}
	if err := checkSelection(outcome, selectedItemID, item1ID, item2ID); err != nil {
		return "", Stats{}, err
	}

	c := models.NewComparison(userID, item1ID, item2ID, outcome, selectedItemID)
	stats, err := l.store.Create(ctx, c)
	if err != nil {
		l.log.Error("failed to record comparison", "user_id", userID, "error", err)
		return "", Stats{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	l.log.Debug("comparison recorded", "user_id", userID, "comparison_id", c.ID, "outcome", outcome)
	return c.ID, stats, nil
}

// Rejudge overwrites the outcome of one of userID's comparisons in place.
func (l *Ledger) Rejudge(ctx context.Context, comparisonID, userID string, outcome models.Outcome, selectedItemID *string) (*models.Comparison, error) {
	existing, err := l.store.GetForUser(ctx, comparisonID, userID)
	if err != nil {
		return nil, l.lookupError(comparisonID, err)
	}
	if err := checkSelection(outcome, selectedItemID, existing.Item1ID, existing.Item2ID); err != nil {
		return nil, err
	}

	updated, err := l.store.Rejudge(ctx, comparisonID, userID, outcome, selectedItemID)
	if err != nil {
		return nil, l.lookupError(comparisonID, err)
	}

	l.log.Debug("comparison rejudged", "user_id", userID, "comparison_id", comparisonID, "outcome", outcome)
	return updated, nil
}

// Get returns one of userID's comparisons.
func (l *Ledger) Get(ctx context.Context, comparisonID, userID string) (*models.Comparison, error) {
	c, err := l.store.GetForUser(ctx, comparisonID, userID)
	if err != nil {
		return nil, l.lookupError(comparisonID, err)
	}
	return c, nil
}

// Stats returns (compared, skipped) for userID; (0, 0) without rows.
func (l *Ledger) Stats(ctx context.Context, userID string) (Stats, error) {
	stats, err := l.store.StatsForUser(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return stats, nil
}

// History returns the ids of userID's comparisons, oldest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]string, error) {
	rows, err := l.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	ids := make([]string, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (l *Ledger) lookupError(comparisonID string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, comparisonID)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func checkSelection(outcome models.Outcome, selectedItemID *string, item1ID, item2ID string) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidAction, outcome)
	}
	if outcome != models.OutcomeSelected {
		if selectedItemID != nil {
			return fmt.Errorf("%w: outcome %s cannot carry a selected item", ErrInvalidAction, outcome)
		}
		return nil
	}
	if selectedItemID == nil || (*selectedItemID != item1ID && *selectedItemID != item2ID) {
		return fmt.Errorf("%w: selected item must be one of the compared items", ErrInvalidAction)
	}
	return nil
}
