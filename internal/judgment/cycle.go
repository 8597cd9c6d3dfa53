package judgment

import (
	"context"
	"fmt"

	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

type CycleState string

const (
	InCycle       CycleState = "in_cycle"
	CycleBoundary CycleState = "cycle_boundary"
	Finished      CycleState = "finished"
)

// CycleStatus is the caller-facing view of the pacing state.
type CycleStatus struct {
	State           CycleState `json:"state"`
	CompletedCycles *int       `json:"completed_cycles"`
}

func (c CycleStatus) BoundaryReached() bool { return c.State == CycleBoundary }
func (c CycleStatus) Finished() bool        { return c.State == Finished }

// ProgressStore persists completed cycles per user.
type ProgressStore interface {
	CompletedCycles(ctx context.Context, userID string) (int, error)
	IncrementCompletedCycles(ctx context.Context, userID string, from int) (bool, error)
}

// CycleController interrupts the judgment sequence every cycleLength
// comparisons and stops it after maxCycles.
type CycleController struct {
	enabled   bool
	length    int
	maxCycles int
	store     ProgressStore
	log       *logger.Logger

	onBoundary func()
}

func NewCycleController(enabled bool, length, maxCycles int, store ProgressStore, log *logger.Logger) *CycleController {
	return &CycleController{
		enabled:   enabled,
		length:    length,
		maxCycles: maxCycles,
		store:     store,
		log:       log.With("component", "CycleController"),
	}
}

func (c *CycleController) Enabled() bool { return c.enabled }

// Finished reports whether userID has used up every cycle. It is false when
// cycling is off.
func (c *CycleController) Finished(ctx context.Context, userID string) (bool, int, error) {
	if !c.enabled {
		return false, 0, nil
	}
	completed, err := c.store.CompletedCycles(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return completed >= c.maxCycles, completed, nil
}

// Evaluate advances the state machine for userID given their current totals.
// Crossing a boundary increments the completed count once even when
// concurrent requests observe the same totals.
func (c *CycleController) Evaluate(ctx context.Context, userID string, stats Stats) (CycleStatus, error) {
	if !c.enabled {
		return CycleStatus{State: InCycle}, nil
	}

	finished, completed, err := c.Finished(ctx, userID)
	if err != nil {
		return CycleStatus{}, err
	}
	if finished {
		return CycleStatus{State: Finished, CompletedCycles: &completed}, nil
	}

	if stats.Compared+stats.Skipped < c.length*(completed+1) {
		return CycleStatus{State: InCycle, CompletedCycles: &completed}, nil
	}

	applied, err := c.store.IncrementCompletedCycles(ctx, userID, completed)
	if err != nil {
		return CycleStatus{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	next := completed + 1
	if applied {
		c.log.Info("cycle completed", "user_id", userID, "completed_cycles", next)
		if c.onBoundary != nil {
			c.onBoundary()
		}
	}
	return CycleStatus{State: CycleBoundary, CompletedCycles: &next}, nil
}

// CanContinue reports whether userID may start another cycle. Without
// cycling there is nothing to stop.
func (c *CycleController) CanContinue(ctx context.Context, userID string) (bool, error) {
	finished, _, err := c.Finished(ctx, userID)
	if err != nil {
		return false, err
	}
	return !finished, nil
}
