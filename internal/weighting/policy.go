// Package weighting resolves how item pairs are weighted for a deployment.
package weighting

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/pairjudge/internal/models"
)

var (
	// ErrNoPairs means custom weighting is active but a group has no registered pairs.
	ErrNoPairs = errors.New("weighting: no custom pairs registered for group")
	// ErrUnknownMode is returned for a weight mode other than equal or custom.
	ErrUnknownMode = errors.New("weighting: unknown weight mode")
)

// Pair is one weighted candidate pair. Item order is the order it was
// configured in.
type Pair struct {
	Item1ID string
	Item2ID string
	Weight  float64
}

// PairSource supplies the stored custom pairs.
type PairSource interface {
	CustomPairs(ctx context.Context, groupIDs []string) ([]models.CustomItemPair, error)
}

// ControlSource supplies the mode recorded at setup.
type ControlSource interface {
	LatestControl(ctx context.Context) (*models.WebsiteControl, error)
}

// Policy is the deployment-wide weighting mode plus the per-group pair
// table. It is immutable once built.
type Policy struct {
	mode   models.WeightMode
	source PairSource
}

func NewPolicy(mode models.WeightMode, source PairSource) (*Policy, error) {
	switch mode {
	case models.WeightEqual, models.WeightCustom:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if mode == models.WeightCustom && source == nil {
		return nil, errors.New("weighting: custom mode needs a pair source")
	}
	return &Policy{mode: mode, source: source}, nil
}

// FromControl builds the policy from the mode stored by the last setup run.
func FromControl(ctx context.Context, control ControlSource, source PairSource) (*Policy, error) {
	ctl, err := control.LatestControl(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve weight mode: %w", err)
	}
	return NewPolicy(ctl.WeightConfiguration, source)
}

func (p *Policy) Mode() models.WeightMode {
	return p.mode
}

func (p *Policy) Custom() bool {
	return p.mode == models.WeightCustom
}

// PairsAndWeights returns the weighted pairs of groupID. Under equal weighting
// there is no pair table and the result is empty.
func (p *Policy) PairsAndWeights(ctx context.Context, groupID string) ([]Pair, error) {
	if p.mode != models.WeightCustom {
		return nil, nil
	}

	rows, err := p.source.CustomPairs(ctx, []string{groupID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPairs, groupID)
	}

	pairs := make([]Pair, len(rows))
	for i, r := range rows {
		pairs[i] = Pair{Item1ID: r.Item1ID, Item2ID: r.Item2ID, Weight: r.Weight}
	}
	return pairs, nil
}

// PairsForGroups concatenates PairsAndWeights over groupIDs. Groups without
// pairs are skipped; ErrNoPairs is returned only when none of them has any.
func (p *Policy) PairsForGroups(ctx context.Context, groupIDs []string) ([]Pair, error) {
	if p.mode != models.WeightCustom {
		return nil, nil
	}

	var all []Pair
	for _, id := range groupIDs {
		pairs, err := p.PairsAndWeights(ctx, id)
		if err != nil && !errors.Is(err, ErrNoPairs) {
			return nil, err
		}
		all = append(all, pairs...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoPairs, groupIDs)
	}
	return all, nil
}
