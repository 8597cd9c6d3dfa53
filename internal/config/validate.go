package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const weightSumTolerance = 1e-6

// Validate checks struct tags and the cross-field rules between behaviour and
// comparison settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error

	if c.Database.Type == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, errors.New("database.sqlite_path is required for sqlite"))
	}

	if c.Behaviour.OfferEscapeRoute {
		if c.Behaviour.CycleLength < 1 {
			errs = append(errs, errors.New("behaviour.cycle_length must be at least 1 when the escape route is offered"))
		}
		if c.Behaviour.MaximumCyclesPerUser < 1 {
			errs = append(errs, errors.New("behaviour.maximum_cycles_per_user must be at least 1 when the escape route is offered"))
		}
	}

	groupNames := map[string]bool{}
	for _, g := range c.Comparison.Groups {
		if groupNames[g.Name] {
			errs = append(errs, fmt.Errorf("group %q is defined more than once", g.Name))
		}
		groupNames[g.Name] = true
		errs = append(errs, c.validateGroup(g)...)
	}

	fieldNames := map[string]bool{}
	for _, f := range c.UserFields {
		if fieldNames[f.Name] {
			errs = append(errs, fmt.Errorf("user field %q is defined more than once", f.Name))
		}
		fieldNames[f.Name] = true
		if (f.Type == FieldDropdown || f.Type == FieldRadio) && len(f.Options) == 0 {
			errs = append(errs, fmt.Errorf("user field %q needs options", f.Name))
		}
		if f.MinLimit != nil && f.MaxLimit != nil && *f.MinLimit > *f.MaxLimit {
			errs = append(errs, fmt.Errorf("user field %q has min_limit above max_limit", f.Name))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) validateGroup(g GroupConfig) []error {
	var errs []error

	items := map[string]bool{}
	for _, it := range g.Items {
		if items[it.Name] {
			errs = append(errs, fmt.Errorf("group %q lists item %q twice", g.Name, it.Name))
		}
		items[it.Name] = true
	}

	custom := c.Comparison.WeightConfiguration == "custom"
	if !custom {
		if len(g.Weights) > 0 {
			errs = append(errs, fmt.Errorf("group %q defines weights but weight_configuration is equal", g.Name))
		}
		return errs
	}

	if len(g.Weights) == 0 {
		errs = append(errs, fmt.Errorf("group %q needs weights under custom weight_configuration", g.Name))
		return errs
	}

	sum := 0.0
	pairs := map[[2]string]bool{}
	for _, w := range g.Weights {
		if !items[w.Item1] || !items[w.Item2] {
			errs = append(errs, fmt.Errorf("group %q weight references unknown item (%s, %s)", g.Name, w.Item1, w.Item2))
		}
		key := [2]string{w.Item1, w.Item2}
		if pairs[key] {
			errs = append(errs, fmt.Errorf("group %q repeats pair (%s, %s)", g.Name, w.Item1, w.Item2))
		}
		pairs[key] = true
		sum += w.Weight
	}
	if math.Abs(sum-1) > weightSumTolerance {
		errs = append(errs, fmt.Errorf("group %q weights sum to %g, want 1", g.Name, sum))
	}
	return errs
}
