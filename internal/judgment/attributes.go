package judgment

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/kdimtricp/pairjudge/internal/config"
)

// AttrEthicsAgreement is accepted alongside the configured user fields.
const AttrEthicsAgreement = "accepted_ethics_agreement"

var validate = validator.New()

// ValidateAttributes checks a registration bag against the configured fields
// and returns a normalised copy: int fields become int, strings are trimmed.
func ValidateAttributes(fields []config.UserField, attrs map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(attrs))
	known := make(map[string]bool, len(fields))

	for _, f := range fields {
		known[f.Name] = true
		raw, present := attrs[f.Name]
		if present {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
				present = false
			}
		}
		if !present || raw == nil {
			if f.Required {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidAction, f.Name)
			}
			continue
		}

		v, err := normaliseField(f, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAction, f.Name, err)
		}
		out[f.Name] = v
	}

	for k, v := range attrs {
		if known[k] {
			continue
		}
		if k != AttrEthicsAgreement {
			return nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalidAction, k)
		}
		agreed, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidAction, k)
		}
		out[k] = agreed
	}
	return out, nil
}

func normaliseField(f config.UserField, raw interface{}) (interface{}, error) {
	switch f.Type {
	case config.FieldInt:
		n, err := toInt(raw)
		if err != nil {
			return nil, err
		}
		if f.MinLimit != nil && n < *f.MinLimit {
			return nil, fmt.Errorf("must be at least %d", *f.MinLimit)
		}
		if f.MaxLimit != nil && n > *f.MaxLimit {
			return nil, fmt.Errorf("must be at most %d", *f.MaxLimit)
		}
		return n, nil

	case config.FieldText, config.FieldEmail:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		s = strings.TrimSpace(s)
		if f.MaxLimit != nil && utf8.RuneCountInString(s) > *f.MaxLimit {
			return nil, fmt.Errorf("must be at most %d characters", *f.MaxLimit)
		}
		if f.Type == config.FieldEmail {
			if err := validate.Var(s, "email"); err != nil {
				return nil, fmt.Errorf("must be an email address")
			}
		}
		return s, nil

	case config.FieldDropdown, config.FieldRadio:
		s, ok := raw.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return nil, fmt.Errorf("must be one of %v", f.Options)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func toInt(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return n, nil
	}
	return 0, fmt.Errorf("must be a whole number")
}
