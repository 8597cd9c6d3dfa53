package judgment

import "errors"

var (
	// ErrConfiguration means stored data contradicts the weighting policy.
	ErrConfiguration = errors.New("judgment: configuration error")
	// ErrNotFound means a comparison is absent or owned by another user.
	ErrNotFound = errors.New("judgment: comparison not found")
	// ErrInvalidAction means a judgment or registration request is malformed.
	ErrInvalidAction = errors.New("judgment: invalid action")
	// ErrPersistence wraps storage failures. Callers must not retry them.
	ErrPersistence = errors.New("judgment: persistence error")
)
