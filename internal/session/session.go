// Package session keeps per-respondent navigation state between requests,
// keyed by an opaque token.
package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kdimtricp/pairjudge/internal/judgment"
)

var ErrNotFound = errors.New("session: not found or expired")

// Session binds a token to a respondent and their navigation state.
type Session struct {
	Token     string                `json:"token"`
	UserID    string                `json:"user_id"`
	State     judgment.SessionState `json:"state"`
	CreatedAt time.Time             `json:"created_at"`
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, userID string, state *judgment.SessionState) (*Session, error)
	Get(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
	Close() error
}

func newSession(userID string, state *judgment.SessionState) *Session {
	return &Session{
		Token:     uuid.New().String(),
		UserID:    userID,
		State:     cloneState(*state),
		CreatedAt: time.Now().UTC(),
	}
}

func cloneState(s judgment.SessionState) judgment.SessionState {
	out := judgment.SessionState{
		History:    slices.Clone(s.History),
		GroupIDs:   slices.Clone(s.GroupIDs),
		WeightMode: s.WeightMode,
	}
	if out.History == nil {
		out.History = []string{}
	}
	if s.PreviousID != nil {
		id := *s.PreviousID
		out.PreviousID = &id
	}
	return out
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.State = cloneState(s.State)
	return &cp
}
