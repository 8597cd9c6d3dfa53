package judgment

import (
	"slices"

	"github.com/kdimtricp/pairjudge/internal/models"
)

// SessionState is the per-session navigation state. It is passed explicitly
// into every operation and persisted by the caller between requests.
type SessionState struct {
	History    []string          `json:"history"`
	PreviousID *string           `json:"previous_id"`
	GroupIDs   []string          `json:"group_ids"`
	WeightMode models.WeightMode `json:"weight_mode"`
}

// NewSessionState is the state of a freshly registered user.
func NewSessionState(groupIDs []string, mode models.WeightMode) *SessionState {
	return &SessionState{
		History:    []string{},
		GroupIDs:   groupIDs,
		WeightMode: mode,
	}
}

// RestoreSessionState rebuilds navigation for a user whose session was lost.
// history is every stored comparison id, oldest first; the back target is the
// latest of them.
func RestoreSessionState(history, groupIDs []string, mode models.WeightMode) *SessionState {
	s := NewSessionState(groupIDs, mode)
	s.History = append(s.History, history...)
	s.ResumeAfterRejudge()
	return s
}

// RecordNew appends a brand-new comparison and makes it the back target.
func (s *SessionState) RecordNew(comparisonID string) {
	s.History = append(s.History, comparisonID)
	id := comparisonID
	s.PreviousID = &id
}

// StepBack moves the back target to the comparison recorded just before
// comparisonID. It is cleared when comparisonID is first or is not part of
// this session's history.
func (s *SessionState) StepBack(comparisonID string) {
	idx := slices.Index(s.History, comparisonID)
	if idx <= 0 {
		s.PreviousID = nil
		return
	}
	id := s.History[idx-1]
	s.PreviousID = &id
}

// ResumeAfterRejudge points the back target at the latest comparison again
// once a rejudge has been saved.
func (s *SessionState) ResumeAfterRejudge() {
	if len(s.History) == 0 {
		s.PreviousID = nil
		return
	}
	id := s.History[len(s.History)-1]
	s.PreviousID = &id
}

// RejudgeTarget is where a "rejudge last" action navigates to.
func (s *SessionState) RejudgeTarget() (string, bool) {
	if s.PreviousID == nil {
		return "", false
	}
	return *s.PreviousID, true
}

// CanRejudge reports whether a back action is available.
func (s *SessionState) CanRejudge() bool {
	return len(s.History) > 0 && s.PreviousID != nil
}
