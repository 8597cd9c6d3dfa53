// Package judgment selects item pairs for comparative judgment, records the
// outcomes and paces users through cycles.
package judgment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
	"github.com/kdimtricp/pairjudge/internal/weighting"
)

// Settings is the read-only behaviour the service needs from the deployment
// configuration.
type Settings struct {
	PreferencePage   bool
	Cycling          bool
	CycleLength      int
	MaxCyclesPerUser int
	AllowTies        bool
	AllowSkip        bool
	AllowBack        bool
	UserFields       []config.UserField
}

func SettingsFromConfig(cfg *config.Config) Settings {
	b := cfg.Behaviour
	return Settings{
		PreferencePage:   b.RenderItemPreferencePage,
		Cycling:          b.OfferEscapeRoute,
		CycleLength:      b.CycleLength,
		MaxCyclesPerUser: b.MaximumCyclesPerUser,
		AllowTies:        b.AllowTies,
		AllowSkip:        b.AllowSkip,
		AllowBack:        b.AllowBack,
		UserFields:       slices.Clone(cfg.UserFields),
	}
}

// CatalogStore is the catalog plus the writes of the item preference flow.
type CatalogStore interface {
	Catalog
	UnclassifiedItems(ctx context.Context, userID string, groupIDs []string) ([]models.Item, error)
	RecordPreference(ctx context.Context, pref *models.UserItemPreference) error
	GroupsByIDs(ctx context.Context, ids []string) ([]models.Group, error)
}

// UserStore persists respondents and their cycle progress.
type UserStore interface {
	ProgressStore
	Create(ctx context.Context, user *models.User, groupIDs []string) error
	GroupIDs(ctx context.Context, userID string) ([]string, error)
}

// Recorder receives judgment traffic counters.
type Recorder interface {
	JudgmentSaved(outcome, kind string)
	PairDrawn(strategy string, empty bool)
	CycleBoundary()
}

type nopRecorder struct{}

func (nopRecorder) JudgmentSaved(string, string) {}
func (nopRecorder) PairDrawn(string, bool)       {}
func (nopRecorder) CycleBoundary()               {}

type Deps struct {
	Catalog     CatalogStore
	Comparisons ComparisonStore
	Users       UserStore
	Policy      *weighting.Policy
	Rand        *rand.Rand
	Metrics     Recorder
	Log         *logger.Logger
}

// Service is the caller-facing API of the judgment core.
type Service struct {
	settings Settings
	catalog  CatalogStore
	users    UserStore
	policy   *weighting.Policy
	selector *Selector
	ledger   *Ledger
	cycles   *CycleController
	metrics  Recorder
	log      *logger.Logger
}

func NewService(settings Settings, deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	log := deps.Log.With("service", "Judgment")

	cycles := NewCycleController(settings.Cycling, settings.CycleLength, settings.MaxCyclesPerUser, deps.Users, log)
	cycles.onBoundary = deps.Metrics.CycleBoundary

	return &Service{
		settings: settings,
		catalog:  deps.Catalog,
		users:    deps.Users,
		policy:   deps.Policy,
		selector: NewSelector(deps.Catalog, deps.Comparisons, deps.Policy, deps.Rand),
		ledger:   NewLedger(deps.Comparisons, log),
		cycles:   cycles,
		metrics:  deps.Metrics,
		log:      log,
	}
}

func (s *Service) Settings() Settings {
	return s.settings
}

func (s *Service) WeightMode() models.WeightMode {
	return s.policy.Mode()
}

// preferenceFiltering is on only for equal weighting with the preference page.
func (s *Service) preferenceFiltering() bool {
	return s.settings.PreferencePage && !s.policy.Custom()
}

// Registration is a newly created respondent and their fresh session.
type Registration struct {
	UserID string
	State  *SessionState
}

// Register validates attrs and the group choice, stores the user and returns
// an empty session.
func (s *Service) Register(ctx context.Context, attrs map[string]interface{}, groupIDs []string) (*Registration, error) {
	clean, err := ValidateAttributes(s.settings.UserFields, attrs)
	if err != nil {
		return nil, err
	}

	groupIDs = uniqueStrings(groupIDs)
	switch {
	case len(groupIDs) == 0:
		return nil, fmt.Errorf("%w: at least one group must be selected", ErrInvalidAction)
	case s.policy.Custom() && len(groupIDs) != 1:
		return nil, fmt.Errorf("%w: exactly one group must be selected under custom weighting", ErrInvalidAction)
	}

	groups, err := s.catalog.GroupsByIDs(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if len(groups) != len(groupIDs) {
		return nil, fmt.Errorf("%w: unknown group selected", ErrInvalidAction)
	}

	user := models.NewUser(clean, s.settings.Cycling)
	if err := s.users.Create(ctx, user, groupIDs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.log.Info("user registered", "user_id", user.ID, "groups", len(groupIDs))
	return &Registration{UserID: user.ID, State: NewSessionState(groupIDs, s.policy.Mode())}, nil
}

// RestoreSession rebuilds the session state of an existing user from their
// stored groups and comparisons.
func (s *Service) RestoreSession(ctx context.Context, userID string) (*SessionState, error) {
	groupIDs, err := s.users.GroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	// Registration always stores at least one group.
	if len(groupIDs) == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	history, err := s.ledger.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.Info("session restored", "user_id", userID, "comparisons", len(history))
	return RestoreSessionState(history, groupIDs, s.policy.Mode()), nil
}

// NextItemToClassify returns a random item from the user's groups that has no
// preference row yet. It returns nil when the flow is off or complete.
func (s *Service) NextItemToClassify(ctx context.Context, userID string, state *SessionState) (*models.Item, error) {
	if !s.preferenceFiltering() {
		return nil, nil
	}
	items, err := s.catalog.UnclassifiedItems(ctx, userID, state.GroupIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.selector.Pick(items), nil
}

// ClassifyItem stores whether the user recognises itemID. Each item is
// classified at most once.
func (s *Service) ClassifyItem(ctx context.Context, userID string, state *SessionState, itemID string, known bool) error {
	if !s.preferenceFiltering() {
		return fmt.Errorf("%w: item preferences are not collected", ErrInvalidAction)
	}
	pending, err := s.catalog.UnclassifiedItems(ctx, userID, state.GroupIDs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !slices.ContainsFunc(pending, func(it models.Item) bool { return it.ID == itemID }) {
		return fmt.Errorf("%w: item %s is not awaiting classification", ErrInvalidAction, itemID)
	}

	pref := &models.UserItemPreference{UserID: userID, ItemID: itemID, Known: known}
	if err := s.catalog.RecordPreference(ctx, pref); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// ComparisonState is the stored answer of a comparison being rejudged.
type ComparisonState struct {
	Outcome        models.Outcome `json:"state"`
	SelectedItemID *string        `json:"selected_item_id"`
}

// PairResult is what NextPair offers. Pair is empty when the cycle state
// stops the sequence or there were not enough candidates.
type PairResult struct {
	Pair         Pair
	Strategy     Strategy
	Cycle        CycleStatus
	Stats        Stats
	CanRejudge   bool
	ComparisonID string
	Current      *ComparisonState
}

// NextPair evaluates the cycle state and, while in a cycle, draws the next
// pair. A non-empty requestedID returns that comparison's pair for rejudging
// and moves the back target one step earlier.
func (s *Service) NextPair(ctx context.Context, userID string, state *SessionState, requestedID string) (*PairResult, error) {
	if requestedID != "" && !s.settings.AllowBack {
		return nil, fmt.Errorf("%w: going back is disabled", ErrInvalidAction)
	}

	stats, err := s.ledger.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	status, err := s.cycles.Evaluate(ctx, userID, stats)
	if err != nil {
		return nil, err
	}

	res := &PairResult{Cycle: status, Stats: stats}
	if status.State != InCycle {
		return res, nil
	}

	if requestedID != "" {
		c, err := s.ledger.Get(ctx, requestedID, userID)
		if err != nil {
			return nil, err
		}
		pair, err := s.selector.PairFor(ctx, c)
		if err != nil {
			return nil, err
		}
		state.StepBack(requestedID)

		res.Pair = pair
		res.Strategy = StrategyRejudge
		res.ComparisonID = c.ID
		res.Current = &ComparisonState{Outcome: c.Outcome, SelectedItemID: c.SelectedItemID}
	} else {
		pair, strategy, err := s.selector.Select(ctx, userID, state, s.preferenceFiltering(), "")
		if err != nil {
			if errors.Is(err, ErrConfiguration) {
				s.log.Error("weighting policy does not match stored pairs", "user_id", userID, "error", err)
			}
			return nil, err
		}
		res.Pair = pair
		res.Strategy = strategy
	}

	s.metrics.PairDrawn(string(res.Strategy), res.Pair.Empty())
	res.CanRejudge = s.settings.AllowBack && state.CanRejudge()
	return res, nil
}

// Judgment is one submitted decision.
type Judgment struct {
	Action         Action
	Item1ID        string
	Item2ID        string
	SelectedItemID *string
	// ComparisonID is set when an existing comparison is being rejudged.
	ComparisonID string
}

// JudgmentResult reports the stored comparison, or for ActionRejudged the
// comparison the caller should navigate back to.
type JudgmentResult struct {
	ComparisonID string
	RedirectTo   *string
	Stats        Stats
}

// SubmitJudgment records a new comparison, rejudges an existing one, or
// resolves a "rejudge last" navigation.
func (s *Service) SubmitJudgment(ctx context.Context, userID string, state *SessionState, j Judgment) (*JudgmentResult, error) {
	switch j.Action {
	case ActionRejudged:
		if !s.settings.AllowBack {
			return nil, fmt.Errorf("%w: going back is disabled", ErrInvalidAction)
		}
		res := &JudgmentResult{}
		if id, ok := state.RejudgeTarget(); ok {
			res.RedirectTo = &id
		}
		return res, nil
	case ActionConfirmed:
		if !s.settings.AllowTies && (j.SelectedItemID == nil || *j.SelectedItemID == "") {
			return nil, fmt.Errorf("%w: ties are disabled", ErrInvalidAction)
		}
	case ActionSkipped:
		if !s.settings.AllowSkip {
			return nil, fmt.Errorf("%w: skipping is disabled", ErrInvalidAction)
		}
	}

	outcome, selected, err := DeriveOutcome(j.Action, j.SelectedItemID)
	if err != nil {
		return nil, err
	}

	if j.ComparisonID != "" {
		if !s.settings.AllowBack {
			return nil, fmt.Errorf("%w: going back is disabled", ErrInvalidAction)
		}
		if _, err := s.ledger.Rejudge(ctx, j.ComparisonID, userID, outcome, selected); err != nil {
			return nil, err
		}
		state.ResumeAfterRejudge()
		s.metrics.JudgmentSaved(string(outcome), "rejudge")

		stats, err := s.ledger.Stats(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &JudgmentResult{ComparisonID: j.ComparisonID, Stats: stats}, nil
	}

	finished, _, err := s.cycles.Finished(ctx, userID)
	if err != nil {
		return nil, err
	}
	if finished {
		return nil, fmt.Errorf("%w: all cycles are completed", ErrInvalidAction)
	}
	if err := s.checkItemsExist(ctx, j.Item1ID, j.Item2ID); err != nil {
		return nil, err
	}

	id, stats, err := s.ledger.Record(ctx, userID, j.Item1ID, j.Item2ID, outcome, selected)
	if err != nil {
		return nil, err
	}
	state.RecordNew(id)
	s.metrics.JudgmentSaved(string(outcome), "new")
	return &JudgmentResult{ComparisonID: id, Stats: stats}, nil
}

// checkItemsExist rejects comparisons naming items the catalog does not hold.
// Empty or equal ids are left to the ledger.
func (s *Service) checkItemsExist(ctx context.Context, item1ID, item2ID string) error {
	if item1ID == "" || item2ID == "" || item1ID == item2ID {
		return nil
	}
	items, err := s.catalog.ItemsByIDs(ctx, []string{item1ID, item2ID})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if orderedPair(items, item1ID, item2ID).Empty() {
		return fmt.Errorf("%w: unknown item in %s/%s", ErrInvalidAction, item1ID, item2ID)
	}
	return nil
}

// ComparisonState returns the stored answer of one of userID's comparisons.
func (s *Service) ComparisonState(ctx context.Context, userID, comparisonID string) (*ComparisonState, error) {
	c, err := s.ledger.Get(ctx, comparisonID, userID)
	if err != nil {
		return nil, err
	}
	return &ComparisonState{Outcome: c.Outcome, SelectedItemID: c.SelectedItemID}, nil
}

// CycleStatus evaluates the cycle state for userID. Reaching a boundary
// increments the completed cycle count.
func (s *Service) CycleStatus(ctx context.Context, userID string) (CycleStatus, error) {
	stats, err := s.ledger.Stats(ctx, userID)
	if err != nil {
		return CycleStatus{}, err
	}
	return s.cycles.Evaluate(ctx, userID, stats)
}

// CanContinue reports whether userID may start another cycle.
func (s *Service) CanContinue(ctx context.Context, userID string) (bool, error) {
	return s.cycles.CanContinue(ctx, userID)
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
