package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
	"github.com/kdimtricp/pairjudge/internal/session"
	"github.com/kdimtricp/pairjudge/internal/storage"
)

const SessionHeader = "X-Session-Token"

// ItemSource resolves items and groups for responses.
type ItemSource interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
}

type App struct {
	Service      *judgment.Service
	Sessions     session.Store
	Items        ItemSource
	Images       storage.Storage
	Log          *logger.Logger
	MaxBodyBytes int64
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type itemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url"`
}

func newItemResponse(it *models.Item) *itemResponse {
	if it == nil {
		return nil
	}
	return &itemResponse{
		ID:          it.ID,
		Name:        it.Name,
		DisplayName: it.DisplayName,
		ImageURL:    "/items/" + it.ID + "/image",
	}
}

type groupResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type groupsResponse struct {
	Groups         []groupResponse   `json:"groups"`
	WeightMode     models.WeightMode `json:"weight_mode"`
	MultipleSelect bool              `json:"multiple_selection"`
}

func (app *App) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := app.Items.ListGroups(r.Context())
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	resp := groupsResponse{
		Groups:         make([]groupResponse, 0, len(groups)),
		WeightMode:     app.Service.WeightMode(),
		MultipleSelect: app.Service.WeightMode() == models.WeightEqual,
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, groupResponse{ID: g.ID, Name: g.Name, DisplayName: g.DisplayName})
	}
	writeJSON(w, http.StatusOK, resp)
}

type registerRequest struct {
	Attributes map[string]interface{} `json:"attributes"`
	GroupIDs   []string               `json:"group_ids"`
}

type registerResponse struct {
	Token      string            `json:"token"`
	UserID     string            `json:"user_id"`
	GroupIDs   []string          `json:"group_ids"`
	WeightMode models.WeightMode `json:"weight_mode"`
}

func (app *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := app.decode(w, r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}
	if req.Attributes == nil {
		req.Attributes = map[string]interface{}{}
	}

	reg, err := app.Service.Register(r.Context(), req.Attributes, req.GroupIDs)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	sess, err := app.Sessions.Create(r.Context(), reg.UserID, reg.State)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Token:      sess.Token,
		UserID:     reg.UserID,
		GroupIDs:   reg.State.GroupIDs,
		WeightMode: reg.State.WeightMode,
	})
}

type restoreRequest struct {
	UserID string `json:"user_id"`
}

// RestoreSessionHandler issues a new token for an existing user, rebuilding
// their navigation from stored comparisons.
func (app *App) RestoreSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := app.decode(w, r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		app.writeError(w, r, badRequest("user_id is required"))
		return
	}

	state, err := app.Service.RestoreSession(r.Context(), req.UserID)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	sess, err := app.Sessions.Create(r.Context(), req.UserID, state)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Token:      sess.Token,
		UserID:     req.UserID,
		GroupIDs:   state.GroupIDs,
		WeightMode: state.WeightMode,
	})
}

type preferenceItemResponse struct {
	Item *itemResponse `json:"item"`
}

func (app *App) NextPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	item, err := app.Service.NextItemToClassify(r.Context(), sess.UserID, &sess.State)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferenceItemResponse{Item: newItemResponse(item)})
}

type preferenceRequest struct {
	ItemID string `json:"item_id"`
	Known  *bool  `json:"known"`
}

func (app *App) ClassifyItemHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req preferenceRequest
	if err := app.decode(w, r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}
	if req.ItemID == "" || req.Known == nil {
		app.writeError(w, r, badRequest("item_id and known are required"))
		return
	}

	if err := app.Service.ClassifyItem(r.Context(), sess.UserID, &sess.State, req.ItemID, *req.Known); err != nil {
		app.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	Compared int `json:"compared"`
	Skipped  int `json:"skipped"`
}

type pairResponse struct {
	Item1        *itemResponse             `json:"item_1"`
	Item2        *itemResponse             `json:"item_2"`
	Empty        bool                      `json:"empty"`
	Strategy     judgment.Strategy         `json:"strategy,omitempty"`
	Cycle        judgment.CycleStatus      `json:"cycle"`
	Stats        statsResponse             `json:"stats"`
	CanRejudge   bool                      `json:"can_rejudge"`
	ComparisonID string                    `json:"comparison_id,omitempty"`
	Current      *judgment.ComparisonState `json:"current,omitempty"`
	AllowTies    bool                      `json:"allow_ties"`
	AllowSkip    bool                      `json:"allow_skip"`
}

func (app *App) NextPairHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	requested := r.URL.Query().Get("comparison_id")

	res, err := app.Service.NextPair(r.Context(), sess.UserID, &sess.State, requested)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	if requested != "" {
		if err := app.Sessions.Save(r.Context(), sess); err != nil {
			app.writeError(w, r, err)
			return
		}
	}

	settings := app.Service.Settings()
	writeJSON(w, http.StatusOK, pairResponse{
		Item1:        newItemResponse(res.Pair.Item1),
		Item2:        newItemResponse(res.Pair.Item2),
		Empty:        res.Pair.Empty(),
		Strategy:     res.Strategy,
		Cycle:        res.Cycle,
		Stats:        statsResponse{Compared: res.Stats.Compared, Skipped: res.Stats.Skipped},
		CanRejudge:   res.CanRejudge,
		ComparisonID: res.ComparisonID,
		Current:      res.Current,
		AllowTies:    settings.AllowTies,
		AllowSkip:    settings.AllowSkip,
	})
}

type judgmentRequest struct {
	State          judgment.Action `json:"state"`
	Item1ID        string          `json:"item_1_id"`
	Item2ID        string          `json:"item_2_id"`
	SelectedItemID *string         `json:"selected_item_id"`
	ComparisonID   string          `json:"comparison_id"`
}

type judgmentResponse struct {
	ComparisonID string         `json:"comparison_id,omitempty"`
	RedirectTo   *string        `json:"redirect_to,omitempty"`
	Stats        *statsResponse `json:"stats,omitempty"`
}

func (app *App) SubmitJudgmentHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req judgmentRequest
	if err := app.decode(w, r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}

	res, err := app.Service.SubmitJudgment(r.Context(), sess.UserID, &sess.State, judgment.Judgment{
		Action:         req.State,
		Item1ID:        req.Item1ID,
		Item2ID:        req.Item2ID,
		SelectedItemID: req.SelectedItemID,
		ComparisonID:   req.ComparisonID,
	})
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	if req.State == judgment.ActionRejudged {
		writeJSON(w, http.StatusOK, judgmentResponse{RedirectTo: res.RedirectTo})
		return
	}

	if err := app.Sessions.Save(r.Context(), sess); err != nil {
		app.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if req.ComparisonID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, judgmentResponse{
		ComparisonID: res.ComparisonID,
		Stats:        &statsResponse{Compared: res.Stats.Compared, Skipped: res.Stats.Skipped},
	})
}

func (app *App) ComparisonHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	state, err := app.Service.ComparisonState(r.Context(), sess.UserID, chi.URLParam(r, "id"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type cycleResponse struct {
	State           judgment.CycleState `json:"state"`
	BoundaryReached bool                `json:"boundary_reached"`
	Finished        bool                `json:"finished"`
	CompletedCycles *int                `json:"completed_cycles"`
	CanContinue     bool                `json:"can_continue"`
}

func (app *App) CycleHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	status, err := app.Service.CycleStatus(r.Context(), sess.UserID)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	canContinue, err := app.Service.CanContinue(r.Context(), sess.UserID)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cycleResponse{
		State:           status.State,
		BoundaryReached: status.BoundaryReached(),
		Finished:        status.Finished(),
		CompletedCycles: status.CompletedCycles,
		CanContinue:     canContinue,
	})
}

func (app *App) ItemImageHandler(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		http.NotFound(w, r)
		return
	}

	item, err := app.Items.GetItem(r.Context(), itemID)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	file, info, err := app.Images.OpenImage(item.ImagePath)
	if err != nil {
		http.Error(w, "Image file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	// ServeContent handles Range and conditional requests.
	http.ServeContent(w, r, info.Name, time.Time{}, file)
}

func (app *App) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if app.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, app.MaxBodyBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &apiError{Status: http.StatusRequestEntityTooLarge, Code: "body_too_large", Err: err}
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
