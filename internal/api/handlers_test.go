package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/models"
)

func TestPing(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	resp, err := http.Get(ts.Server.URL + "/ping")
	if err != nil {
		t.Fatalf("Failed to ping: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "pong" {
		t.Errorf("Expected 200 pong, got %d %q", resp.StatusCode, body)
	}
}

func TestListGroups(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	var out groupsResponse
	resp := ts.do(t, http.MethodGet, "/groups", "", nil, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if len(out.Groups) != 2 {
		t.Errorf("Expected 2 groups, got %d", len(out.Groups))
	}
	if out.WeightMode != models.WeightEqual || !out.MultipleSelect {
		t.Errorf("Expected equal mode with multiple selection, got %s %v", out.WeightMode, out.MultipleSelect)
	}
}

func TestRegister(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	t.Run("NoGroups", func(t *testing.T) {
		var out errorBody
		resp := ts.do(t, http.MethodPost, "/register", "", registerRequest{GroupIDs: nil}, &out)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
		if out.Code != "invalid_action" {
			t.Errorf("Expected invalid_action, got %s", out.Code)
		}
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/register", "", registerRequest{GroupIDs: []string{"missing"}}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp, err := http.Post(ts.Server.URL+"/register", "application/json", strings.NewReader("{"))
		if err != nil {
			t.Fatalf("Failed to post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		body := `{"attributes":{"note":"` + strings.Repeat("x", 1<<16+100) + `"}}`
		resp, err := http.Post(ts.Server.URL+"/register", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Failed to post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected status 413, got %d", resp.StatusCode)
		}
	})

	t.Run("Success", func(t *testing.T) {
		var out registerResponse
		resp := ts.do(t, http.MethodPost, "/register", "", registerRequest{
			GroupIDs: []string{ts.GroupIDs["fruit"], ts.GroupIDs["fruit"], ts.GroupIDs["stone"]},
		}, &out)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", resp.StatusCode)
		}
		if out.UserID == "" || out.Token == "" {
			t.Error("Expected user id and token")
		}
		if len(out.GroupIDs) != 2 {
			t.Errorf("Expected duplicate groups to collapse to 2, got %v", out.GroupIDs)
		}
	})
}

func TestSessionRequired(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	for _, token := range []string{"", "not-a-session"} {
		resp := ts.do(t, http.MethodGet, "/pairs/next", token, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Token %q: expected status 401, got %d", token, resp.StatusCode)
		}
	}
}

func TestJudgmentFlow(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	token := ts.register(t, "fruit")

	submit := func(t *testing.T) (string, pairResponse) {
		t.Helper()
		var pair pairResponse
		resp := ts.do(t, http.MethodGet, "/pairs/next", token, nil, &pair)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200 for next pair, got %d", resp.StatusCode)
		}
		if pair.Empty || pair.Item1 == nil || pair.Item2 == nil {
			t.Fatal("Expected a full pair")
		}
		if pair.Item1.ID == pair.Item2.ID {
			t.Fatalf("Expected distinct items, got %s twice", pair.Item1.ID)
		}

		var out judgmentResponse
		resp = ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{
			State:          judgment.ActionConfirmed,
			Item1ID:        pair.Item1.ID,
			Item2ID:        pair.Item2.ID,
			SelectedItemID: strPtr(pair.Item1.ID),
		}, &out)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected status 201 for judgment, got %d", resp.StatusCode)
		}
		return out.ComparisonID, pair
	}

	firstID, first := submit(t)
	if first.Strategy != judgment.StrategyVisibleItems {
		t.Errorf("Expected visible_items strategy, got %s", first.Strategy)
	}
	if first.CanRejudge {
		t.Error("Expected no rejudge before any judgment")
	}
	secondID, _ := submit(t)

	var redirect judgmentResponse
	resp := ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{State: judgment.ActionRejudged}, &redirect)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for rejudge navigation, got %d", resp.StatusCode)
	}
	if redirect.RedirectTo == nil || *redirect.RedirectTo != secondID {
		t.Fatalf("Expected redirect to %s, got %v", secondID, redirect.RedirectTo)
	}

	var back pairResponse
	resp = ts.do(t, http.MethodGet, "/pairs/next?comparison_id="+secondID, token, nil, &back)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for rejudge pair, got %d", resp.StatusCode)
	}
	if back.Strategy != judgment.StrategyRejudge || back.ComparisonID != secondID {
		t.Errorf("Expected rejudge of %s, got %s %s", secondID, back.Strategy, back.ComparisonID)
	}
	if back.Current == nil || back.Current.Outcome != models.OutcomeSelected {
		t.Errorf("Expected current outcome selected, got %+v", back.Current)
	}

	// Stepping back from the second comparison points at the first.
	resp = ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{State: judgment.ActionRejudged}, &redirect)
	if resp.StatusCode != http.StatusOK || redirect.RedirectTo == nil || *redirect.RedirectTo != firstID {
		t.Errorf("Expected redirect to %s after stepping back, got %v", firstID, redirect.RedirectTo)
	}

	var rejudged judgmentResponse
	resp = ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{
		State:        judgment.ActionSkipped,
		Item1ID:      back.Item1.ID,
		Item2ID:      back.Item2.ID,
		ComparisonID: secondID,
	}, &rejudged)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for rejudge, got %d", resp.StatusCode)
	}
	if rejudged.Stats == nil || rejudged.Stats.Compared != 1 || rejudged.Stats.Skipped != 1 {
		t.Errorf("Expected 1 compared and 1 skipped, got %+v", rejudged.Stats)
	}

	var state judgment.ComparisonState
	resp = ts.do(t, http.MethodGet, "/comparisons/"+secondID, token, nil, &state)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for comparison, got %d", resp.StatusCode)
	}
	if state.Outcome != models.OutcomeSkipped || state.SelectedItemID != nil {
		t.Errorf("Expected skipped without selection, got %+v", state)
	}

	var restored registerResponse
	resp = ts.do(t, http.MethodPost, "/sessions", "", restoreRequest{UserID: ts.userID(t, token)}, &restored)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201 for restore, got %d", resp.StatusCode)
	}
	if restored.Token == token {
		t.Error("Expected a fresh token")
	}
	resp = ts.do(t, http.MethodPost, "/judgments", restored.Token, judgmentRequest{State: judgment.ActionRejudged}, &redirect)
	if resp.StatusCode != http.StatusOK || redirect.RedirectTo == nil || *redirect.RedirectTo != secondID {
		t.Errorf("Expected restored session to point at %s, got %v", secondID, redirect.RedirectTo)
	}

	resp = ts.do(t, http.MethodPost, "/sessions", "", restoreRequest{UserID: "nobody"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown user, got %d", resp.StatusCode)
	}

	other := ts.register(t, "fruit")
	resp = ts.do(t, http.MethodGet, "/comparisons/"+secondID, other, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for another user's comparison, got %d", resp.StatusCode)
	}
}

func TestSubmitJudgment_Invalid(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	token := ts.register(t, "fruit")

	var pair pairResponse
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, &pair)

	tests := []struct {
		name string
		req  judgmentRequest
	}{
		{
			name: "selection outside pair",
			req: judgmentRequest{
				State:          judgment.ActionConfirmed,
				Item1ID:        pair.Item1.ID,
				Item2ID:        pair.Item2.ID,
				SelectedItemID: strPtr("someone-else"),
			},
		},
		{
			name: "same item twice",
			req: judgmentRequest{
				State:   judgment.ActionConfirmed,
				Item1ID: pair.Item1.ID,
				Item2ID: pair.Item1.ID,
			},
		},
		{
			name: "unknown items",
			req: judgmentRequest{
				State:   judgment.ActionConfirmed,
				Item1ID: "ghost-1",
				Item2ID: "ghost-2",
			},
		},
		{
			name: "one unknown item",
			req: judgmentRequest{
				State:          judgment.ActionConfirmed,
				Item1ID:        pair.Item1.ID,
				Item2ID:        "ghost-2",
				SelectedItemID: strPtr(pair.Item1.ID),
			},
		},
		{
			name: "unknown action",
			req: judgmentRequest{
				State:   judgment.Action("maybe"),
				Item1ID: pair.Item1.ID,
				Item2ID: pair.Item2.ID,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/judgments", token, tt.req, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
		})
	}

	resp := ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{
		State:        judgment.ActionSkipped,
		Item1ID:      pair.Item1.ID,
		Item2ID:      pair.Item2.ID,
		ComparisonID: "missing",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown comparison, got %d", resp.StatusCode)
	}
}

func TestPreferenceFlow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Behaviour.RenderItemPreferencePage = true
	ts := setupTestServer(t, cfg)
	token := ts.register(t, "stone")

	known := true
	for i := 0; i < 2; i++ {
		var next preferenceItemResponse
		resp := ts.do(t, http.MethodGet, "/preferences/next", token, nil, &next)
		if resp.StatusCode != http.StatusOK || next.Item == nil {
			t.Fatalf("Expected an item to classify, got %d %+v", resp.StatusCode, next.Item)
		}

		resp = ts.do(t, http.MethodPost, "/preferences", token, preferenceRequest{ItemID: next.Item.ID, Known: &known}, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", resp.StatusCode)
		}

		resp = ts.do(t, http.MethodPost, "/preferences", token, preferenceRequest{ItemID: next.Item.ID, Known: &known}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400 when classifying twice, got %d", resp.StatusCode)
		}
	}

	var done preferenceItemResponse
	ts.do(t, http.MethodGet, "/preferences/next", token, nil, &done)
	if done.Item != nil {
		t.Errorf("Expected no item left, got %s", done.Item.Name)
	}

	resp := ts.do(t, http.MethodPost, "/preferences", token, preferenceRequest{ItemID: "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without known, got %d", resp.StatusCode)
	}

	var pair pairResponse
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, &pair)
	if pair.Strategy != judgment.StrategyKnownItems || pair.Empty {
		t.Errorf("Expected a known_items pair, got %s empty=%v", pair.Strategy, pair.Empty)
	}
}

func TestCycles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Behaviour.OfferEscapeRoute = true
	cfg.Behaviour.CycleLength = 1
	cfg.Behaviour.MaximumCyclesPerUser = 1
	ts := setupTestServer(t, cfg)
	token := ts.register(t, "fruit")

	var pair pairResponse
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, &pair)
	if pair.Cycle.State != judgment.InCycle {
		t.Fatalf("Expected in_cycle, got %s", pair.Cycle.State)
	}

	resp := ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{
		State:   judgment.ActionSkipped,
		Item1ID: pair.Item1.ID,
		Item2ID: pair.Item2.ID,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	var boundary pairResponse
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, &boundary)
	if boundary.Cycle.State != judgment.CycleBoundary || !boundary.Empty {
		t.Errorf("Expected an empty pair at the boundary, got %s empty=%v", boundary.Cycle.State, boundary.Empty)
	}

	var cycle cycleResponse
	ts.do(t, http.MethodGet, "/cycle", token, nil, &cycle)
	if !cycle.Finished || cycle.CanContinue {
		t.Errorf("Expected finished without continuation, got %+v", cycle)
	}
	if cycle.CompletedCycles == nil || *cycle.CompletedCycles != 1 {
		t.Errorf("Expected 1 completed cycle, got %v", cycle.CompletedCycles)
	}

	resp = ts.do(t, http.MethodPost, "/judgments", token, judgmentRequest{
		State:   judgment.ActionSkipped,
		Item1ID: pair.Item1.ID,
		Item2ID: pair.Item2.ID,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 after the last cycle, got %d", resp.StatusCode)
	}
}

func TestItemImage(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	token := ts.register(t, "fruit")

	var pair pairResponse
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, &pair)

	resp, err := http.Get(ts.Server.URL + pair.Item1.ImageURL)
	if err != nil {
		t.Fatalf("Failed to get image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, pngBytes) {
		t.Errorf("Image body mismatch")
	}

	missing, err := http.Get(ts.Server.URL + "/items/missing/image")
	if err != nil {
		t.Fatalf("Failed to get image: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", missing.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	token := ts.register(t, "fruit")
	ts.do(t, http.MethodGet, "/pairs/next", token, nil, nil)

	resp, err := http.Get(ts.Server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `pairjudge_pairs_drawn_total{strategy="visible_items"} 1`) {
		t.Errorf("Expected pairs drawn counter in output:\n%s", body)
	}
}
