package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/config"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

const testUser int64 = 7

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fb, err := feedback.NewService(st, zap.NewNop(), nil)
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Options{
		Store:  st,
		Ledger: ledger.New(50),
		Classifier: &intent.StaticClassifier{
			Mapping: map[string]intent.Intent{
				"plan my week":     intent.CreateNewPlan,
				"juggle chainsaws": intent.Intent("juggle_chainsaws"),
			},
			Fallback: intent.Smalltalk,
		},
		Generator: &generate.StaticGenerator{},
		Feedback:  fb,
		Logger:    zap.NewNop(),
		Planner: config.PlannerConfig{
			MaxIterations: 5,
			TaskDuration:  config.Duration(time.Hour),
		},
		Features: config.FeatureFlags{Undo: true, ConflictSuggestions: true},
	})
	require.NoError(t, err)

	s, err := NewServer(orch, st, zap.NewNop(), nil)
	require.NoError(t, err)
	return s, st
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// createPlan drives a full run over the API and returns the plan ID.
func createPlan(t *testing.T, s *Server) int64 {
	t.Helper()

	turns := []string{"plan my week", "confirm", "confirm"}
	var last orchestrator.TurnResult
	for _, msg := range turns {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/turn",
			fmt.Sprintf(`{"user_id": %d, "message": %q}`, testUser, msg))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &last))
	}
	require.False(t, last.Suspended)
	require.NotZero(t, last.PlanID)
	return last.PlanID
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestTurn(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/turn",
		fmt.Sprintf(`{"user_id": %d, "message": "plan my week"}`, testUser))
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Suspended)
	assert.NotEmpty(t, res.RunID)
	assert.Contains(t, res.Reply, "outline")
}

func TestTurn_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/turn", `{"message": "hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/turn",
		fmt.Sprintf(`{"user_id": %d, "message": ""}`, testUser))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// A nil config falls back to the daemon's configured defaults.
func TestNewServer_DefaultConfig(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, "localhost", s.config.Host)
	assert.Equal(t, 9080, s.config.Port)
}

func TestTurn_UnsupportedIntent(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/turn",
		fmt.Sprintf(`{"user_id": %d, "message": "juggle chainsaws"}`, testUser))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "juggle_chainsaws")
}

func TestFeedbackEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	planID := createPlan(t, s)

	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/feedback", planID),
		fmt.Sprintf(`{"user_id": %d, "action": "approve"}`, testUser))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, planID, res.Feedback.PlanID)
	assert.Nil(t, res.Turn)

	p, err := st.GetPlan(context.Background(), planID)
	require.NoError(t, err)
	assert.True(t, p.Approved)

	// One feedback per plan, ever.
	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/feedback", planID),
		fmt.Sprintf(`{"user_id": %d, "action": "reject"}`, testUser))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedbackEndpoint_Refinement(t *testing.T) {
	s, _ := newTestServer(t)
	planID := createPlan(t, s)

	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/feedback", planID),
		fmt.Sprintf(`{"user_id": %d, "action": "request_refinement", "suggested_changes": "shorter sessions"}`, testUser))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Turn)
	assert.True(t, res.Turn.Suspended)
}

func TestFeedbackEndpoint_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	planID := createPlan(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/plans/99999/feedback",
		fmt.Sprintf(`{"user_id": %d, "action": "approve"}`, testUser))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/feedback", planID),
		fmt.Sprintf(`{"user_id": %d, "action": "maybe"}`, testUser))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/feedback", planID),
		`{"action": "approve"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlans(t *testing.T) {
	s, _ := newTestServer(t)
	planID := createPlan(t, s)

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/plans?user_id=%d", testUser), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list PlansResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Plans, 1)
	assert.Equal(t, planID, list.Plans[0].ID)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/plans/%d", planID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got PlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, planID, got.Plan.ID)
	assert.NotEmpty(t, got.Tasks)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/plans/99999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/plans", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
