package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/simulator/internal/catalog"
	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
	"github.com/xiaot623/gogo/simulator/internal/repository"
	"github.com/xiaot623/gogo/simulator/internal/service"
	"github.com/xiaot623/gogo/simulator/internal/testutil"
)

const testCatalog = `
personas:
  - id: p1
    system_prompt: You are a tester.
tests:
  - id: t1
    name: Greeting
    flow:
      endpoint: http://agent.invalid/chat
    simulated_user:
      model: gpt-4o
    scenarios:
      - id: s1
        persona: p1
        goal: Say hello
`

type stubExecutor struct {
	mu   sync.Mutex
	keys []string
}

func (s *stubExecutor) Execute(ctx context.Context, test *domain.Test, run *domain.Run, userID, apiKey string, emit events.Sink) domain.RunStatus {
	s.mu.Lock()
	s.keys = append(s.keys, apiKey)
	s.mu.Unlock()
	return domain.RunStatusCompleted
}

func newTestHandler(t *testing.T) (*Handler, *repository.SQLiteStore, *stubExecutor, *service.Service) {
	t.Helper()
	store := testutil.NewStore(t)
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	exec := &stubExecutor{}
	svc := service.New(context.Background(), store, cat, exec, service.Options{})
	t.Cleanup(svc.Wait)
	return NewHandler(svc, "test"), store, exec, svc
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestListTests(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	c, rec := newContext(http.MethodGet, "/v1/tests", "")

	require.NoError(t, h.ListTests(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tests []domain.TestListItem `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tests, 1)
	assert.Equal(t, "t1", resp.Tests[0].TestID)
}

func TestStartRun(t *testing.T) {
	h, store, exec, svc := newTestHandler(t)
	c, rec := newContext(http.MethodPost, "/v1/tests/t1/runs", `{"api_key":"sk-test","user_id":"u1"}`)
	c.SetParamNames("test_id")
	c.SetParamValues("t1")

	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp domain.StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TestID)
	assert.Equal(t, 1, resp.TotalScenarios)

	svc.Wait()
	assert.Equal(t, []string{"sk-test"}, exec.keys)
	run, err := store.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "u1", run.UserID)
}

func TestStartRunKeyFromHeader(t *testing.T) {
	h, _, exec, svc := newTestHandler(t)
	c, rec := newContext(http.MethodPost, "/v1/tests/t1/runs", "")
	c.Request().Header.Set("X-Api-Key", "sk-header")
	c.SetParamNames("test_id")
	c.SetParamValues("t1")

	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.Wait()
	assert.Equal(t, []string{"sk-header"}, exec.keys)
}

func TestStartRunErrors(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	c, rec := newContext(http.MethodPost, "/v1/tests/missing/runs", `{"api_key":"sk"}`)
	c.SetParamNames("test_id")
	c.SetParamValues("missing")
	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newContext(http.MethodPost, "/v1/tests/t1/runs", `{}`)
	c.SetParamNames("test_id")
	c.SetParamValues("t1")
	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrMissingAPIKey.Error(), errorBody(t, rec))

	c, rec = newContext(http.MethodPost, "/v1/tests/t1/runs", `{not json`)
	c.SetParamNames("test_id")
	c.SetParamValues("t1")
	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	testutil.CreateRun(t, store, "r1", "t1")

	c, rec := newContext(http.MethodGet, "/v1/runs/r1", "")
	c.SetParamNames("run_id")
	c.SetParamValues("r1")
	require.NoError(t, h.GetRun(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var run domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, domain.RunStatusPending, run.Status)

	c, rec = newContext(http.MethodGet, "/v1/runs/nope", "")
	c.SetParamNames("run_id")
	c.SetParamValues("nope")
	require.NoError(t, h.GetRun(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	testutil.CreateRun(t, store, "r1", "t1")
	testutil.CreateRun(t, store, "r2", "t1")

	c, rec := newContext(http.MethodGet, "/v1/tests/t1/runs?limit=1", "")
	c.SetParamNames("test_id")
	c.SetParamValues("t1")
	require.NoError(t, h.ListRuns(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []domain.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 1)
}

func TestCancelRun(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	testutil.CreateRun(t, store, "r1", "t1")

	cancel := func() *httptest.ResponseRecorder {
		c, rec := newContext(http.MethodPost, "/v1/runs/r1/cancel", "")
		c.SetParamNames("run_id")
		c.SetParamValues("r1")
		require.NoError(t, h.CancelRun(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, cancel().Code)
	assert.Equal(t, http.StatusConflict, cancel().Code)
}

func TestConversations(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	testutil.CreateRun(t, store, "r1", "t1")
	require.NoError(t, store.CreateConversation(context.Background(), &domain.Conversation{
		ConversationID: "c1",
		RunID:          "r1",
		ScenarioID:     "s1",
		Status:         domain.ConversationStatusRunning,
		StartedAt:      time.Now(),
	}))

	c, rec := newContext(http.MethodGet, "/v1/runs/r1/conversations", "")
	c.SetParamNames("run_id")
	c.SetParamValues("r1")
	require.NoError(t, h.ListConversations(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var list domain.ListConversationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "c1", list.Conversations[0].ConversationID)

	c, rec = newContext(http.MethodGet, "/v1/conversations/c1", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")
	require.NoError(t, h.GetConversation(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(http.MethodGet, "/v1/conversations/nope", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("nope")
	require.NoError(t, h.GetConversation(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedEvents(t *testing.T, store *repository.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	testutil.CreateRun(t, store, "r1", "t1")
	for i, ty := range []domain.EventType{domain.EventTypeRunStart, domain.EventTypeScenarioStart, domain.EventTypeRunComplete, domain.EventTypeComplete} {
		require.NoError(t, store.CreateEvent(ctx, &domain.Event{
			EventID: "e" + string(rune('1'+i)),
			RunID:   "r1",
			Ts:      int64(i + 1),
			Type:    ty,
			Payload: json.RawMessage(`{"run_id":"r1"}`),
		}))
	}
	_, err := store.CompleteRun(ctx, "r1", &domain.RunStats{})
	require.NoError(t, err)
}

func TestGetRunEventsJSON(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	seedEvents(t, store)

	c, rec := newContext(http.MethodGet, "/v1/runs/r1/events?after_ts=1&types=scenario:start,complete", "")
	c.SetParamNames("run_id")
	c.SetParamValues("r1")
	require.NoError(t, h.GetRunEvents(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, domain.EventTypeScenarioStart, resp.Events[0].Type)
	assert.Equal(t, domain.EventTypeComplete, resp.Events[1].Type)

	c, rec = newContext(http.MethodGet, "/v1/runs/nope/events", "")
	c.SetParamNames("run_id")
	c.SetParamValues("nope")
	require.NoError(t, h.GetRunEvents(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunEventsSSE(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	seedEvents(t, store)

	c, rec := newContext(http.MethodGet, "/v1/runs/r1/events", "")
	c.Request().Header.Set("Accept", "text/event-stream")
	c.SetParamNames("run_id")
	c.SetParamValues("r1")
	require.NoError(t, h.GetRunEvents(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "id: e1\nevent: run_start\ndata: {\"run_id\":\"r1\"}\n\n")
	assert.True(t, strings.HasSuffix(body, "event: complete\ndata: {\"run_id\":\"r1\"}\n\n"))
	assert.Equal(t, 4, strings.Count(body, "event: "))
}
