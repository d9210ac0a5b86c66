package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"bacman/api/router/handlers"
	"bacman/core"
	"bacman/database"
	"bacman/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	deps  handlers.Deps
	sent  chan string
	reply string
}

func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	if withDB {
		require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "bacman.db")))
	}
	t.Cleanup(func() { _ = database.CloseDB() })

	env := &testEnv{sent: make(chan string, 16), reply: "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"}
	sender := core.SenderFunc(func(_ context.Context, _ models.Service, raw []byte) ([]byte, error) {
		env.sent <- string(raw)
		return []byte(env.reply), nil
	})
	gate := core.NewActivationGate(models.ActivationState{Active: true, OverrideHeaderText: "Cookie: session=userB"}, nil)
	live := core.NewResultLog(0)
	coord := core.NewCoordinator(gate, &core.ReplayExecutor{Sender: sender}, live, core.CoordinatorOptions{RunID: "run-api"})
	env.deps = handlers.Deps{Gate: gate, Coordinator: coord, Live: live}
	env.srv = httptest.NewServer(NewServerHandler(env.deps))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	status, body := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, status)
	got := decode[map[string]interface{}](t, body)
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, "run-api", got["run_id"])
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, false)
	status, _ := env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGateRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodGet, "/api/gate", "")
	require.Equal(t, http.StatusOK, status)
	got := decode[handlers.GateStatusResponse](t, body)
	assert.True(t, got.Active)
	assert.Equal(t, []models.HeaderLine{{Name: "Cookie", Value: "session=userB"}}, got.ParsedHeaders)
	assert.ElementsMatch(t, []models.ToolOrigin{models.OriginProxy, models.OriginRepeater, models.OriginIntruder}, got.AllowedOrigins)
	assert.Equal(t, "run-api", got.RunID)

	status, body = env.do(t, http.MethodPut, "/api/gate", `{"active":false,"override_headers":"Authorization: Bearer b\nX-Tenant: 2"}`)
	require.Equal(t, http.StatusOK, status)
	got = decode[handlers.GateStatusResponse](t, body)
	assert.False(t, got.Active)
	assert.Len(t, got.ParsedHeaders, 2)
	assert.False(t, env.deps.Gate.Active())

	persisted, err := database.LoadActivationState(models.ActivationState{Active: true})
	require.NoError(t, err)
	assert.False(t, persisted.Active)
	assert.Equal(t, "Authorization: Bearer b\nX-Tenant: 2", persisted.OverrideHeaderText)

	status, body = env.do(t, http.MethodPost, "/api/gate/toggle", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[handlers.GateStatusResponse](t, body).Active)
	persisted, err = database.LoadActivationState(models.ActivationState{})
	require.NoError(t, err)
	assert.True(t, persisted.Active)
}

func TestGateUpdate_BadRequests(t *testing.T) {
	env := newTestEnv(t, false)

	status, _ := env.do(t, http.MethodPut, "/api/gate", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPut, "/api/gate", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decode[models.ErrorResponse](t, body).Message, "Invalid request payload")

	// Without storage the live gate still changes.
	status, _ = env.do(t, http.MethodPut, "/api/gate", `{"active":false}`)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, env.deps.Gate.Active())
}

func TestSubmitProbe(t *testing.T) {
	env := newTestEnv(t, true)

	payload := `{"host":"api.example.com","raw_request":"GET /orders/9 HTTP/1.1\r\nHost: api.example.com\r\nCookie: session=userA\r\n\r\n","original_response":"HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"}`
	status, body := env.do(t, http.MethodPost, "/api/probes", payload)
	require.Equal(t, http.StatusAccepted, status)
	got := decode[map[string]interface{}](t, body)
	assert.Equal(t, true, got["accepted"])
	assert.Equal(t, "run-api", got["run_id"])

	select {
	case raw := <-env.sent:
		assert.Contains(t, raw, "Cookie: session=userB\r\n")
	case <-time.After(5 * time.Second):
		t.Fatal("probe was never replayed")
	}
	env.deps.Coordinator.Wait()

	status, body = env.do(t, http.MethodGet, "/api/results/live", "")
	require.Equal(t, http.StatusOK, status)
	live := decode[[]models.ProbeResult](t, body)
	require.Len(t, live, 1)
	assert.Equal(t, models.RiskHigh, live[0].RiskCategory)
	assert.Equal(t, "https://api.example.com/orders/9", live[0].URL)
	assert.Equal(t, models.OriginRepeater, live[0].Origin)
}

func TestSubmitProbe_Rejected(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodPost, "/api/probes", `{"origin":"scanner","host":"h","raw_request":"GET / HTTP/1.1\r\nHost: h\r\n\r\n"}`)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, false, decode[map[string]interface{}](t, body)["accepted"])

	cases := []string{
		`{"host":"","raw_request":"GET / HTTP/1.1\r\n\r\n"}`,
		`{"host":"h","raw_request":"not a request"}`,
		`{"host":"h","scheme":"ftp","raw_request":"GET / HTTP/1.1\r\n\r\n"}`,
		`{"host":"h","port":70000,"raw_request":"GET / HTTP/1.1\r\n\r\n"}`,
		`[]`,
	}
	for _, c := range cases {
		status, _ := env.do(t, http.MethodPost, "/api/probes", c)
		assert.Equal(t, http.StatusBadRequest, status, c)
	}
}

func TestResultRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	for i, risk := range []models.RiskCategory{models.RiskHigh, models.RiskNone, models.RiskMedium} {
		_, err := database.InsertProbeResult(models.ProbeResult{
			RunID:        "run-api",
			SequenceID:   int64(i + 1),
			Origin:       models.OriginProxy,
			Method:       "GET",
			URL:          "https://api.example.com/x",
			RiskCategory: risk,
			StartedAt:    time.Now(),
		}, "")
		require.NoError(t, err)
	}

	status, body := env.do(t, http.MethodGet, "/api/results", "")
	require.Equal(t, http.StatusOK, status)
	page := decode[handlers.ResultsPage](t, body)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	require.Len(t, page.Results, 3)

	status, body = env.do(t, http.MethodGet, "/api/results?risk=high&limit=1000", "")
	require.Equal(t, http.StatusOK, status)
	page = decode[handlers.ResultsPage](t, body)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 500, page.Limit)
	require.Len(t, page.Results, 1)
	id := page.Results[0].ID

	status, _ = env.do(t, http.MethodGet, "/api/results?risk=critical", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/results/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.RiskHigh, decode[models.StoredProbeResult](t, body).RiskCategory)

	status, _ = env.do(t, http.MethodGet, "/api/results/9999", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodGet, "/api/results/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodDelete, "/api/results", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]int64{"deleted": 3}, decode[map[string]int64](t, body))
}

func TestStorageRoutesWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, false)
	for _, r := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/results", ""},
		{http.MethodGet, "/api/results/1", ""},
		{http.MethodDelete, "/api/results", ""},
		{http.MethodGet, "/api/settings/probe-exclusions", ""},
		{http.MethodPut, "/api/settings/probe-exclusions", "[]"},
	} {
		status, _ := env.do(t, r.method, r.path, r.body)
		assert.Equal(t, http.StatusServiceUnavailable, status, r.method+" "+r.path)
	}

	status, body := env.do(t, http.MethodGet, "/api/results/live", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))
}

func TestProbeExclusionRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodGet, "/api/settings/probe-exclusions", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, _ = env.do(t, http.MethodPut, "/api/settings/probe-exclusions", `[{"id":"1","rule_type":"path_glob","pattern":"*","is_enabled":true}]`)
	assert.Equal(t, http.StatusBadRequest, status)

	rules := `[{"id":"1","rule_type":"file_extension","pattern":".css","description":"","is_enabled":true}]`
	status, _ = env.do(t, http.MethodPut, "/api/settings/probe-exclusions", rules)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/settings/probe-exclusions", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, rules, string(body))
}
