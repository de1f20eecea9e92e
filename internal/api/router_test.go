package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamflow/analytics-core/internal/api/handlers"
	"github.com/streamflow/analytics-core/internal/config"
	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/metrics"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/stream"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/internal/websocket"
)

type testServer struct {
	router   *gin.Engine
	engine   *rules.Engine
	alertMgr *alerts.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	windows := window.NewManager(5*time.Second, time.Minute, 0, log)
	engine := rules.NewEngine(windows, log)
	alertMgr := alerts.NewManager(nil, nil, alerts.Options{}, log)
	queue := stream.NewMemoryQueue(64)
	coordinator := stream.NewCoordinator(queue, engine, windows, alertMgr, nil, stream.Options{
		Workers:        1,
		DequeueTimeout: 10 * time.Millisecond,
		SweepInterval:  time.Hour,
		TickInterval:   time.Hour,
	}, log)
	coordinator.Start(context.Background())
	t.Cleanup(coordinator.Stop)

	hub := websocket.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Close)

	collector := metrics.NewCollector("test")
	h := handlers.NewHandlers(cfg, engine, alertMgr, coordinator, hub, nil, nil, nil, log)
	return &testServer{
		router:   NewRouter(cfg, h, hub, collector, log),
		engine:   engine,
		alertMgr: alertMgr,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func validRuleBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"name":      "High Error Rate",
		"condition": "count >= 50",
		"severity":  "high",
		"window": map[string]interface{}{
			"kind": "tumbling",
			"size": "1m",
		},
		"suppression": "5m",
		"channels":    []string{"slack"},
	}
}

func TestRules_CRUD(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/rules", validRuleBody("r1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/rules/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rule rules.Rule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, "count >= 50", rule.Condition)
	assert.Equal(t, 5*time.Minute, rule.Suppression)

	w = s.do(t, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := validRuleBody("r1")
	body["condition"] = "count >= 100"
	w = s.do(t, http.MethodPut, "/api/v1/rules/r1", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/rules/r1/enabled", map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	got, err := s.engine.Get("r1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	w = s.do(t, http.MethodDelete, "/api/v1/rules/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err = s.engine.Get("r1")
	assert.Error(t, err)
}

func TestRules_BadRequests(t *testing.T) {
	s := newTestServer(t)

	body := validRuleBody("bad")
	body["condition"] = "count >"
	w := s.do(t, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = validRuleBody("bad-window")
	body["window"] = map[string]interface{}{"kind": "hopping", "size": "1m"}
	w = s.do(t, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/rules", validRuleBody("dup"))
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/rules", validRuleBody("dup"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/rules/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents_Ingest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type":   "api_error",
		"source": "gateway",
		"data":   map[string]interface{}{"value": 1.5},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["event_id"])

	w = s.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{"source": "no-type"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlerts_AcknowledgeAndResolve(t *testing.T) {
	s := newTestServer(t)

	rule := &rules.Rule{
		ID:        "r1",
		Name:      "r1",
		Condition: "count >= 1",
		Window:    window.Spec{Kind: window.KindTumbling, Size: time.Minute},
		Severity:  types.SeverityHigh,
		Enabled:   true,
	}
	require.NoError(t, s.engine.Register(rule))
	alert, _ := s.alertMgr.HandleMatch(context.Background(), rules.Match{
		RuleID: "r1", RuleName: "r1", Severity: types.SeverityHigh,
	}, rule, time.Now())

	w := s.do(t, http.MethodGet, "/api/v1/alerts?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID.String()+"/acknowledge",
		map[string]interface{}{"by": "oncall"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID.String()+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/alerts/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats alerts.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Resolved)

	w = s.do(t, http.MethodPost, "/api/v1/alerts/not-a-uuid/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/alerts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
