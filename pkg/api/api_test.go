package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/quant-pricing-engine/internal/runner"
	"github.com/rzzdr/quant-pricing-engine/internal/store"
	"github.com/rzzdr/quant-pricing-engine/pkg/metrics"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

const cashID = "KRWCASH(DESK)"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	server   *Server
	runner   *runner.Runner
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	r := runner.NewRunner(runner.Config{Workers: 2}, store.NewInMemoryRunStore(10), store.NewInMemoryValueHistory(10))
	reg := prometheus.NewRegistry()
	srv := NewServer(Config{
		CORS: CORSConfig{
			AllowedOrigins: []string{"https://desk.example"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		},
	}, r, nil, metrics.NewRecorder(reg))
	return &testServer{server: srv, runner: r, registry: reg}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func portfolio(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("../../internal/scenario/testdata/portfolio.yaml")
	require.NoError(t, err)
	return b
}

func submit(t *testing.T, ts *testServer, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs"+query, bytes.NewReader(portfolio(t)))
	req.Header.Set("Content-Type", "application/x-yaml")
	return ts.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func resultFor(t *testing.T, event models.RunEvent, id string) models.Result {
	t.Helper()
	for _, res := range event.Results {
		if res.InstrumentID == id {
			return res
		}
	}
	require.Failf(t, "missing result", "no result for %s", id)
	return models.Result{}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "websocket_clients")
}

func TestSubmitAndWait(t *testing.T) {
	ts := newTestServer(t)

	rec := submit(t, ts, "?wait=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	event := decode[models.RunEvent](t, rec)
	assert.Equal(t, models.RunStatusCompleted, event.Run.Status)
	assert.Equal(t, "KRW", event.Run.RepresentationCurrency)
	assert.Equal(t, 2, event.Run.Groups)
	require.Len(t, event.Results, 5)

	cash := resultFor(t, event, cashID)
	require.NotNil(t, cash.Value)
	assert.Equal(t, "1000000", cash.Value.String())
}

func TestSubmitInBackgroundThenReadResults(t *testing.T) {
	ts := newTestServer(t)

	rec := submit(t, ts, "?workers=1")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	run := decode[models.Run](t, rec)
	assert.Equal(t, "/api/v1/runs/"+run.ID, rec.Header().Get("Location"))
	ts.runner.Wait()

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RunStatusCompleted, decode[models.Run](t, rec).Status)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/results?currency=usd", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	event := decode[models.RunEvent](t, rec)
	cash := resultFor(t, event, cashID)
	assert.Equal(t, "USD", cash.RepresentationCurrency)
	assert.InDelta(t, 1_000_000.0/1300, cash.Value.InexactFloat64(), 1e-6)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/results?currency=EUR", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "configuration", decode[map[string]string](t, rec)["type"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/results?currency=XYZ", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(`{"instruments": []}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/csv")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/runs?format=toml", bytes.NewReader([]byte("x")))
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	assert.Equal(t, http.StatusBadRequest, submit(t, ts, "?workers=0").Code)
	assert.Equal(t, http.StatusBadRequest, submit(t, ts, "?currency=ABC").Code)
	assert.Empty(t, ts.runner.List())
}

func TestFailedRunIsReported(t *testing.T) {
	ts := newTestServer(t)

	rec := submit(t, ts, "?wait=true&currency=EUR")
	require.Equal(t, http.StatusOK, rec.Code)
	event := decode[models.RunEvent](t, rec)
	assert.Equal(t, models.RunStatusFailed, event.Run.Status)
	assert.Contains(t, event.Run.Error, "KRWEUR")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+event.Run.ID+"/results", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteRunAndHistory(t *testing.T) {
	ts := newTestServer(t)
	event := decode[models.RunEvent](t, submit(t, ts, "?wait=true"))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/instruments/"+cashID+"/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		InstrumentID string             `json:"instrument_id"`
		Values       []store.ValuePoint `json:"values"`
	}](t, rec)
	assert.Equal(t, cashID, history.InstrumentID)
	require.Len(t, history.Values, 1)
	assert.Equal(t, 1_000_000.0, history.Values[0].Value)

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+event.Run.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+event.Run.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["type"])
	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+event.Run.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSAndUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://desk.example")
	rec := ts.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	assert.Empty(t, ts.do(req).Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil)).Code)
}

func TestRequestsAreMeasuredByRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/a", nil))
	ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/b", nil))

	families, err := ts.registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "qpe_api_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["path"] == "/api/v1/runs/:id" && labels["status"] == "404" {
				found = true
				assert.Equal(t, 2.0, m.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found)
	n, err := testutil.GatherAndCount(ts.registry, "qpe_api_latency_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.InvalidArgumentf("x")))
	assert.Equal(t, http.StatusNotImplemented, statusFor(errors.Unsupportedf("x")))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.WithType(errors.New("x"), errors.ErrorTypeNetwork)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.Consistencyf("x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.Unavailablef("x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.Computationf("x")))
}

func TestSubmitRateLimit(t *testing.T) {
	r := runner.NewRunner(runner.Config{Workers: 1}, store.NewInMemoryRunStore(10), store.NewInMemoryValueHistory(10))
	srv := NewServer(Config{SubmitRate: 0.001, SubmitBurst: 1}, r, nil, nil)

	post := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, post("192.0.2.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, post("192.0.2.1:1234"))
	assert.Equal(t, http.StatusBadRequest, post("192.0.2.2:1234"))
	// reads are not limited
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
