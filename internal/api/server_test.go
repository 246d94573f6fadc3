package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/bl4ck0w1/secretlynx/internal/orchestration"
	"github.com/bl4ck0w1/secretlynx/internal/storage"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

type fakeScans struct {
	results  map[string]*models.ScanResult
	progress map[string]*models.ProgressEvent
	startErr error
	started  []models.ScanRequest
}

func (f *fakeScans) StartScan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, req)
	r := models.NewScanResult("scan-new", req, time.Now().UTC())
	return r, nil
}

func (f *fakeScans) GetScanResult(ctx context.Context, id string) (*models.ScanResult, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("scan %s: %w", id, storage.ErrNotFound)
}

func (f *fakeScans) GetProgress(ctx context.Context, id string) (*models.ProgressEvent, error) {
	if p, ok := f.progress[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("progress %s: %w", id, storage.ErrNotFound)
}

func (f *fakeScans) GetStats() map[string]interface{} {
	return map[string]interface{}{"active_scans": 0}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func setupTestServer(t *testing.T) (*Server, *fakeScans, *utils.MetricsCollector) {
	t.Helper()
	done := models.NewScanResult("scan-1", models.ScanRequest{URL: "https://example.com"}, time.Now().UTC())
	scans := &fakeScans{
		results: map[string]*models.ScanResult{"scan-1": done},
		progress: map[string]*models.ProgressEvent{
			"scan-1": {ScanID: "scan-1", Stage: "scanning_js", Progress: 50, Message: "Scanning JavaScript files"},
		},
	}
	metrics := utils.NewMetricsCollector(false)
	require.NoError(t, metrics.RegisterScanMetrics())

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(scans, metrics, logger, "test"), scans, metrics
}

func doRequest(t *testing.T, s *Server, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	s, _, _ := setupTestServer(t)
	code, env := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
	assert.Contains(t, string(env.Data), `"version":"test"`)
}

func TestStartScan(t *testing.T) {
	s, scans, _ := setupTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"url":"https://example.com","user_id":"u-7"}`))
	req.Header.Set("Content-Type", "application/json")

	code, env := doRequest(t, s, req)
	assert.Equal(t, http.StatusAccepted, code)
	assert.True(t, env.Success)

	var result models.ScanResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "scan-new", result.ID)
	assert.Equal(t, models.StatusScanning, result.Status)
	require.Len(t, scans.started, 1)
	assert.Equal(t, "u-7", scans.started[0].UserID)
}

func TestStartScanValidation(t *testing.T) {
	s, scans, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"user_id":"u-7"}`))
	req.Header.Set("Content-Type", "application/json")
	code, env := doRequest(t, s, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "url is required", env.Message)

	req = httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	code, _ = doRequest(t, s, req)
	assert.Equal(t, http.StatusBadRequest, code)

	scans.startErr = fmt.Errorf("%w: unsupported scheme: ftp", orchestration.ErrInvalidTarget)
	req = httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"url":"ftp://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	code, env = doRequest(t, s, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "unsupported scheme")
}

func TestStartScanInternalError(t *testing.T) {
	s, scans, _ := setupTestServer(t)
	scans.startErr = errors.New("disk full")

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	code, env := doRequest(t, s, req)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, env.Success)
	assert.NotContains(t, env.Message, "disk full")
}

func TestGetScan(t *testing.T) {
	s, _, _ := setupTestServer(t)

	code, env := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/scan/scan-1", nil))
	assert.Equal(t, http.StatusOK, code)
	var result models.ScanResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "https://example.com", result.URL)

	code, env = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/scan/missing", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "scan missing not found", env.Message)
}

func TestGetProgress(t *testing.T) {
	s, _, _ := setupTestServer(t)

	code, env := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/scan/scan-1/progress", nil))
	assert.Equal(t, http.StatusOK, code)
	var p models.ProgressEvent
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 50, p.Progress)
	assert.Equal(t, "scanning_js", p.Stage)

	code, _ = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/scan/missing/progress", nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := setupTestServer(t)
	code, env := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, metrics := setupTestServer(t)
	metrics.IncCounter(utils.MetricScansTotal, 1, prometheus.Labels{"status": "completed"})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `secretlynx_scans_total{status="completed"} 1`)
}
