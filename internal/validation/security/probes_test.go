package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const homePage = `<!DOCTYPE html><html><head><title>My Application Home</title></head><body><div id="root"></div></body></html>`

func newVulnerableSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Server", "nginx/1.18.0 (Ubuntu)")
			w.Header().Set("X-Powered-By", "Express")
			_, _ = w.Write([]byte(homePage))
		case "/.env":
			_, _ = w.Write([]byte("API_KEY=abc123\nSECRET=shh\n"))
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/debug":
			_, _ = w.Write([]byte(`{"status":"ok","version":"1.2"}`))
		case "/admin":
			_, _ = w.Write([]byte(homePage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEngine() *ProbeEngine {
	client := vhttp.NewClient(models.HTTPConfig{Timeout: 5 * time.Second}, nil)
	return NewProbeEngine(client, 4, nil)
}

func findTest(tests []models.VulnerabilityTest, name string) *models.VulnerabilityTest {
	for i := range tests {
		if tests[i].TestName == name {
			return &tests[i]
		}
	}
	return nil
}

func TestProbeEngineRun(t *testing.T) {
	srv := newVulnerableSite(t)
	tests := newEngine().Run(context.Background(), srv.URL)
	require.NotEmpty(t, tests)

	// header results come first and keep header order
	require.GreaterOrEqual(t, len(tests), 6)
	assert.Equal(t, "CSP Header", tests[0].TestName)
	assert.Equal(t, models.TestPass, tests[0].Status)
	assert.Equal(t, "X-Frame-Options Header", tests[1].TestName)
	assert.Equal(t, models.TestPass, tests[1].Status)
	assert.Equal(t, "HSTS Header", tests[3].TestName)
	assert.Equal(t, models.TestFail, tests[3].Status)
	assert.Equal(t, models.SeverityMedium, tests[3].Severity)
	assert.Equal(t, "Implement HSTS header to improve security", tests[3].Recommendation)

	exposure := findTest(tests, "Sensitive File Exposure")
	require.NotNil(t, exposure)
	assert.Equal(t, models.SeverityHigh, exposure.Severity)
	assert.Equal(t, "/.env, /robots.txt", exposure.Details["accessible_paths"])
	assert.Equal(t, 2, exposure.Details["count"])
	assert.Equal(t, "Sensitive files are publicly accessible: /.env, /robots.txt", exposure.Description)

	debug := findTest(tests, "Debug Endpoint Exposure")
	require.NotNil(t, debug)
	assert.Equal(t, "/debug", debug.Details["exposed_endpoints"])

	cors := findTest(tests, "CORS Misconfiguration")
	require.NotNil(t, cors)
	assert.Equal(t, "*", cors.Details["allow_origin"])

	tls := findTest(tests, "HTTPS Enforcement")
	require.NotNil(t, tls)
	assert.Equal(t, models.SeverityHigh, tls.Severity)

	server := findTest(tests, "Server Information Disclosure")
	require.NotNil(t, server)
	assert.Equal(t, "nginx/1.18.0 (Ubuntu)", server.Details["server_header"])
	assert.Equal(t, "1.18.0", server.Details["server_version"])

	tech := findTest(tests, "Technology Disclosure")
	require.NotNil(t, tech)
	assert.Equal(t, "Express", tech.Details["powered_by"])

	assert.Nil(t, findTest(tests, "Information Disclosure"))
	assert.Nil(t, findTest(tests, "Directory Traversal Protection"))

	// probe order: headers, disclosure, paths, debug, cors, tls, misconfiguration
	idx := func(name string) int {
		for i := range tests {
			if tests[i].TestName == name {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("Sensitive File Exposure"), idx("Debug Endpoint Exposure"))
	assert.Less(t, idx("Debug Endpoint Exposure"), idx("CORS Misconfiguration"))
	assert.Less(t, idx("CORS Misconfiguration"), idx("HTTPS Enforcement"))
	assert.Less(t, idx("HTTPS Enforcement"), idx("Server Information Disclosure"))
}

func TestProbeEngineCleanSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		for _, h := range SecurityHeaders {
			w.Header().Set(h.Header, "set")
		}
		_, _ = w.Write([]byte(homePage))
	}))
	defer srv.Close()

	tests := newEngine().Run(context.Background(), srv.URL)
	for _, h := range SecurityHeaders {
		tt := findTest(tests, h.Name+" Header")
		require.NotNil(t, tt)
		assert.Equal(t, models.TestPass, tt.Status)
		assert.Equal(t, "Header properly configured", tt.Recommendation)
	}
	pass := findTest(tests, "Directory Traversal Protection")
	require.NotNil(t, pass)
	assert.Equal(t, models.SeverityInfo, pass.Severity)
	assert.Nil(t, findTest(tests, "Debug Endpoint Exposure"))
	assert.Nil(t, findTest(tests, "CORS Configuration"))
}

func TestCatchAllSiteReportsNoExposure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(homePage))
	}))
	defer srv.Close()

	tests := newEngine().Run(context.Background(), srv.URL)
	assert.NotNil(t, findTest(tests, "Directory Traversal Protection"))
	assert.Nil(t, findTest(tests, "Debug Endpoint Exposure"))
}

func TestInformationDisclosure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/nonexistent" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Unhandled Exception at line 42"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := vhttp.NewClient(models.HTTPConfig{Timeout: 5 * time.Second}, nil)
	tests := CheckInformationDisclosure(context.Background(), &Target{BaseURL: srv.URL + "/", Client: client})
	require.Len(t, tests, 1)
	assert.Equal(t, "/api/nonexistent", tests[0].Details["path"])
	assert.Equal(t, "500", tests[0].Details["status_code"])
}

type stubClient struct {
	responses map[string]*models.HTTPResponse
}

func (s *stubClient) lookup(u string) (*models.HTTPResponse, error) {
	if r, ok := s.responses[u]; ok {
		return r, nil
	}
	return nil, errors.New("connection refused")
}

func (s *stubClient) Get(_ context.Context, u string) (*models.HTTPResponse, error) {
	return s.lookup(u)
}

func (s *stubClient) GetNoRedirect(_ context.Context, u string) (*models.HTTPResponse, error) {
	return s.lookup(u)
}

func (s *stubClient) Options(_ context.Context, u string, _ map[string]string) (*models.HTTPResponse, error) {
	return s.lookup(u)
}

func TestCheckTLS(t *testing.T) {
	redirecting := &stubClient{responses: map[string]*models.HTTPResponse{
		"http://example.com": {StatusCode: http.StatusMovedPermanently},
	}}
	tests := CheckTLS(context.Background(), &Target{BaseURL: "https://example.com", Client: redirecting})
	require.Len(t, tests, 1)
	assert.Equal(t, "HTTPS Redirect", tests[0].TestName)
	assert.Equal(t, models.TestPass, tests[0].Status)

	plain := &stubClient{responses: map[string]*models.HTTPResponse{
		"http://example.com": {StatusCode: http.StatusOK},
	}}
	tests = CheckTLS(context.Background(), &Target{BaseURL: "https://example.com", Client: plain})
	require.Len(t, tests, 1)
	assert.Equal(t, models.TestFail, tests[0].Status)
	assert.Equal(t, models.SeverityMedium, tests[0].Severity)

	unreachable := &stubClient{}
	assert.Empty(t, CheckTLS(context.Background(), &Target{BaseURL: "https://example.com", Client: unreachable}))
}

func TestCheckCORSSpecificOrigin(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "https://app.example.com")
	client := &stubClient{responses: map[string]*models.HTTPResponse{
		"https://example.com": {StatusCode: http.StatusNoContent, Headers: h},
	}}
	tests := CheckCORS(context.Background(), &Target{BaseURL: "https://example.com", Client: client})
	require.Len(t, tests, 1)
	assert.Equal(t, "CORS Configuration", tests[0].TestName)
	assert.Equal(t, models.TestPass, tests[0].Status)
}

func TestRootUnavailable(t *testing.T) {
	engine := NewProbeEngine(&stubClient{}, 2, nil)
	tests := engine.Run(context.Background(), "https://down.example.com")
	require.Len(t, tests, 1)
	assert.Equal(t, "Directory Traversal Protection", tests[0].TestName)
}

func TestCollectSecurityHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Strict-Transport-Security", "max-age=63072000")
	h.Set("Server", "nginx")
	got := CollectSecurityHeaders(&models.HTTPResponse{Headers: h})
	assert.Equal(t, map[string]string{"strict-transport-security": "max-age=63072000"}, got)
	assert.Empty(t, CollectSecurityHeaders(nil))
}
