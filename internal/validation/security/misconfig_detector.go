package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"github.com/Masterminds/semver/v3"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

type headerRule struct {
	Header      string
	Name        string
	Description string
}

// SecurityHeaders are checked on the root response, in this order.
var SecurityHeaders = []headerRule{
	{"content-security-policy", "CSP", "Prevents XSS and code injection attacks"},
	{"x-frame-options", "X-Frame-Options", "Prevents clickjacking attacks"},
	{"x-content-type-options", "X-Content-Type-Options", "Prevents MIME type sniffing"},
	{"strict-transport-security", "HSTS", "Enforces HTTPS connections"},
	{"referrer-policy", "Referrer-Policy", "Controls referrer information"},
	{"permissions-policy", "Permissions-Policy", "Controls browser features"},
}

var errorPagePaths = []string{
	"/nonexistent-page-404",
	"/admin/login",
	"/api/nonexistent",
}

const probeOrigin = "https://evil.com"

var disclosingServers = []string{"apache", "nginx", "iis"}

var reProductVersion = regexp.MustCompile(`/v?(\d+(?:\.\d+){0,2}[0-9A-Za-z.+\-]*)`)

func hasHeader(h http.Header, name string) bool {
	if h == nil {
		return false
	}
	_, ok := h[http.CanonicalHeaderKey(name)]
	return ok
}

// CollectSecurityHeaders returns the security headers present on resp keyed by
// their lowercase names.
func CollectSecurityHeaders(resp *models.HTTPResponse) map[string]string {
	out := map[string]string{}
	if resp == nil {
		return out
	}
	for _, rule := range SecurityHeaders {
		if hasHeader(resp.Headers, rule.Header) {
			out[rule.Header] = resp.Headers.Get(rule.Header)
		}
	}
	return out
}

func CheckHeaders(_ context.Context, t *Target) []models.VulnerabilityTest {
	if t.Main == nil {
		return nil
	}
	tests := make([]models.VulnerabilityTest, 0, len(SecurityHeaders))
	for _, rule := range SecurityHeaders {
		details := map[string]interface{}{"header": rule.Header}
		desc := "Security header check: " + rule.Description
		if hasHeader(t.Main.Headers, rule.Header) {
			tests = append(tests, newTest(rule.Name+" Header", models.TestPass, models.SeverityInfo,
				desc, "Header properly configured", details))
			continue
		}
		tests = append(tests, newTest(rule.Name+" Header", models.TestFail, models.SeverityMedium,
			desc, fmt.Sprintf("Implement %s header to improve security", rule.Name), details))
	}
	return tests
}

// CheckInformationDisclosure requests paths that should produce error pages
// and flags pages that leak stack traces or debug output.
func CheckInformationDisclosure(ctx context.Context, t *Target) []models.VulnerabilityTest {
	var tests []models.VulnerabilityTest
	for _, path := range errorPagePaths {
		resp, err := t.Client.Get(ctx, t.Join(path))
		if err != nil {
			continue
		}
		if !disclosesInternals(resp.Body) {
			continue
		}
		tests = append(tests, newTest("Information Disclosure", models.TestFail, models.SeverityMedium,
			"Error pages reveal sensitive information",
			"Configure custom error pages that don't expose system details",
			map[string]interface{}{
				"path":        path,
				"status_code": fmt.Sprintf("%d", resp.StatusCode),
			}))
	}
	return tests
}

func disclosesInternals(body string) bool {
	lower := strings.ToLower(body)
	return containsAny(lower, "stack trace", "debug", "exception") ||
		containsAny(body, "at line", "file not found:")
}

// CheckCORS sends a preflight from a foreign origin. No result is produced
// when the server does not answer with Access-Control-Allow-Origin.
func CheckCORS(ctx context.Context, t *Target) []models.VulnerabilityTest {
	resp, err := t.Client.Options(ctx, t.BaseURL, map[string]string{
		"Origin":                        probeOrigin,
		"Access-Control-Request-Method": "POST",
	})
	if err != nil || !hasHeader(resp.Headers, "access-control-allow-origin") {
		return nil
	}
	origin := resp.Header("Access-Control-Allow-Origin")
	if origin == "*" {
		return []models.VulnerabilityTest{newTest("CORS Misconfiguration", models.TestFail, models.SeverityMedium,
			"CORS allows all origins (*)", "Restrict CORS to specific trusted domains",
			map[string]interface{}{"allow_origin": origin})}
	}
	return []models.VulnerabilityTest{newTest("CORS Configuration", models.TestPass, models.SeverityInfo,
		"CORS is properly configured", "Continue monitoring CORS configuration", nil)}
}

// CheckTLS fails plain-http targets outright. For https targets it requests
// the http:// variant without following redirects and expects a 3xx.
func CheckTLS(ctx context.Context, t *Target) []models.VulnerabilityTest {
	if strings.HasPrefix(t.BaseURL, "http://") {
		return []models.VulnerabilityTest{newTest("HTTPS Enforcement", models.TestFail, models.SeverityHigh,
			"Website is not using HTTPS", "Implement HTTPS and redirect all HTTP traffic to HTTPS", nil)}
	}
	httpURL := strings.Replace(t.BaseURL, "https://", "http://", 1)
	resp, err := t.Client.GetNoRedirect(ctx, httpURL)
	if err != nil {
		return nil
	}
	if resp.IsRedirect() {
		return []models.VulnerabilityTest{newTest("HTTPS Redirect", models.TestPass, models.SeverityInfo,
			"HTTP traffic is properly redirected to HTTPS", "Continue enforcing HTTPS redirects", nil)}
	}
	return []models.VulnerabilityTest{newTest("HTTPS Redirect", models.TestFail, models.SeverityMedium,
		"HTTP traffic is not redirected to HTTPS", "Configure server to redirect all HTTP requests to HTTPS", nil)}
}

// CheckMisconfiguration flags version-revealing Server and X-Powered-By
// headers on the root response.
func CheckMisconfiguration(_ context.Context, t *Target) []models.VulnerabilityTest {
	if t.Main == nil {
		return nil
	}
	var tests []models.VulnerabilityTest

	if server := t.Main.Header("Server"); server != "" && containsAny(strings.ToLower(server), disclosingServers...) {
		details := map[string]interface{}{"server_header": server}
		if v := productVersion(server); v != "" {
			details["server_version"] = v
		}
		tests = append(tests, newTest("Server Information Disclosure", models.TestFail, models.SeverityLow,
			"Server header reveals server software information",
			"Hide or modify server header to prevent information disclosure", details))
	}

	if hasHeader(t.Main.Headers, "x-powered-by") {
		poweredBy := t.Main.Header("X-Powered-By")
		details := map[string]interface{}{"powered_by": poweredBy}
		if v := productVersion(poweredBy); v != "" {
			details["powered_by_version"] = v
		}
		tests = append(tests, newTest("Technology Disclosure", models.TestFail, models.SeverityLow,
			"X-Powered-By header reveals technology stack",
			"Remove X-Powered-By header to prevent technology disclosure", details))
	}
	return tests
}

// productVersion extracts a product/version token such as nginx/1.18.0.
func productVersion(header string) string {
	m := reProductVersion.FindStringSubmatch(header)
	if len(m) < 2 {
		return ""
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return ""
	}
	return v.String()
}
