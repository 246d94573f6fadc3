package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

// Client is the outbound transport shared by the orchestrator and the probes.
// Every request is rate limited per host and bounded by the configured timeout.
type Client struct {
	client       *http.Client
	noRedirect   *http.Client
	timeout      time.Duration
	maxRedirects int
	maxBodyBytes int64
	userAgent    string
	limiter      *HostRateLimiter
	logger       *logrus.Logger
	mu           sync.RWMutex
	metrics      *utils.MetricsCollector
}

func NewClient(config models.HTTPConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 10 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; SecretLynx/1.0)"
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.InsecureTLS,
			NextProtos:         []string{"h2", "http/1.1"},
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	noRedirect := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		client:       client,
		noRedirect:   noRedirect,
		timeout:      config.Timeout,
		maxRedirects: maxRedirects,
		maxBodyBytes: config.MaxBodyBytes,
		userAgent:    config.UserAgent,
		limiter:      NewHostRateLimiter(config.RateLimit, config.Burst, logger),
		logger:       logger,
	}
}

func (c *Client) SetMetrics(m *utils.MetricsCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

func (c *Client) Get(ctx context.Context, rawURL string) (*models.HTTPResponse, error) {
	return c.do(ctx, c.client, http.MethodGet, rawURL, nil)
}

// GetNoRedirect returns the first response as-is, including 3xx.
func (c *Client) GetNoRedirect(ctx context.Context, rawURL string) (*models.HTTPResponse, error) {
	return c.do(ctx, c.noRedirect, http.MethodGet, rawURL, nil)
}

func (c *Client) Options(ctx context.Context, rawURL string, headers map[string]string) (*models.HTTPResponse, error) {
	return c.do(ctx, c.noRedirect, http.MethodOptions, rawURL, headers)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, rawURL string, headers map[string]string) (*models.HTTPResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	rt := time.Since(start)
	c.observe(method, rt)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	c.limiter.Feedback(u.Host, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	truncated := int64(len(body)) > c.maxBodyBytes
	if truncated {
		body = body[:c.maxBodyBytes]
		c.logger.Warnf("Response body from %s truncated at %d bytes", rawURL, c.maxBodyBytes)
	}

	cl := resp.ContentLength
	if cl < 0 {
		cl = int64(len(body))
	}

	return &models.HTTPResponse{
		URL:           rawURL,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Headers:       resp.Header.Clone(),
		Body:          string(body),
		ResponseTime:  rt,
		Protocol:      resp.Proto,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: cl,
		Truncated:     truncated,
		Timestamp:     time.Now(),
	}, nil
}

func (c *Client) observe(method string, d time.Duration) {
	c.mu.RLock()
	m := c.metrics
	c.mu.RUnlock()
	if m != nil {
		m.ObserveHistogram(utils.MetricFetchDuration, d.Seconds(), prometheus.Labels{"kind": strings.ToLower(method)})
	}
}

func (c *Client) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"timeout":        c.timeout.String(),
		"max_redirects":  c.maxRedirects,
		"max_body_bytes": c.maxBodyBytes,
		"user_agent":     c.userAgent,
		"rate_limiter":   c.limiter.GetStats(),
	}
}

// ResolveURL resolves ref against base the way a browser would for src/href
// attributes. Unparseable input falls back to simple joining.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	b, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
	}
	r, err := url.Parse(ref)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
	}
	if strings.HasPrefix(ref, "//") && b.Scheme == "" {
		r.Scheme = "https"
	}
	return b.ResolveReference(r).String()
}
