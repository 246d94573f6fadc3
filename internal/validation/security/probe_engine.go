package security

import (
	"context"
	"strings"
	"sync"
	"time"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

// HTTPClient is the subset of the outbound client the probes need.
type HTTPClient interface {
	Get(ctx context.Context, rawURL string) (*models.HTTPResponse, error)
	GetNoRedirect(ctx context.Context, rawURL string) (*models.HTTPResponse, error)
	Options(ctx context.Context, rawURL string, headers map[string]string) (*models.HTTPResponse, error)
}

// Target is the shared input of every probe. Main is nil when the root page
// could not be fetched.
type Target struct {
	BaseURL    string
	Main       *models.HTTPResponse
	Classifier *vhttp.ResponseClassifier
	Client     HTTPClient
	Logger     *logrus.Logger
}

// Join appends path to the base URL with exactly one slash between them.
func (t *Target) Join(path string) string {
	return strings.TrimRight(t.BaseURL, "/") + path
}

type Probe struct {
	Name string
	Run  func(ctx context.Context, t *Target) []models.VulnerabilityTest
}

// DefaultProbes lists the probes in report order.
func DefaultProbes() []Probe {
	return []Probe{
		{Name: "headers", Run: CheckHeaders},
		{Name: "information-disclosure", Run: CheckInformationDisclosure},
		{Name: "sensitive-paths", Run: CheckSensitivePaths},
		{Name: "debug-endpoints", Run: CheckDebugEndpoints},
		{Name: "cors", Run: CheckCORS},
		{Name: "tls", Run: CheckTLS},
		{Name: "misconfiguration", Run: CheckMisconfiguration},
	}
}

type ProbeEngine struct {
	client      HTTPClient
	probes      []Probe
	concurrency int
	logger      *logrus.Logger
	mu          sync.RWMutex
	metrics     *utils.MetricsCollector
}

func NewProbeEngine(client HTTPClient, concurrency int, logger *logrus.Logger) *ProbeEngine {
	if logger == nil {
		logger = logrus.New()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ProbeEngine{
		client:      client,
		probes:      DefaultProbes(),
		concurrency: concurrency,
		logger:      logger,
	}
}

func (e *ProbeEngine) SetMetrics(m *utils.MetricsCollector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Run fetches the root page once, then runs every probe against it. Probes
// execute concurrently but their results keep probe order. Individual request
// failures only drop the affected check.
func (e *ProbeEngine) Run(ctx context.Context, baseURL string) []models.VulnerabilityTest {
	start := time.Now()
	target := &Target{BaseURL: baseURL, Client: e.client, Logger: e.logger}

	main, err := e.client.Get(ctx, baseURL)
	if err != nil {
		e.logger.WithError(err).WithField("url", baseURL).Warn("Root page unavailable for active probes")
		target.Classifier = vhttp.NewResponseClassifier(nil, e.logger)
	} else {
		target.Main = main
		baseline := vhttp.NewBaseline(main.Body)
		target.Classifier = vhttp.NewResponseClassifier(&baseline, e.logger)
	}

	slots := make([][]models.VulnerabilityTest, len(e.probes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range e.probes {
		i, p := i, p
		g.Go(func() error {
			slots[i] = p.Run(gctx, target)
			e.logger.WithFields(logrus.Fields{"probe": p.Name, "results": len(slots[i])}).Debug("Probe finished")
			return nil
		})
	}
	_ = g.Wait()

	var tests []models.VulnerabilityTest
	for _, s := range slots {
		tests = append(tests, s...)
	}
	e.record(tests)

	e.logger.WithFields(logrus.Fields{
		"url":      baseURL,
		"tests":    len(tests),
		"duration": time.Since(start).String(),
	}).Info("Active probes completed")
	return tests
}

func (e *ProbeEngine) record(tests []models.VulnerabilityTest) {
	e.mu.RLock()
	m := e.metrics
	e.mu.RUnlock()
	if m == nil {
		return
	}
	for _, t := range tests {
		m.IncCounter(utils.MetricProbeResults, 1, prometheus.Labels{"test": t.TestName, "status": string(t.Status)})
	}
}

func newTest(name string, status models.TestStatus, sev models.Severity, desc, rec string, details map[string]interface{}) models.VulnerabilityTest {
	if details == nil {
		details = map[string]interface{}{}
	}
	return models.VulnerabilityTest{
		TestName:       name,
		Status:         status,
		Severity:       sev,
		Description:    desc,
		Recommendation: rec,
		Details:        details,
	}
}
