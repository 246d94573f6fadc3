package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"github.com/bl4ck0w1/secretlynx/internal/discovery"
	"github.com/bl4ck0w1/secretlynx/internal/reporting"
	"github.com/bl4ck0w1/secretlynx/internal/validation/content_analysis"
	"github.com/bl4ck0w1/secretlynx/internal/validation/security"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*models.HTTPResponse, error)
}

type Store interface {
	SaveScanResult(ctx context.Context, result *models.ScanResult) error
	GetScanResult(ctx context.Context, id string) (*models.ScanResult, error)
	UpdateProgress(ctx context.Context, id string, event models.ProgressEvent) error
	GetProgress(ctx context.Context, id string) (*models.ProgressEvent, error)
}

type RecommendationGenerator interface {
	Generate(ctx context.Context, findings []models.Finding, url, summary string) (string, error)
}

type ProbeRunner interface {
	Run(ctx context.Context, baseURL string) []models.VulnerabilityTest
}

var (
	ErrScanNotActive = errors.New("scan is not running")
	ErrInvalidTarget = errors.New("invalid target url")
)

type Dependencies struct {
	Fetcher       Fetcher
	Store         Store
	Generator     RecommendationGenerator
	Probes        ProbeRunner
	Credentials   *content_analysis.CredentialScanner
	Fingerprinter *discovery.Fingerprinter
	Scorer        *reporting.RiskScorer
	Metrics       *utils.MetricsCollector
}

// ScanContext is the live handle of a running scan.
type ScanContext struct {
	ScanID    string
	URL       string
	StartTime time.Time
	workflow  *Workflow
	cancel    context.CancelFunc
	done      chan struct{}
}

func (sc *ScanContext) Stage() Stage {
	return sc.workflow.Stage()
}

// Scanner drives scans from the initial request to a persisted terminal
// snapshot. Each scan runs on its own goroutine, detached from the caller.
type Scanner struct {
	deps        Dependencies
	config      models.ScannerConfig
	logger      *logrus.Logger
	slots       *semaphore.Weighted
	mu          sync.RWMutex
	activeScans map[string]*ScanContext
	newID       func() string
	now         func() time.Time
}

func NewScanner(deps Dependencies, config models.ScannerConfig, logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Fetcher == nil || deps.Store == nil || deps.Generator == nil {
		return nil, fmt.Errorf("fetcher, store and recommendation generator are required")
	}
	if deps.Credentials == nil {
		deps.Credentials = content_analysis.NewCredentialScanner(nil, nil, logger)
	}
	if deps.Fingerprinter == nil {
		deps.Fingerprinter = discovery.NewFingerprinter(logger)
	}
	if deps.Scorer == nil {
		deps.Scorer = reporting.NewRiskScorer()
	}
	if config.ResourceConcurrency <= 0 {
		config.ResourceConcurrency = 8
	}
	if config.MaxConcurrentScans <= 0 {
		config.MaxConcurrentScans = 5
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 10 * time.Minute
	}

	return &Scanner{
		deps:        deps,
		config:      config,
		logger:      logger,
		slots:       semaphore.NewWeighted(int64(config.MaxConcurrentScans)),
		activeScans: make(map[string]*ScanContext),
		newID:       utils.GenerateUUID,
		now:         time.Now,
	}, nil
}

// StartScan validates the request, persists the initial scanning snapshot and
// returns it. The scan itself continues in the background.
func (s *Scanner) StartScan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error) {
	target, err := utils.NormalizeTargetURL(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	req.URL = target

	result := models.NewScanResult(s.newID(), req, s.now().UTC())
	if err := s.deps.Store.SaveScanResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist scan: %w", err)
	}

	entry := s.logger.WithFields(logrus.Fields{"scan_id": result.ID, "target": target})
	wf := NewWorkflow(result.ID, s.deps.Store, entry)
	wf.publish(ctx, StageCreated, checkpoints[StageCreated].Progress, checkpoints[StageCreated].Message)

	scanCtx, cancel := context.WithTimeout(context.Background(), s.config.ScanTimeout)
	sc := &ScanContext{
		ScanID:    result.ID,
		URL:       target,
		StartTime: result.StartTime,
		workflow:  wf,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.activeScans[result.ID] = sc
	s.mu.Unlock()

	go s.executeScan(scanCtx, sc, result.Clone())

	entry.Info("Scan started")
	return result, nil
}

func (s *Scanner) executeScan(ctx context.Context, sc *ScanContext, result *models.ScanResult) {
	defer func() {
		sc.cancel()
		s.mu.Lock()
		delete(s.activeScans, sc.ScanID)
		s.mu.Unlock()
		close(sc.done)
	}()

	log := s.logger.WithFields(logrus.Fields{"scan_id": sc.ScanID, "target": sc.URL})

	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.fail(ctx, sc, result, fmt.Errorf("waiting for a scan slot: %w", err), log)
		return
	}
	defer s.slots.Release(1)

	s.metricsAdd(utils.MetricScansActive, 1, nil)
	defer s.metricsAdd(utils.MetricScansActive, -1, nil)

	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, sc, result, fmt.Errorf("scan panicked: %v", r), log)
		}
	}()

	if err := s.perform(ctx, sc, result, log); err != nil {
		s.fail(ctx, sc, result, err, log)
		return
	}
	s.complete(ctx, sc, result, log)
}

// perform runs every non-terminal stage. Only a root fetch failure, a
// recommendation failure or a cancelled context end the scan early.
func (s *Scanner) perform(ctx context.Context, sc *ScanContext, result *models.ScanResult, log *logrus.Entry) error {
	wf := sc.workflow

	if err := wf.Advance(ctx, StageFetching, ""); err != nil {
		return err
	}
	root, err := s.deps.Fetcher.Get(ctx, sc.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", sc.URL, err)
	}
	if !root.OK() {
		log.WithField("status", root.StatusCode).Warn("Root page returned a non-200 status")
	}
	html := root.Body

	if err := wf.Advance(ctx, StageAnalyzing, ""); err != nil {
		return err
	}
	analysis := s.deps.Fingerprinter.Analyze(html, sc.URL)
	analysis.SecurityHeaders = security.CollectSecurityHeaders(root)
	resources := discovery.ExtractResources(html, sc.URL, s.logger)

	result.SecurityAnalysis = analysis
	result.TotalChecks = resources.Checks()
	findings := s.deps.Credentials.Scan(html, "HTML")
	result.CompletedChecks = 1
	result.SetFindings(findings)
	s.checkpoint(ctx, result, log)

	if err := wf.Advance(ctx, StageScanningJS, ""); err != nil {
		return err
	}
	findings = append(findings, s.scanRemote(ctx, resources.ScriptURLs, "JavaScript", "script", log)...)
	result.CompletedChecks += len(resources.ScriptURLs)
	for _, inline := range resources.InlineScripts {
		findings = append(findings, s.deps.Credentials.Scan(inline, "Inline JavaScript")...)
		result.CompletedChecks++
	}
	result.SetFindings(findings)
	s.checkpoint(ctx, result, log)

	if err := wf.Advance(ctx, StageScanningCSS, ""); err != nil {
		return err
	}
	findings = append(findings, s.scanRemote(ctx, resources.StylesheetURLs, "CSS", "stylesheet", log)...)
	result.CompletedChecks += len(resources.StylesheetURLs)
	result.SetFindings(findings)
	s.checkpoint(ctx, result, log)

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.config.ActiveProbes && s.deps.Probes != nil {
		if err := wf.Advance(ctx, StageProbing, ""); err != nil {
			return err
		}
		tests := s.deps.Probes.Run(ctx, sc.URL)
		result.SecurityTests = tests
		result.Compliance = s.deps.Scorer.Compliance(analysis.SecurityHeaders, tests)
	}
	score := s.deps.Scorer.Score(result.Findings, result.SecurityTests)
	result.SecurityScore = &score

	if err := wf.Advance(ctx, StageGenerating, ""); err != nil {
		return err
	}
	summary := BuildContentSummary(SummaryInput{
		URL:           sc.URL,
		HTML:          html,
		Resources:     resources,
		Analysis:      analysis,
		FindingCount:  len(result.Findings),
		PatternCount:  s.deps.Credentials.PatternCount(),
		SecurityTests: result.SecurityTests,
		SecurityScore: result.SecurityScore,
		Compliance:    result.Compliance,
	})
	recommendation, err := s.deps.Generator.Generate(ctx, result.Findings, sc.URL, summary)
	if err != nil {
		return fmt.Errorf("failed to generate recommendations: %w", err)
	}
	result.Recommendation = recommendation
	return nil
}

type remoteResult struct {
	findings []models.Finding
}

// scanRemote fetches urls with bounded concurrency and scans each body.
// Results are merged in document order. Failed fetches and non-2xx
// responses are skipped.
func (s *Scanner) scanRemote(ctx context.Context, urls []string, label, kind string, log *logrus.Entry) []models.Finding {
	if len(urls) == 0 {
		return nil
	}
	slots := make([]remoteResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ResourceConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			resp, err := s.deps.Fetcher.Get(gctx, u)
			if err != nil {
				log.WithError(err).WithField("resource", u).Warnf("Skipping %s", kind)
				s.metricsInc(utils.MetricResourcesSkipped, prometheus.Labels{"kind": kind})
				return nil
			}
			if !resp.Success() {
				log.WithFields(logrus.Fields{"resource": u, "status": resp.StatusCode}).Warnf("Skipping %s", kind)
				s.metricsInc(utils.MetricResourcesSkipped, prometheus.Labels{"kind": kind})
				return nil
			}
			location := fmt.Sprintf("%s: %s", label, utils.LastPathSegment(u))
			slots[i].findings = s.deps.Credentials.Scan(resp.Body, location)
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Finding
	for _, r := range slots {
		out = append(out, r.findings...)
	}
	return out
}

// checkpoint persists an intermediate snapshot. Failures are logged only.
func (s *Scanner) checkpoint(ctx context.Context, result *models.ScanResult, log *logrus.Entry) {
	if err := s.deps.Store.SaveScanResult(ctx, result); err != nil {
		log.WithError(err).Warn("Failed to persist scan snapshot")
	}
}

func (s *Scanner) complete(ctx context.Context, sc *ScanContext, result *models.ScanResult, log *logrus.Entry) {
	persistCtx := context.WithoutCancel(ctx)
	end := s.now().UTC()
	result.Status = models.StatusCompleted
	result.EndTime = &end
	result.CompletedChecks = result.TotalChecks

	if err := s.deps.Store.SaveScanResult(persistCtx, result); err != nil {
		s.fail(ctx, sc, result, fmt.Errorf("failed to save scan result: %w", err), log)
		return
	}
	if err := sc.workflow.Advance(persistCtx, StageCompleted, ""); err != nil {
		log.WithError(err).Error("Scan state machine rejected completion")
	}

	s.metricsInc(utils.MetricScansTotal, prometheus.Labels{"status": string(models.StatusCompleted)})
	s.metricsObserve(utils.MetricScanDuration, end.Sub(result.StartTime).Seconds(), prometheus.Labels{"status": string(models.StatusCompleted)})
	for _, f := range result.Findings {
		s.metricsInc(utils.MetricFindingsTotal, prometheus.Labels{"severity": string(f.Severity)})
	}

	log.WithFields(logrus.Fields{
		"findings": result.Summary.Total,
		"critical": result.Summary.Critical,
		"checks":   result.TotalChecks,
		"duration": end.Sub(result.StartTime).String(),
	}).Info("Scan completed")
}

func (s *Scanner) fail(ctx context.Context, sc *ScanContext, result *models.ScanResult, cause error, log *logrus.Entry) {
	if sc.workflow.Stage().Terminal() {
		return
	}
	persistCtx := context.WithoutCancel(ctx)
	end := s.now().UTC()
	result.Status = models.StatusFailed
	result.EndTime = &end
	result.Error = cause.Error()

	if err := s.deps.Store.SaveScanResult(persistCtx, result); err != nil {
		log.WithError(err).Error("Failed to persist failed scan")
	}
	if err := sc.workflow.Advance(persistCtx, StageFailed, "Scan failed: "+cause.Error()); err != nil {
		log.WithError(err).Error("Scan state machine rejected failure")
	}

	s.metricsInc(utils.MetricScansTotal, prometheus.Labels{"status": string(models.StatusFailed)})
	s.metricsObserve(utils.MetricScanDuration, end.Sub(result.StartTime).Seconds(), prometheus.Labels{"status": string(models.StatusFailed)})
	log.WithError(cause).Error("Scan failed")
}

func (s *Scanner) GetScanResult(ctx context.Context, id string) (*models.ScanResult, error) {
	return s.deps.Store.GetScanResult(ctx, id)
}

func (s *Scanner) GetProgress(ctx context.Context, id string) (*models.ProgressEvent, error) {
	return s.deps.Store.GetProgress(ctx, id)
}

// Wait blocks until the scan finishes or ctx is done, then returns the stored
// snapshot. Scans that are no longer active return immediately.
func (s *Scanner) Wait(ctx context.Context, id string) (*models.ScanResult, error) {
	s.mu.RLock()
	sc, ok := s.activeScans[id]
	s.mu.RUnlock()
	if ok {
		select {
		case <-sc.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.deps.Store.GetScanResult(ctx, id)
}

func (s *Scanner) CancelScan(id string) error {
	s.mu.RLock()
	sc, ok := s.activeScans[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrScanNotActive)
	}
	sc.cancel()
	s.logger.WithField("scan_id", id).Info("Scan cancellation requested")
	return nil
}

func (s *Scanner) ListActiveScans() []*ScanContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scans := make([]*ScanContext, 0, len(s.activeScans))
	for _, sc := range s.activeScans {
		scans = append(scans, sc)
	}
	return scans
}

func (s *Scanner) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]map[string]interface{}, 0, len(s.activeScans))
	for _, sc := range s.activeScans {
		details = append(details, map[string]interface{}{
			"scan_id":    sc.ScanID,
			"url":        sc.URL,
			"stage":      sc.Stage(),
			"start_time": sc.StartTime,
		})
	}
	return map[string]interface{}{
		"active_scans":         len(s.activeScans),
		"max_concurrent_scans": s.config.MaxConcurrentScans,
		"resource_concurrency": s.config.ResourceConcurrency,
		"scan_timeout":         s.config.ScanTimeout.String(),
		"active_probes":        s.config.ActiveProbes,
		"patterns":             s.deps.Credentials.PatternCount(),
		"active_scan_details":  details,
	}
}

func (s *Scanner) metricsInc(name string, labels prometheus.Labels) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncCounter(name, 1, labels)
	}
}

func (s *Scanner) metricsAdd(name string, delta float64, labels prometheus.Labels) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.AddGauge(name, delta, labels)
	}
}

func (s *Scanner) metricsObserve(name string, v float64, labels prometheus.Labels) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveHistogram(name, v, labels)
	}
}
