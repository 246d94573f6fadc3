package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/secretlynx/internal/ai"
	"github.com/bl4ck0w1/secretlynx/internal/discovery"
	"github.com/bl4ck0w1/secretlynx/internal/orchestration"
	"github.com/bl4ck0w1/secretlynx/internal/reporting"
	"github.com/bl4ck0w1/secretlynx/internal/storage"
	"github.com/bl4ck0w1/secretlynx/internal/validation/content_analysis"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
	"github.com/bl4ck0w1/secretlynx/internal/validation/security"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

// ToolVersion is stamped into reports and the health endpoint.
var ToolVersion = "dev"

// ResolveConfig layers the config file, SECRETLYNX_* variables, the
// NEURA_ROUTER_* variables and command-line flags over the defaults.
func ResolveConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := models.LoadConfig(path)
			if err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			cfg = loaded
		}
	}

	cfg.AI.APIKey = utils.GetEnv("NEURA_ROUTER_API_KEY", cfg.AI.APIKey)
	cfg.AI.APIURL = utils.GetEnv("NEURA_ROUTER_API_URL", cfg.AI.APIURL)
	cfg.AI.Model = utils.GetEnv("NEURA_ROUTER_API_MODEL", cfg.AI.Model)

	overrideString("global.log_level", &cfg.Global.LogLevel)
	overrideString("global.log_format", &cfg.Global.LogFormat)
	overrideString("global.log_file", &cfg.Global.LogFile)
	overrideString("http.user_agent", &cfg.HTTP.UserAgent)
	overrideString("storage.data_dir", &cfg.Storage.DataDir)
	overrideString("reports.output_dir", &cfg.Reports.OutputDir)
	overrideString("server.address", &cfg.Server.Address)
	overrideString("ai.api_key", &cfg.AI.APIKey)
	overrideString("ai.api_url", &cfg.AI.APIURL)
	overrideString("ai.model", &cfg.AI.Model)
	if viper.IsSet("http.timeout") {
		cfg.HTTP.Timeout = viper.GetDuration("http.timeout")
	}
	if viper.IsSet("http.rate_limit") {
		cfg.HTTP.RateLimit = viper.GetFloat64("http.rate_limit")
	}
	if viper.IsSet("http.insecure_tls") {
		cfg.HTTP.InsecureTLS = viper.GetBool("http.insecure_tls")
	}
	if viper.IsSet("scanner.active_probes") {
		cfg.Scanner.ActiveProbes = viper.GetBool("scanner.active_probes")
	}
	if viper.IsSet("scanner.scan_timeout") {
		cfg.Scanner.ScanTimeout = viper.GetDuration("scanner.scan_timeout")
	}
	if viper.IsSet("scanner.resource_concurrency") {
		cfg.Scanner.ResourceConcurrency = viper.GetInt("scanner.resource_concurrency")
	}
	if viper.IsSet("scanner.entropy.high") {
		cfg.Scanner.Entropy.High = viper.GetFloat64("scanner.entropy.high")
	}
	if viper.IsSet("scanner.entropy.medium") {
		cfg.Scanner.Entropy.Medium = viper.GetFloat64("scanner.entropy.medium")
	}
	if viper.IsSet("storage.compression") {
		cfg.Storage.Compression = viper.GetBool("storage.compression")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideString(key string, dst *string) {
	if viper.IsSet(key) {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
}

// DefaultConfigPath is where configure writes when no --config was given.
func DefaultConfigPath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".secretlynx", "config.yaml")
}

// appRuntime holds the wired components one command invocation needs.
type appRuntime struct {
	cfg     *models.Config
	logger  *logrus.Logger
	metrics *utils.MetricsCollector
	repo    *storage.ResultsRepository
	scanner *orchestration.Scanner
}

func openRepository(cfg *models.Config, logger *logrus.Logger) (*storage.ResultsRepository, error) {
	ls, err := storage.NewLocalStorage(cfg.Storage.DataDir, cfg.Storage.Compression, cfg.Storage.Retention, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return storage.NewResultsRepository(ls, cfg.Storage.CacheTTL, logger), nil
}

// newRuntime opens storage and, when withScanner is set, wires the full scan
// pipeline including the recommendation client.
func newRuntime(withScanner bool) (*appRuntime, error) {
	cfg, err := ResolveConfig()
	if err != nil {
		return nil, err
	}
	logger := logrus.StandardLogger()

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt := &appRuntime{cfg: cfg, logger: logger, repo: repo}
	if !withScanner {
		return rt, nil
	}

	rt.metrics = utils.NewMetricsCollector(true)
	if err := rt.metrics.RegisterScanMetrics(); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	recommender, err := ai.NewClient(cfg.AI, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to create recommendation client (set NEURA_ROUTER_API_KEY): %w", err)
	}

	client := vhttp.NewClient(cfg.HTTP, logger)
	client.SetMetrics(rt.metrics)

	var probes orchestration.ProbeRunner
	if cfg.Scanner.ActiveProbes {
		engine := security.NewProbeEngine(client, 4, logger)
		engine.SetMetrics(rt.metrics)
		probes = engine
	}

	estimator := content_analysis.NewConfidenceEstimator(content_analysis.ConfidenceConfig{
		HighEntropy:   cfg.Scanner.Entropy.High,
		MediumEntropy: cfg.Scanner.Entropy.Medium,
	})

	rt.scanner, err = orchestration.NewScanner(orchestration.Dependencies{
		Fetcher:       client,
		Store:         repo,
		Generator:     recommender,
		Probes:        probes,
		Credentials:   content_analysis.NewCredentialScanner(nil, estimator, logger),
		Fingerprinter: discovery.NewFingerprinter(logger),
		Scorer:        reporting.NewRiskScorer(),
		Metrics:       rt.metrics,
	}, cfg.Scanner, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize scanner: %w", err)
	}
	return rt, nil
}

func (rt *appRuntime) Close() {
	if err := rt.repo.Close(); err != nil {
		rt.logger.WithError(err).Warn("Failed to close storage")
	}
}

func (rt *appRuntime) reportGenerator() (*reporting.ReportGenerator, error) {
	return reporting.NewReportGenerator(reporting.ReportConfig{
		OutputDir:       rt.cfg.Reports.OutputDir,
		DefaultFormat:   rt.cfg.Reports.DefaultFormat,
		CompressReports: rt.cfg.Reports.Compress,
		TemplateDir:     rt.cfg.Reports.TemplateDir,
	}, rt.logger)
}
