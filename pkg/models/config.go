package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Global  GlobalConfig  `yaml:"global" json:"global"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	AI      AIConfig      `yaml:"ai" json:"ai"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Reports ReportsConfig `yaml:"reports" json:"reports"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	Debug     bool   `yaml:"debug" json:"debug"`
}

type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRedirects int           `yaml:"max_redirects" json:"max_redirects"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	RateLimit    float64       `yaml:"rate_limit" json:"rate_limit"`
	Burst        int           `yaml:"burst" json:"burst"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	InsecureTLS  bool          `yaml:"insecure_tls" json:"insecure_tls"`
}

type EntropyConfig struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
}

type ScannerConfig struct {
	ResourceConcurrency int           `yaml:"resource_concurrency" json:"resource_concurrency"`
	MaxConcurrentScans  int           `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`
	ScanTimeout         time.Duration `yaml:"scan_timeout" json:"scan_timeout"`
	ActiveProbes        bool          `yaml:"active_probes" json:"active_probes"`
	Entropy             EntropyConfig `yaml:"entropy" json:"entropy"`
}

type StorageConfig struct {
	DataDir     string        `yaml:"data_dir" json:"data_dir"`
	Compression bool          `yaml:"compression" json:"compression"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Retention   time.Duration `yaml:"retention" json:"retention"`
}

type AIConfig struct {
	APIURL      string        `yaml:"api_url" json:"api_url"`
	APIKey      string        `yaml:"api_key" json:"-"`
	Model       string        `yaml:"model" json:"model"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
}

type ReportsConfig struct {
	OutputDir     string `yaml:"output_dir" json:"output_dir"`
	DefaultFormat string `yaml:"default_format" json:"default_format"`
	Compress      bool   `yaml:"compress" json:"compress"`
	TemplateDir   string `yaml:"template_dir" json:"template_dir"`
}

type ServerConfig struct {
	Address        string `yaml:"address" json:"address"`
	MetricsEnabled bool   `yaml:"metrics_enabled" json:"metrics_enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			MaxRedirects: 10,
			UserAgent:    "Mozilla/5.0 (compatible; SecretLynx/1.0)",
			RateLimit:    10,
			Burst:        10,
			MaxBodyBytes: 10 << 20,
		},
		Scanner: ScannerConfig{
			ResourceConcurrency: 8,
			MaxConcurrentScans:  5,
			ScanTimeout:         10 * time.Minute,
			ActiveProbes:        true,
			Entropy: EntropyConfig{
				High:   4.5,
				Medium: 3.5,
			},
		},
		Storage: StorageConfig{
			DataDir:  "./data",
			CacheTTL: 30 * time.Minute,
		},
		AI: AIConfig{
			APIURL:      "https://api.meetneura.ai/v1/router/parallel",
			Model:       "openrouter/qwen/qwen3-coder:free",
			Timeout:     2 * time.Minute,
			Temperature: 0.7,
		},
		Server: ServerConfig{
			Address:        ":3001",
			MetricsEnabled: true,
		},
		Reports: ReportsConfig{
			OutputDir:     "./reports",
			DefaultFormat: "txt",
		},
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Global.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "global.log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, "http.timeout must be > 0")
	}
	if c.HTTP.MaxRedirects < 0 {
		errs = append(errs, "http.max_redirects must be >= 0")
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, "http.rate_limit must be >= 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, "http.max_body_bytes must be > 0")
	}
	if c.Scanner.ResourceConcurrency <= 0 {
		errs = append(errs, "scanner.resource_concurrency must be > 0")
	}
	if c.Scanner.MaxConcurrentScans <= 0 {
		errs = append(errs, "scanner.max_concurrent_scans must be > 0")
	}
	if c.Scanner.Entropy.Medium <= 0 || c.Scanner.Entropy.High <= c.Scanner.Entropy.Medium {
		errs = append(errs, "scanner.entropy requires 0 < medium < high")
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir must not be empty")
	}
	if c.AI.APIURL == "" {
		errs = append(errs, "ai.api_url must not be empty")
	}
	if c.AI.MaxTokens < 0 {
		errs = append(errs, "ai.max_tokens must be >= 0")
	}
	switch c.Reports.DefaultFormat {
	case "json", "yaml", "txt":
	default:
		errs = append(errs, "reports.default_format must be one of json|yaml|txt")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically write config: %w", err)
	}
	return nil
}

// LoadConfig overlays the file at path onto DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
