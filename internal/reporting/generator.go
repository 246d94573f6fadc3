package reporting

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

type Formatter interface {
	Format(report *Report) ([]byte, error)
	FileExtension() string
}

type ReportConfig struct {
	OutputDir       string `yaml:"output_dir" json:"output_dir"`
	DefaultFormat   string `yaml:"default_format" json:"default_format"`
	CompressReports bool   `yaml:"compress_reports" json:"compress_reports"`
	TemplateDir     string `yaml:"template_dir" json:"template_dir"`
}

type ReportMetadata struct {
	ReportID    string    `json:"report_id" yaml:"report_id"`
	ScanID      string    `json:"scan_id" yaml:"scan_id"`
	Target      string    `json:"target" yaml:"target"`
	GeneratedBy string    `json:"generated_by" yaml:"generated_by"`
	ToolVersion string    `json:"tool_version" yaml:"tool_version"`
	Duration    string    `json:"duration" yaml:"duration"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

type Report struct {
	Metadata    ReportMetadata     `json:"metadata" yaml:"metadata"`
	Scan        *models.ScanResult `json:"scan" yaml:"scan"`
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
}

type ReportGenerator struct {
	formatters map[string]Formatter
	templates  *TemplateManager
	logger     *logrus.Logger
	config     ReportConfig
	mu         sync.RWMutex
}

func NewReportGenerator(config ReportConfig, logger *logrus.Logger) (*ReportGenerator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.DefaultFormat == "" {
		config.DefaultFormat = "txt"
	}

	tm := NewTemplateManager(templateFuncs)
	if err := tm.Register(textTemplateName, defaultTextTemplate); err != nil {
		return nil, err
	}
	if config.TemplateDir != "" {
		if err := tm.LoadDir(config.TemplateDir); err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
	}

	rg := &ReportGenerator{
		formatters: make(map[string]Formatter),
		templates:  tm,
		logger:     logger,
		config:     config,
	}
	rg.RegisterFormatter("json", jsonFormatter{})
	rg.RegisterFormatter("yaml", yamlFormatter{})
	rg.RegisterFormatter("txt", &textFormatter{templates: tm})
	return rg, nil
}

func (rg *ReportGenerator) RegisterFormatter(name string, formatter Formatter) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.formatters[name] = formatter
}

func (rg *ReportGenerator) SupportedFormats() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	names := make([]string, 0, len(rg.formatters))
	for k := range rg.formatters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (rg *ReportGenerator) GenerateReport(scan *models.ScanResult, toolVersion string) *Report {
	now := time.Now()
	return &Report{
		Metadata: ReportMetadata{
			ReportID:    utils.GenerateUUID(),
			ScanID:      scan.ID,
			Target:      scan.URL,
			GeneratedBy: "secretlynx",
			ToolVersion: toolVersion,
			Duration:    utils.HumanizeDuration(scan.Duration()),
			Timestamp:   scan.StartTime,
		},
		Scan:        scan,
		GeneratedAt: now,
	}
}

// Render formats report without touching the filesystem.
func (rg *ReportGenerator) Render(report *Report, format string) ([]byte, error) {
	if format == "" {
		format = rg.config.DefaultFormat
	}
	rg.mu.RLock()
	formatter, ok := rg.formatters[format]
	rg.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
	data, err := formatter.Format(report)
	if err != nil {
		return nil, fmt.Errorf("failed to format report: %w", err)
	}
	return data, nil
}

// ExportReport writes the rendered report under the output directory and
// returns its path.
func (rg *ReportGenerator) ExportReport(report *Report, format string) (string, error) {
	if format == "" {
		format = rg.config.DefaultFormat
	}
	data, err := rg.Render(report, format)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(rg.config.OutputDir); err != nil {
		return "", fmt.Errorf("failed to ensure output dir: %w", err)
	}

	rg.mu.RLock()
	ext := rg.formatters[format].FileExtension()
	rg.mu.RUnlock()
	outPath := filepath.Join(rg.config.OutputDir, generateFilename(report.Metadata, ext))

	if rg.config.CompressReports {
		if data, err = gzipBytes(data, filepath.Base(outPath)); err != nil {
			return "", fmt.Errorf("failed to compress report: %w", err)
		}
		outPath += ".gz"
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	rg.logger.Infof("Report exported to %s", outPath)
	return outPath, nil
}

func generateFilename(metadata ReportMetadata, ext string) string {
	tstamp := metadata.Timestamp.Format("20060102_150405")
	return fmt.Sprintf("secretlynx_%s_%s.%s", sanitizeFilename(hostOf(metadata.Target)), tstamp, ext)
}

func hostOf(target string) string {
	t := strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://")
	if i := strings.IndexAny(t, "/?#"); i >= 0 {
		t = t[:i]
	}
	return t
}

func gzipBytes(data []byte, name string) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Name = name
	gw.ModTime = time.Now()
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sanitizeFilename(s string) string {
	var out []rune
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

type jsonFormatter struct{}

func (jsonFormatter) Format(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

func (jsonFormatter) FileExtension() string { return "json" }

type yamlFormatter struct{}

func (yamlFormatter) Format(report *Report) ([]byte, error) {
	return yaml.Marshal(report)
}

func (yamlFormatter) FileExtension() string { return "yaml" }

const textTemplateName = "report.tmpl"

type textFormatter struct {
	templates *TemplateManager
}

func (f *textFormatter) Format(report *Report) ([]byte, error) {
	tpl, ok := f.templates.Get(textTemplateName)
	if !ok {
		return nil, fmt.Errorf("template %s not registered", textTemplateName)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *textFormatter) FileExtension() string { return "txt" }

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"score": func(p *int) string {
		if p == nil {
			return "n/a"
		}
		return fmt.Sprintf("%d/100", *p)
	},
	"sortedKeys": func(m map[string]string) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	},
}

const defaultTextTemplate = `SecretLynx report {{.Metadata.ReportID}}
Target:   {{.Scan.URL}}
Scan ID:  {{.Scan.ID}}
Status:   {{.Scan.Status}}
Started:  {{.Scan.StartTime.Format "2006-01-02 15:04:05 MST"}}
Duration: {{.Metadata.Duration}}
Checks:   {{.Scan.CompletedChecks}}/{{.Scan.TotalChecks}}
Score:    {{score .Scan.SecurityScore}}
{{- if .Scan.Error}}
Error:    {{.Scan.Error}}
{{- end}}

Findings: {{.Scan.Summary.Total}} (critical {{.Scan.Summary.Critical}}, high {{.Scan.Summary.High}}, medium {{.Scan.Summary.Medium}}, low {{.Scan.Summary.Low}})
{{- range .Scan.Findings}}
  [{{upper (print .Severity)}}] {{.KeyType}} in {{.Location}} line {{.LineNumber}}
      value: {{.Value}}  confidence: {{printf "%.2f" .Confidence}}
      {{.Remediation}}
{{- end}}
{{- if .Scan.SecurityTests}}

Security tests:
{{- range .Scan.SecurityTests}}
  {{.Status}}  {{.TestName}} ({{.Severity}}): {{.Description}}
{{- end}}
{{- end}}
{{- if .Scan.Compliance}}

Compliance:
{{- $c := .Scan.Compliance}}
{{- range sortedKeys $c}}
  {{.}}: {{index $c .}}
{{- end}}
{{- end}}
{{- if .Scan.Recommendation}}

Recommendations:
{{.Scan.Recommendation}}
{{- end}}
`
