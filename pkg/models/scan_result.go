package models

import (
	"fmt"
	"time"
)

type ScanStatus string

const (
	StatusScanning  ScanStatus = "scanning"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ScanRequest struct {
	URL    string `json:"url" yaml:"url"`
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

type ScanResult struct {
	ID               string              `json:"id" yaml:"id"`
	UserID           string              `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	URL              string              `json:"url" yaml:"url"`
	Status           ScanStatus          `json:"status" yaml:"status"`
	StartTime        time.Time           `json:"start_time" yaml:"start_time"`
	EndTime          *time.Time          `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Findings         []Finding           `json:"findings" yaml:"findings"`
	TotalChecks      int                 `json:"total_checks" yaml:"total_checks"`
	CompletedChecks  int                 `json:"completed_checks" yaml:"completed_checks"`
	Recommendation   string              `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	Summary          Summary             `json:"summary" yaml:"summary"`
	SecurityAnalysis *SecurityAnalysis   `json:"security_analysis,omitempty" yaml:"security_analysis,omitempty"`
	SecurityTests    []VulnerabilityTest `json:"security_tests,omitempty" yaml:"security_tests,omitempty"`
	SecurityScore    *int                `json:"security_score,omitempty" yaml:"security_score,omitempty"`
	Compliance       map[string]string   `json:"compliance,omitempty" yaml:"compliance,omitempty"`
	Error            string              `json:"error,omitempty" yaml:"error,omitempty"`
}

func NewScanResult(id string, req ScanRequest, now time.Time) *ScanResult {
	return &ScanResult{
		ID:        id,
		UserID:    req.UserID,
		URL:       req.URL,
		Status:    StatusScanning,
		StartTime: now,
		Findings:  []Finding{},
	}
}

// Clone returns a deep enough copy for snapshot persistence: slices and maps
// are copied so the caller can keep mutating the original. Empty slices stay
// empty rather than nil so they still encode as [].
func (r *ScanResult) Clone() *ScanResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Findings != nil {
		c.Findings = make([]Finding, len(r.Findings))
		copy(c.Findings, r.Findings)
	}
	if r.SecurityTests != nil {
		c.SecurityTests = make([]VulnerabilityTest, len(r.SecurityTests))
		copy(c.SecurityTests, r.SecurityTests)
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.SecurityScore != nil {
		v := *r.SecurityScore
		c.SecurityScore = &v
	}
	if r.Compliance != nil {
		c.Compliance = make(map[string]string, len(r.Compliance))
		for k, v := range r.Compliance {
			c.Compliance[k] = v
		}
	}
	return &c
}

func (r *ScanResult) SetFindings(findings []Finding) {
	if findings == nil {
		findings = []Finding{}
	}
	r.Findings = findings
	r.Summary = NewSummary(findings)
}

func (r *ScanResult) Duration() time.Duration {
	if r.EndTime == nil {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

func (r *ScanResult) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("scan id is required")
	}
	if r.URL == "" {
		return fmt.Errorf("scan url is required")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start time is required")
	}
	switch r.Status {
	case StatusScanning, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.Summary.Total != len(r.Findings) {
		return fmt.Errorf("summary total %d does not match %d findings", r.Summary.Total, len(r.Findings))
	}
	if r.Status == StatusCompleted {
		if r.EndTime == nil {
			return fmt.Errorf("completed scan must have an end time")
		}
		if r.CompletedChecks != r.TotalChecks {
			return fmt.Errorf("completed scan has %d/%d checks", r.CompletedChecks, r.TotalChecks)
		}
	}
	return nil
}

type ProgressEvent struct {
	ScanID    string    `json:"scan_id" yaml:"scan_id"`
	Stage     string    `json:"stage" yaml:"stage"`
	Progress  int       `json:"progress" yaml:"progress"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
