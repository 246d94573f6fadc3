package models

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return sev, nil
	default:
		return "", fmt.Errorf("invalid severity: %s", s)
	}
}

// Finding is a single credential match. Value is always masked.
type Finding struct {
	ID          string            `json:"id" yaml:"id"`
	KeyType     string            `json:"key_type" yaml:"key_type"`
	Value       string            `json:"value" yaml:"value"`
	Location    string            `json:"location" yaml:"location"`
	Severity    Severity          `json:"severity" yaml:"severity"`
	Description string            `json:"description" yaml:"description"`
	Remediation string            `json:"remediation,omitempty" yaml:"remediation,omitempty"`
	Context     string            `json:"context" yaml:"context"`
	LineNumber  int               `json:"line_number" yaml:"line_number"`
	Confidence  float64           `json:"confidence" yaml:"confidence"`
	Provider    string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (f *Finding) Validate() error {
	if f.KeyType == "" {
		return fmt.Errorf("finding key type is required")
	}
	if f.Location == "" {
		return fmt.Errorf("finding location is required")
	}
	if _, err := ParseSeverity(string(f.Severity)); err != nil {
		return err
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	if f.LineNumber < 1 {
		return fmt.Errorf("line number must be >= 1")
	}
	return nil
}

type Summary struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
	Total    int `json:"total" yaml:"total"`
}

// NewSummary derives the per-severity counts. Total always equals len(findings);
// info-level findings count toward Total only.
func NewSummary(findings []Finding) Summary {
	s := Summary{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

type TestStatus string

const (
	TestPass TestStatus = "pass"
	TestFail TestStatus = "fail"
)

type VulnerabilityTest struct {
	TestName       string                 `json:"test_name" yaml:"test_name"`
	Status         TestStatus             `json:"status" yaml:"status"`
	Severity       Severity               `json:"severity" yaml:"severity"`
	Description    string                 `json:"description" yaml:"description"`
	Recommendation string                 `json:"recommendation" yaml:"recommendation"`
	Details        map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

func (t VulnerabilityTest) Failed() bool {
	return t.Status == TestFail
}

type SecurityAnalysis struct {
	Frameworks         []string          `json:"frameworks" yaml:"frameworks"`
	Technologies       []string          `json:"technologies" yaml:"technologies"`
	ThirdPartyServices []string          `json:"third_party_services" yaml:"third_party_services"`
	SecurityHeaders    map[string]string `json:"security_headers" yaml:"security_headers"`
	PotentialEndpoints []string          `json:"potential_endpoints" yaml:"potential_endpoints"`
	ExternalResources  []string          `json:"external_resources" yaml:"external_resources"`
	ExternalDomains    []string          `json:"external_domains" yaml:"external_domains"`
	FormActions        []string          `json:"form_actions" yaml:"form_actions"`
	MetaTags           map[string]string `json:"meta_tags" yaml:"meta_tags"`
}

func NewSecurityAnalysis() *SecurityAnalysis {
	return &SecurityAnalysis{
		Frameworks:         []string{},
		Technologies:       []string{},
		ThirdPartyServices: []string{},
		SecurityHeaders:    map[string]string{},
		PotentialEndpoints: []string{},
		ExternalResources:  []string{},
		ExternalDomains:    []string{},
		FormActions:        []string{},
		MetaTags:           map[string]string{},
	}
}
