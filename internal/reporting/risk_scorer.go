package reporting

import (
	"strings"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const maxScore = 100

// RiskScorer turns credential findings and probe results into a 0-100
// security score and a small set of compliance ratings.
type RiskScorer struct {
	findingPenalties map[models.Severity]int
	probePenalties   map[models.Severity]int
}

func NewRiskScorer() *RiskScorer {
	return NewRiskScorerWithWeights(nil, nil)
}

func NewRiskScorerWithWeights(findings, probes map[models.Severity]int) *RiskScorer {
	fp := map[models.Severity]int{
		models.SeverityCritical: 25,
		models.SeverityHigh:     15,
		models.SeverityMedium:   10,
		models.SeverityLow:      5,
	}
	pp := map[models.Severity]int{
		models.SeverityCritical: 20,
		models.SeverityHigh:     12,
		models.SeverityMedium:   8,
		models.SeverityLow:      3,
	}
	for k, v := range findings {
		fp[k] = v
	}
	for k, v := range probes {
		pp[k] = v
	}
	return &RiskScorer{findingPenalties: fp, probePenalties: pp}
}

// Score starts at 100 and subtracts a penalty per finding and per failed
// test. It never goes below zero.
func (rs *RiskScorer) Score(findings []models.Finding, tests []models.VulnerabilityTest) int {
	penalty := 0
	for _, f := range findings {
		penalty += rs.findingPenalties[f.Severity]
	}
	for _, t := range tests {
		if t.Failed() {
			penalty += rs.probePenalties[t.Severity]
		}
	}
	if penalty >= maxScore {
		return 0
	}
	return maxScore - penalty
}

const (
	ComplianceOWASP   = "OWASP"
	ComplianceTLS     = "SSL/TLS"
	CompliancePosture = "Security Posture"
)

// Compliance rates header coverage, transport security and overall posture.
// headers is keyed by lowercase header name.
func (rs *RiskScorer) Compliance(headers map[string]string, tests []models.VulnerabilityTest) map[string]string {
	has := func(name string) bool {
		_, ok := headers[name]
		return ok
	}
	csp := has("content-security-policy")
	hsts := has("strict-transport-security")

	owasp := "Poor"
	switch {
	case csp && hsts && has("x-frame-options"):
		owasp = "Good"
	case csp || hsts:
		owasp = "Partial"
	}

	tls := "Good"
	failed := 0
	for _, t := range tests {
		if t.Failed() {
			failed++
		}
		if (strings.Contains(t.TestName, "HTTPS") || strings.Contains(t.TestName, "SSL")) && t.Status != models.TestPass {
			tls = "Poor"
		}
	}

	return map[string]string{
		ComplianceOWASP:   owasp,
		ComplianceTLS:     tls,
		CompliancePosture: postureRating(failed),
	}
}

func postureRating(failed int) string {
	switch {
	case failed == 0:
		return "Excellent"
	case failed <= 3:
		return "Good"
	case failed <= 7:
		return "Fair"
	default:
		return "Poor"
	}
}
