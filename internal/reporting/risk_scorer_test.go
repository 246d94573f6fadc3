package reporting

import (
	"testing"
	"github.com/stretchr/testify/assert"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

func finding(sev models.Severity) models.Finding {
	return models.Finding{KeyType: "x", Location: "HTML", Severity: sev, LineNumber: 1}
}

func probe(name string, status models.TestStatus, sev models.Severity) models.VulnerabilityTest {
	return models.VulnerabilityTest{TestName: name, Status: status, Severity: sev}
}

func TestScore(t *testing.T) {
	rs := NewRiskScorer()

	assert.Equal(t, 100, rs.Score(nil, nil))
	assert.Equal(t, 75, rs.Score([]models.Finding{finding(models.SeverityCritical)}, nil))
	assert.Equal(t, 74, rs.Score(
		[]models.Finding{finding(models.SeverityMedium), finding(models.SeverityLow)},
		[]models.VulnerabilityTest{
			probe("HSTS Header", models.TestFail, models.SeverityMedium),
			probe("Server Information Disclosure", models.TestFail, models.SeverityLow),
			probe("CSP Header", models.TestPass, models.SeverityInfo),
		}))
}

func TestScoreFloorsAtZero(t *testing.T) {
	rs := NewRiskScorer()
	var findings []models.Finding
	for i := 0; i < 5; i++ {
		findings = append(findings, finding(models.SeverityCritical))
	}
	assert.Equal(t, 0, rs.Score(findings, nil))
	assert.Equal(t, 0, rs.Score(findings[:4], []models.VulnerabilityTest{probe("x", models.TestFail, models.SeverityHigh)}))
}

func TestScoreCustomWeights(t *testing.T) {
	rs := NewRiskScorerWithWeights(map[models.Severity]int{models.SeverityLow: 1}, nil)
	assert.Equal(t, 99, rs.Score([]models.Finding{finding(models.SeverityLow)}, nil))
}

func TestCompliance(t *testing.T) {
	rs := NewRiskScorer()

	all := map[string]string{
		"content-security-policy":   "default-src 'self'",
		"strict-transport-security": "max-age=1",
		"x-frame-options":           "DENY",
	}
	c := rs.Compliance(all, []models.VulnerabilityTest{probe("HTTPS Redirect", models.TestPass, models.SeverityInfo)})
	assert.Equal(t, "Good", c[ComplianceOWASP])
	assert.Equal(t, "Good", c[ComplianceTLS])
	assert.Equal(t, "Excellent", c[CompliancePosture])

	c = rs.Compliance(map[string]string{"strict-transport-security": "x"}, []models.VulnerabilityTest{
		probe("HTTPS Enforcement", models.TestFail, models.SeverityHigh),
		probe("CSP Header", models.TestFail, models.SeverityMedium),
	})
	assert.Equal(t, "Partial", c[ComplianceOWASP])
	assert.Equal(t, "Poor", c[ComplianceTLS])
	assert.Equal(t, "Good", c[CompliancePosture])

	c = rs.Compliance(map[string]string{"x-frame-options": "DENY"}, nil)
	assert.Equal(t, "Poor", c[ComplianceOWASP])
	assert.Equal(t, "Good", c[ComplianceTLS])
}

func TestPostureRating(t *testing.T) {
	assert.Equal(t, "Excellent", postureRating(0))
	assert.Equal(t, "Good", postureRating(1))
	assert.Equal(t, "Good", postureRating(3))
	assert.Equal(t, "Fair", postureRating(4))
	assert.Equal(t, "Fair", postureRating(7))
	assert.Equal(t, "Poor", postureRating(8))
}
