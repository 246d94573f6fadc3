package content_analysis

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const contextRadius = 50

type CredentialScanner struct {
	patterns  []CredentialPattern
	estimator *ConfidenceEstimator
	logger    *logrus.Logger
	newID     func() string
	now       func() time.Time
}

func NewCredentialScanner(patterns []CredentialPattern, estimator *ConfidenceEstimator, logger *logrus.Logger) *CredentialScanner {
	if logger == nil {
		logger = logrus.New()
	}
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	if estimator == nil {
		estimator = NewConfidenceEstimator(DefaultConfidenceConfig())
	}
	return &CredentialScanner{
		patterns:  patterns,
		estimator: estimator,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (cs *CredentialScanner) PatternCount() int {
	return len(cs.patterns)
}

// Scan applies every pattern in library order. Within a pattern, findings are
// emitted first match to last.
func (cs *CredentialScanner) Scan(text, location string) []models.Finding {
	findings := make([]models.Finding, 0)
	if text == "" {
		return findings
	}

	for _, p := range cs.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			match := text[start:end]

			confidence := cs.estimator.Estimate(match)
			if p.Broad && confidence > ConfidenceLow {
				confidence = ConfidenceLow
			}

			f := models.Finding{
				ID:          cs.newID(),
				KeyType:     p.Name,
				Value:       MaskSecret(match),
				Location:    location,
				Severity:    p.Severity,
				Description: p.Description,
				Remediation: Remediation(p),
				Context:     ExtractContext(text, start, end),
				LineNumber:  LineNumber(text, start),
				Confidence:  confidence,
				Provider:    p.Provider,
			}
			if p.Name == "JWT Token" {
				f.Metadata = cs.inspectJWT(match)
			}
			findings = append(findings, f)
		}
	}

	if len(findings) > 0 {
		cs.logger.Debugf("Found %d credential matches in %s", len(findings), location)
	}
	return findings
}

// inspectJWT decodes the token without verifying its signature.
func (cs *CredentialScanner) inspectJWT(raw string) map[string]string {
	meta := map[string]string{}
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		meta["jwt_decodable"] = "false"
		return meta
	}
	meta["jwt_decodable"] = "true"
	if alg, ok := token.Header["alg"].(string); ok {
		meta["jwt_alg"] = alg
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		meta["jwt_expires_at"] = exp.UTC().Format(time.RFC3339)
		meta["jwt_expired"] = strconv.FormatBool(exp.Before(cs.now()))
	}
	if iss, err := claims.GetIssuer(); err == nil && iss != "" {
		meta["jwt_issuer"] = iss
	}
	return meta
}

func Remediation(p CredentialPattern) string {
	return fmt.Sprintf("Immediately revoke this %s from your %s dashboard and generate a new one. "+
		"Store the new key securely using environment variables or a secrets manager.", p.Name, p.Provider)
}

// MaskSecret keeps the first and last four characters. Inputs of eight
// characters or fewer are fully starred.
func MaskSecret(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

// ExtractContext returns up to contextRadius bytes on each side of
// text[start:end], widened to rune boundaries.
func ExtractContext(text string, start, end int) string {
	from := start - contextRadius
	if from < 0 {
		from = 0
	}
	to := end + contextRadius
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[from:to]
}

func LineNumber(text string, pos int) int {
	if pos > len(text) {
		pos = len(text)
	}
	return strings.Count(text[:pos], "\n") + 1
}
