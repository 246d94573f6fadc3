package ai

import (
	"fmt"
	"strings"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const systemPrompt = `You are a web application security auditor. You receive the results of a passive scan for leaked credentials, a static analysis of the page's technology stack, and the outcome of active configuration tests.
Treat obvious false positives (file names such as ".js", purely numeric strings) as noise and say so.

Structure the answer as:
1. Executive Summary: overall posture and the most important findings
2. Critical Issues: failed tests that need immediate action, naming exact paths and files
3. Exposed Credentials: each leaked key, its impact and how to revoke and rotate it
4. Security Configuration: missing headers, CORS, TLS and server disclosure fixes
5. Technology-Specific Advice: based on the detected frameworks, build tools and third-party services
6. Longer-Term Improvements: CSP, Subresource Integrity, dependency auditing and monitoring

Keep every recommendation specific and actionable.`

// BuildPrompt renders the user message for a scan. Without findings the
// content summary becomes the subject of the audit.
func BuildPrompt(findings []models.Finding, url, summary string) string {
	if len(findings) == 0 {
		if summary == "" {
			return fmt.Sprintf("Security scan completed for %s. No API keys found. Provide security recommendations.", url)
		}
		return fmt.Sprintf("Analyze this website for security vulnerabilities:\n\n%s\n\nNo API keys found. Provide a security audit and recommendations.", summary)
	}

	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, fmt.Sprintf("- %s (%s) in %s: %s", f.KeyType, f.Severity, f.Location, f.Description))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Security Audit Scan Results for: %s\n\n", url)
	sb.WriteString("Exposed API keys and security issues found:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	if summary != "" {
		sb.WriteString("\n\nWebsite Content Analysis:\n")
		sb.WriteString(summary)
	}
	sb.WriteString("\n\nPlease provide:\n" +
		"1. Immediate remediation steps for each finding\n" +
		"2. Best practices to prevent future exposures\n" +
		"3. Security implementation recommendations\n" +
		"4. Risk assessment and priority guidance\n" +
		"5. Analysis of the website content for additional security concerns\n\n" +
		"Format the response in clear sections with actionable steps.")
	return sb.String()
}
