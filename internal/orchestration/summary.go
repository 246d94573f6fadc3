package orchestration

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
	"github.com/bl4ck0w1/secretlynx/internal/discovery"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const (
	htmlSnippetLen        = 1000
	scriptSnippetLen      = 500
	maxSummaryResources   = 10
	noneDetected          = "None detected"
	noInlineScriptsMarker = "No inline scripts"
)

type SummaryInput struct {
	URL           string
	HTML          string
	Resources     discovery.Resources
	Analysis      *models.SecurityAnalysis
	FindingCount  int
	PatternCount  int
	SecurityTests []models.VulnerabilityTest
	SecurityScore *int
	Compliance    map[string]string
}

// BuildContentSummary renders the site context handed to the recommendation
// model alongside the findings.
func BuildContentSummary(in SummaryInput) string {
	a := in.Analysis
	if a == nil {
		a = models.NewSecurityAnalysis()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n\n## Comprehensive Security Analysis\n\n", in.URL)

	b.WriteString("### Content Analysis\n")
	fmt.Fprintf(&b, "- HTML: %d bytes\n", len(in.HTML))
	fmt.Fprintf(&b, "- JavaScript files: %d\n", len(in.Resources.ScriptURLs))
	fmt.Fprintf(&b, "- CSS files: %d\n", len(in.Resources.StylesheetURLs))
	fmt.Fprintf(&b, "- Inline scripts: %d\n\n", len(in.Resources.InlineScripts))

	b.WriteString("### Technology Stack Detected\n")
	fmt.Fprintf(&b, "- Frameworks: %s\n", joinOrNone(a.Frameworks))
	fmt.Fprintf(&b, "- Technologies: %s\n", joinOrNone(a.Technologies))
	fmt.Fprintf(&b, "- Third-party Services: %s\n\n", joinOrNone(a.ThirdPartyServices))

	b.WriteString("### Security-Relevant Findings\n")
	fmt.Fprintf(&b, "- External Resources: %d detected\n", len(a.ExternalResources))
	fmt.Fprintf(&b, "- Potential API Endpoints: %d\n", len(a.PotentialEndpoints))
	fmt.Fprintf(&b, "- Form Actions: %d\n", len(a.FormActions))
	fmt.Fprintf(&b, "- Meta Tags: %d analyzed\n\n", len(a.MetaTags))

	b.WriteString("### Sample Code Analysis\n\n")
	fmt.Fprintf(&b, "HTML snippet:\n%s\n\n", prefix(in.HTML, htmlSnippetLen))
	script := noInlineScriptsMarker
	if len(in.Resources.InlineScripts) > 0 {
		script = prefix(in.Resources.InlineScripts[0], scriptSnippetLen)
	}
	fmt.Fprintf(&b, "JavaScript snippet:\n%s\n\n", script)

	b.WriteString("### Security Scan Results\n")
	fmt.Fprintf(&b, "- API Key Findings: %d issues detected\n", in.FindingCount)
	fmt.Fprintf(&b, "- Pattern Matches: %d total patterns scanned\n", in.PatternCount)

	if len(in.SecurityTests) > 0 {
		failed := 0
		for _, t := range in.SecurityTests {
			if t.Failed() {
				failed++
			}
		}
		fmt.Fprintf(&b, "- Active Tests: %d run, %d failed\n", len(in.SecurityTests), failed)
		for _, t := range in.SecurityTests {
			if t.Failed() {
				fmt.Fprintf(&b, "  - [%s] %s: %s\n", strings.ToUpper(string(t.Severity)), t.TestName, t.Description)
			}
		}
	}
	if in.SecurityScore != nil {
		fmt.Fprintf(&b, "- Security Score: %d/100\n", *in.SecurityScore)
	}
	if len(in.Compliance) > 0 {
		keys := make([]string, 0, len(in.Compliance))
		for k := range in.Compliance {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.Compliance[k])
		}
	}

	resources := a.ExternalResources
	if len(resources) > maxSummaryResources {
		resources = resources[:maxSummaryResources]
	}
	b.WriteString("\n### Detailed Security Context\n")
	fmt.Fprintf(&b, "- Detected Frameworks: %s\n", bracketList(a.Frameworks))
	fmt.Fprintf(&b, "- Detected Technologies: %s\n", bracketList(a.Technologies))
	fmt.Fprintf(&b, "- Third-party Services: %s\n", bracketList(a.ThirdPartyServices))
	fmt.Fprintf(&b, "- External Resources: %s\n", bracketList(resources))
	fmt.Fprintf(&b, "- Potential API Endpoints: %s", bracketList(a.PotentialEndpoints))

	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneDetected
	}
	return strings.Join(items, ", ")
}

func bracketList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// prefix cuts s to at most n bytes without splitting a rune.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
