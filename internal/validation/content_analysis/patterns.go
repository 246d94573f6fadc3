package content_analysis

import (
	"regexp"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

// CredentialPattern is one row of the pattern library. Broad patterns match
// many unrelated strings and are capped at the lowest confidence bucket.
type CredentialPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Severity    models.Severity
	Provider    string
	Description string
	Broad       bool
}

var defaultPatterns = []CredentialPattern{
	{
		Name:        "AWS Access Key",
		Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		Severity:    models.SeverityCritical,
		Provider:    "AWS",
		Description: "Amazon Web Services access key detected",
	},
	{
		Name:        "AWS Secret Key",
		Regex:       regexp.MustCompile(`(?i)(?:aws[_\-]?secret|secret[_\-]?access[_\-]?key)[=:\s]*([a-zA-Z0-9+/]{40})`),
		Severity:    models.SeverityCritical,
		Provider:    "AWS",
		Description: "AWS secret access key detected",
	},
	{
		Name:        "AWS Session Token",
		Regex:       regexp.MustCompile(`AQoEXAMPLEH4aoAH0gNCAPyJxz4BlCFFxWNE1OPTgk5TthT\+rJrR`),
		Severity:    models.SeverityHigh,
		Provider:    "AWS",
		Description: "AWS session token detected",
	},
	{
		Name:        "GitHub Token",
		Regex:       regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),
		Severity:    models.SeverityHigh,
		Provider:    "GitHub",
		Description: "GitHub personal access token detected",
	},
	{
		Name:        "GitHub OAuth Token",
		Regex:       regexp.MustCompile(`gho_[a-zA-Z0-9]{36}`),
		Severity:    models.SeverityHigh,
		Provider:    "GitHub",
		Description: "GitHub OAuth token detected",
	},
	{
		Name:        "GitHub App Token",
		Regex:       regexp.MustCompile(`(ghu|ghs)_[a-zA-Z0-9]{36}`),
		Severity:    models.SeverityHigh,
		Provider:    "GitHub",
		Description: "GitHub app token detected",
	},
	{
		Name:        "OpenAI API Key",
		Regex:       regexp.MustCompile(`sk-[a-zA-Z0-9]{20}T3BlbkFJ[a-zA-Z0-9]{20}`),
		Severity:    models.SeverityHigh,
		Provider:    "OpenAI",
		Description: "OpenAI API key detected",
	},
	{
		Name:        "Stripe Secret Key",
		Regex:       regexp.MustCompile(`sk_(test|live)_[0-9a-zA-Z]{24}`),
		Severity:    models.SeverityCritical,
		Provider:    "Stripe",
		Description: "Stripe secret API key detected",
	},
	{
		Name:        "Stripe Publishable Key",
		Regex:       regexp.MustCompile(`pk_(test|live)_[0-9a-zA-Z]{24}`),
		Severity:    models.SeverityMedium,
		Provider:    "Stripe",
		Description: "Stripe publishable key detected",
	},
	{
		Name:        "Google Cloud API Key",
		Regex:       regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
		Severity:    models.SeverityHigh,
		Provider:    "Google Cloud",
		Description: "Google Cloud Platform API key detected",
	},
	{
		Name:        "Google OAuth Key",
		Regex:       regexp.MustCompile(`ya29\.[0-9A-Za-z_-]+`),
		Severity:    models.SeverityHigh,
		Provider:    "Google",
		Description: "Google OAuth access token detected",
	},
	{
		// Any 32 lowercase hex digits: md5 digests, UUIDs without dashes, asset hashes.
		Name:        "Azure Subscription Key",
		Regex:       regexp.MustCompile(`[0-9a-f]{32}`),
		Severity:    models.SeverityHigh,
		Provider:    "Microsoft Azure",
		Description: "Microsoft Azure subscription key detected",
		Broad:       true,
	},
	{
		Name:        "Slack Bot Token",
		Regex:       regexp.MustCompile(`xoxb-[0-9]{11}-[0-9]{11}-[0-9a-zA-Z]{24}`),
		Severity:    models.SeverityHigh,
		Provider:    "Slack",
		Description: "Slack bot token detected",
	},
	{
		Name:        "Slack Webhook",
		Regex:       regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Z0-9]{9}/[A-Z0-9]{9}/[a-zA-Z0-9]{24}`),
		Severity:    models.SeverityMedium,
		Provider:    "Slack",
		Description: "Slack webhook URL detected",
	},
	{
		Name:        "Discord Bot Token",
		Regex:       regexp.MustCompile(`[MN][A-Za-z\d]{23}\.[\w-]{6}\.[\w-]{27}`),
		Severity:    models.SeverityHigh,
		Provider:    "Discord",
		Description: "Discord bot token detected",
	},
	{
		Name:        "Twilio API Key",
		Regex:       regexp.MustCompile(`SK[a-z0-9]{32}`),
		Severity:    models.SeverityHigh,
		Provider:    "Twilio",
		Description: "Twilio API key detected",
	},
	{
		Name:        "SendGrid API Key",
		Regex:       regexp.MustCompile(`SG\.[a-zA-Z0-9_\-]{22}\.[a-zA-Z0-9_\-]{43}`),
		Severity:    models.SeverityHigh,
		Provider:    "SendGrid",
		Description: "SendGrid API key detected",
	},
	{
		Name:        "Mailgun API Key",
		Regex:       regexp.MustCompile(`key-[a-zA-Z0-9]{32}`),
		Severity:    models.SeverityHigh,
		Provider:    "Mailgun",
		Description: "Mailgun API key detected",
	},
	{
		Name:        "JWT Token",
		Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_\-]*\.eyJ[a-zA-Z0-9_\-]*\.[a-zA-Z0-9_\-]*`),
		Severity:    models.SeverityMedium,
		Provider:    "Generic",
		Description: "JSON Web Token detected",
	},
	{
		Name:        "Database Connection String",
		Regex:       regexp.MustCompile(`(mongodb|mysql|postgresql|postgres)://[^\s]+`),
		Severity:    models.SeverityCritical,
		Provider:    "Database",
		Description: "Database connection string detected",
	},
	{
		Name:        "Private Key",
		Regex:       regexp.MustCompile(`-----BEGIN (RSA )?PRIVATE KEY-----`),
		Severity:    models.SeverityCritical,
		Provider:    "Cryptography",
		Description: "Private key detected",
	},
}

// DefaultPatterns returns a copy of the built-in library in scan order.
func DefaultPatterns() []CredentialPattern {
	out := make([]CredentialPattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}
