package security

import "strings"

// SensitivePaths are requested relative to the target root. Order is preserved
// in the exposure report.
var SensitivePaths = []string{
	"/.env",
	"/api/.env",
	"/.env.local",
	"/.env.production",
	"/config.json",
	"/config.yaml",
	"/config.yml",
	"/config.toml",
	"/api/config.json",
	"/api/config.yaml",
	"/api/config.yml",
	"/api/config.toml",
	"/api/debug.yaml",
	"/api/debug.yml",
	"/api/debug.json",
	"/debug.yaml",
	"/debug.yml",
	"/debug.json",
	"/package.json",
	"/composer.json",
	"/requirements.txt",
	"/Cargo.toml",
	"/.git/config",
	"/.gitignore",
	"/backup",
	"/admin",
	"/phpmyadmin",
	"/wp-admin",
	"/robots.txt",
	"/sitemap.xml",
}

// DebugPaths are development and status endpoints that should not be public.
var DebugPaths = []string{
	"/debug",
	"/test",
	"/dev",
	"/api/debug",
	"/api/test",
	"/health",
	"/status",
	"/info",
	"/.well-known/security.txt",
}

// PathRule decides whether a 200 response for a matching path carries the
// content that path family is expected to hold.
type PathRule struct {
	Family string
	Match  func(path string) bool
	Check  func(body string) bool
}

func contains(sub string) func(string) bool {
	return func(path string) bool { return strings.Contains(path, sub) }
}

func equals(want string) func(string) bool {
	return func(path string) bool { return path == want }
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func noHTMLTag(body string) bool {
	return !strings.Contains(body, "<html")
}

// pathRules is evaluated top to bottom; the first matching family decides.
var pathRules = []PathRule{
	{
		Family: "env",
		Match:  contains(".env"),
		Check: func(b string) bool {
			return strings.Contains(b, "=") && containsAny(b, "KEY", "SECRET", "TOKEN", "PASSWORD")
		},
	},
	{
		Family: "config-json",
		Match:  contains("config.json"),
		Check: func(b string) bool {
			return strings.HasPrefix(b, "{") && strings.Contains(b, "config") && noHTMLTag(b)
		},
	},
	{
		Family: "config-yaml",
		Match:  func(p string) bool { return containsAny(p, "config.yaml", "config.yml") },
		Check: func(b string) bool {
			return strings.Contains(b, ":") && strings.Contains(b, "config") && noHTMLTag(b)
		},
	},
	{
		Family: "config-toml",
		Match:  contains("config.toml"),
		Check: func(b string) bool {
			return strings.Contains(b, "[") && strings.Contains(b, "]") && noHTMLTag(b)
		},
	},
	{
		Family: "debug",
		Match:  contains("debug"),
		Check: func(b string) bool {
			return containsAny(b, "debug", "DEBUG") && noHTMLTag(b)
		},
	},
	{
		Family: "package-json",
		Match:  equals("/package.json"),
		Check: func(b string) bool {
			return containsAny(b, "dependencies", "scripts", `"name"`)
		},
	},
	{
		Family: "composer",
		Match:  contains("composer.json"),
		Check: func(b string) bool {
			return strings.Contains(b, "require") && strings.HasPrefix(b, "{")
		},
	},
	{
		Family: "requirements",
		Match:  equals("/requirements.txt"),
		Check:  func(b string) bool { return containsAny(b, "==", ">=") },
	},
	{
		Family: "cargo",
		Match:  equals("/Cargo.toml"),
		Check:  func(b string) bool { return containsAny(b, "[package]", "[dependencies]") },
	},
	{
		Family: "git-config",
		Match:  equals("/.git/config"),
		Check:  func(b string) bool { return containsAny(b, "[core]", "repository") },
	},
	{
		Family: "gitignore",
		Match:  equals("/.gitignore"),
		Check:  func(b string) bool { return containsAny(b, "node_modules", "*.log") },
	},
	{
		Family: "admin",
		Match:  equals("/admin"),
		Check: func(b string) bool {
			lower := strings.ToLower(b)
			return strings.Contains(lower, "admin") && containsAny(lower, "login", "dashboard") && noHTMLTag(b)
		},
	},
	{
		Family: "phpmyadmin",
		Match:  equals("/phpmyadmin"),
		Check:  func(b string) bool { return containsAny(b, "phpMyAdmin", "pma_") },
	},
	{
		Family: "wordpress",
		Match:  equals("/wp-admin"),
		Check:  func(b string) bool { return containsAny(b, "WordPress", "wp-login") },
	},
	{
		Family: "robots",
		Match:  equals("/robots.txt"),
		Check: func(b string) bool {
			return strings.HasPrefix(b, "User-agent:") || strings.Contains(b, "Disallow:")
		},
	},
	{
		Family: "sitemap",
		Match:  equals("/sitemap.xml"),
		Check: func(b string) bool {
			return strings.HasPrefix(b, "<?xml") && strings.Contains(b, "<urlset")
		},
	},
	{
		Family: "backup",
		Match:  equals("/backup"),
		Check:  func(b string) bool { return noHTMLTag(b) && len(b) > 100 },
	},
}

// HasSensitiveContent applies the first rule whose family matches path.
// Paths outside every family never count as exposed.
func HasSensitiveContent(path, body string) bool {
	for _, r := range pathRules {
		if r.Match(path) {
			return r.Check(body)
		}
	}
	return false
}

// HasDebugContent reports whether a debug endpoint body looks like runtime
// diagnostics rather than a page.
func HasDebugContent(body string) bool {
	if strings.Contains(body, "<html") {
		return false
	}
	lower := strings.ToLower(body)
	if containsAny(lower, "debug", "version", "environment", "status") {
		return true
	}
	if strings.HasPrefix(body, "{") && containsAny(body, `"version"`, `"status"`) {
		return true
	}
	return containsAny(body, "uptime", "memory")
}
