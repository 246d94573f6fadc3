package utils

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"time"
	"github.com/google/uuid"
)

var reHostLabel = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)

func GenerateUUID() string {
	return uuid.NewString()
}

func IsValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	for _, part := range strings.Split(domain, ".") {
		if len(part) == 0 || len(part) > 63 {
			return false
		}
		if !reHostLabel.MatchString(part) {
			return false
		}
		if part[0] == '-' || part[len(part)-1] == '-' {
			return false
		}
	}
	return true
}

func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// NormalizeTargetURL accepts bare hosts and returns an absolute http(s) URL.
func NormalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	h := u.Hostname()
	if h == "" || !(IsValidIP(h) || IsValidDomain(h)) {
		return "", fmt.Errorf("invalid host: %q", h)
	}
	return u.String(), nil
}

func AppendUnique(slice []string, items ...string) []string {
	for _, item := range items {
		if !StringInSlice(item, slice) {
			slice = append(slice, item)
		}
	}
	return slice
}

func StringInSlice(str string, slice []string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

// LastPathSegment returns the final non-empty path element of a URL, or the
// raw string when it does not parse.
func LastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	p := rawURL
	if err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return rawURL
	}
	return path.Base(p)
}

func TruncateString(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func HumanizeDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

