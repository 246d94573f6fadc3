package http

import (
	"regexp"
	"strings"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
)

var reTitle = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

var notFoundMarkers = []string{
	"404",
	"Not Found",
	"Page Not Found",
	"Do you think this is a mistake",
	"page not found",
	"PAGE NOT FOUND",
}

var htmlMarkers = []string{"<!doctype html", "<html", "<head>"}

// minTitleLength is the shortest main-page title trusted as a catch-all signal.
const minTitleLength = 5

// shortHTMLLength bounds the size of a bare HTML shell treated as a catch-all.
const shortHTMLLength = 2000

// Baseline describes the site's main page. Probe responses that look like it
// are served by a catch-all route rather than the requested path.
type Baseline struct {
	Length int
	Title  string
	Hash   uint64
}

func NewBaseline(body string) Baseline {
	return Baseline{
		Length: len(body),
		Title:  ExtractTitle(body),
		Hash:   BodyFingerprint(body),
	}
}

// ResponseClassifier rejects probe responses that are SPA shells, custom
// error pages or generic HTML instead of the file that was asked for.
type ResponseClassifier struct {
	baseline *Baseline
	logger   *logrus.Logger
}

func NewResponseClassifier(baseline *Baseline, logger *logrus.Logger) *ResponseClassifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &ResponseClassifier{baseline: baseline, logger: logger}
}

func (r *ResponseClassifier) Baseline() *Baseline {
	return r.baseline
}

// IsCatchAll reports whether body is the main page served for an unknown path.
func (r *ResponseClassifier) IsCatchAll(body string) bool {
	if r.baseline == nil {
		return false
	}
	b := r.baseline
	if len(body) == b.Length && len(b.Title) > minTitleLength && strings.Contains(body, b.Title) {
		return true
	}
	return b.Length > 0 && len(body) == b.Length && BodyFingerprint(body) == b.Hash
}

// IsLikelyCatchAllShell flags small HTML documents and HTML error pages.
func (r *ResponseClassifier) IsLikelyCatchAllShell(body string) bool {
	return strings.Contains(body, "<!DOCTYPE html>") && strings.Contains(body, "<html") &&
		(len(body) < shortHTMLLength || IsCustom404(body))
}

// IsFalsePositive combines the catch-all, 404 and HTML tests.
func (r *ResponseClassifier) IsFalsePositive(body string) (bool, string) {
	switch {
	case r.IsCatchAll(body):
		return true, "catch-all"
	case IsCustom404(body):
		return true, "custom-404"
	case IsHTML(body):
		return true, "html"
	}
	return false, ""
}

func IsCustom404(body string) bool {
	for _, m := range notFoundMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

func IsHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range htmlMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func ExtractTitle(body string) string {
	if m := reTitle.FindStringSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func BodyFingerprint(body string) uint64 {
	return xxh3.HashString(body)
}
