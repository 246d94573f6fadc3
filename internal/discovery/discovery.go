package discovery

import (
	"net/url"
	"strings"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
)

// Resources are the secondary documents referenced by a page, resolved
// against the page URL and kept in document order.
type Resources struct {
	ScriptURLs     []string
	InlineScripts  []string
	StylesheetURLs []string
}

// Checks is the number of independently scanned texts, the page included.
func (r Resources) Checks() int {
	return 1 + len(r.ScriptURLs) + len(r.InlineScripts) + len(r.StylesheetURLs)
}

func parseDocument(html string, logger *logrus.Logger) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.WithError(err).Warn("Failed to parse HTML document")
		return nil
	}
	return doc
}

// ExtractResources collects external scripts, inline scripts and stylesheet
// links. Unparseable markup yields an empty set.
func ExtractResources(html, baseURL string, logger *logrus.Logger) Resources {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	res := Resources{}
	doc := parseDocument(html, logger)
	if doc == nil {
		return res
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			res.ScriptURLs = append(res.ScriptURLs, vhttp.ResolveURL(baseURL, src))
		}
	})
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		res.InlineScripts = append(res.InlineScripts, s.Text())
	})
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			res.StylesheetURLs = append(res.StylesheetURLs, vhttp.ResolveURL(baseURL, href))
		}
	})
	return res
}

// isExternal reports whether ref points at a host other than the page's own.
func isExternal(baseURL, ref string) bool {
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return !strings.HasPrefix(ref, baseURL)
	}
	resolved, err := url.Parse(vhttp.ResolveURL(baseURL, ref))
	if err != nil {
		return false
	}
	return !strings.EqualFold(resolved.Hostname(), base.Hostname())
}
