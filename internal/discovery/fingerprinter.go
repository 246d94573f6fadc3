package discovery

import (
	"net/url"
	"regexp"
	"strings"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

type marker struct {
	Label     string
	Fragments []string
}

func (m marker) foundIn(s string) bool {
	for _, f := range m.Fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

var frameworkMarkers = []marker{
	{"Next.js/React", []string{"React", "_next", "__NEXT_DATA__"}},
	{"Vue.js", []string{"Vue", "vue.js"}},
	{"Angular", []string{"angular", "ng-"}},
	{"Svelte", []string{"svelte"}},
}

var technologyMarkers = []marker{
	{"Webpack", []string{"webpack"}},
	{"Vite", []string{"vite"}},
	{"Tailwind CSS", []string{"tailwind", "tw-"}},
	{"Bootstrap", []string{"bootstrap"}},
	{"jQuery", []string{"jquery"}},
	{"Axios", []string{"axios"}},
	{"Fetch API", []string{"fetch("}},
}

// serviceURLMarkers match against external script and stylesheet references.
var serviceURLMarkers = []marker{
	{"Google Services", []string{"google"}},
	{"Facebook", []string{"facebook", "fb.com"}},
	{"Cloudflare", []string{"cloudflare"}},
	{"Stripe", []string{"stripe"}},
}

// serviceContentMarkers match anywhere in the page.
var serviceContentMarkers = []marker{
	{"Google Analytics", []string{"gtag", "google-analytics"}},
	{"Hotjar", []string{"hotjar"}},
	{"Mixpanel", []string{"mixpanel"}},
	{"Sentry", []string{"sentry"}},
}

var endpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/api/[a-zA-Z0-9_\-/]+`),
	regexp.MustCompile(`https?://[^/]+/api/[a-zA-Z0-9_\-/]+`),
	regexp.MustCompile(`'/(api|v1|v2|v3)/[^']*'`),
	regexp.MustCompile(`"/api/[^"]*"`),
}

// Fingerprinter performs best-effort static analysis of page markup.
type Fingerprinter struct {
	logger *logrus.Logger
}

func NewFingerprinter(logger *logrus.Logger) *Fingerprinter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fingerprinter{logger: logger}
}

// Analyze never fails: markup that cannot be parsed still gets the
// substring-based detections.
func (f *Fingerprinter) Analyze(html, baseURL string) *models.SecurityAnalysis {
	a := models.NewSecurityAnalysis()

	for _, m := range frameworkMarkers {
		if m.foundIn(html) {
			a.Frameworks = utils.AppendUnique(a.Frameworks, m.Label)
		}
	}
	for _, m := range technologyMarkers {
		if m.foundIn(html) {
			a.Technologies = utils.AppendUnique(a.Technologies, m.Label)
		}
	}

	if doc := parseDocument(html, f.logger); doc != nil {
		f.analyzeDocument(doc, baseURL, a)
	}

	for _, re := range endpointPatterns {
		for _, match := range re.FindAllString(html, -1) {
			endpoint := strings.Trim(match, `"'`)
			a.PotentialEndpoints = utils.AppendUnique(a.PotentialEndpoints, endpoint)
		}
	}

	for _, m := range serviceContentMarkers {
		if m.foundIn(html) {
			a.ThirdPartyServices = utils.AppendUnique(a.ThirdPartyServices, m.Label)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"frameworks":   len(a.Frameworks),
		"technologies": len(a.Technologies),
		"services":     len(a.ThirdPartyServices),
		"external":     len(a.ExternalResources),
		"endpoints":    len(a.PotentialEndpoints),
		"meta_tags":    len(a.MetaTags),
	}).Debug("Security context analysed")
	return a
}

func (f *Fingerprinter) analyzeDocument(doc *goquery.Document, baseURL string, a *models.SecurityAnalysis) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, okName := s.Attr("name")
		content, okContent := s.Attr("content")
		if okName && okContent {
			a.MetaTags[norm.NFC.String(name)] = norm.NFC.String(content)
		}
	})

	addExternal := func(ref string) {
		a.ExternalResources = append(a.ExternalResources, ref)
		for _, m := range serviceURLMarkers {
			if m.foundIn(ref) {
				a.ThirdPartyServices = utils.AppendUnique(a.ThirdPartyServices, m.Label)
			}
		}
		if domain := registrableDomain(baseURL, ref); domain != "" {
			a.ExternalDomains = utils.AppendUnique(a.ExternalDomains, domain)
		}
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); src != "" && isExternal(baseURL, src) {
			addExternal(src)
		}
	})
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		if href, _ := s.Attr("href"); href != "" && isExternal(baseURL, href) {
			addExternal(href)
		}
	})

	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		a.FormActions = append(a.FormActions, action)
		if strings.HasPrefix(action, "/api/") || strings.HasPrefix(action, "api/") {
			a.PotentialEndpoints = utils.AppendUnique(a.PotentialEndpoints, action)
		}
	})
}

// registrableDomain returns the eTLD+1 of ref's host, so cdn.example.co.uk
// and static.example.co.uk both map to example.co.uk.
func registrableDomain(baseURL, ref string) string {
	u, err := url.Parse(vhttp.ResolveURL(baseURL, ref))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return strings.ToLower(u.Hostname())
	}
	return domain
}
