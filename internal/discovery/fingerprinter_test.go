package discovery

import (
	"testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Shop</title>
  <meta name="description" content="Cafe` + "\u0301" + `">
  <meta name="generator" content="Next.js">
  <meta charset="utf-8">
  <link rel="stylesheet" href="/static/site.css">
  <link rel="stylesheet" href="https://cdn.example.co.uk/bootstrap.min.css">
  <script src="https://js.stripe.com/v3/"></script>
  <script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>
  <script src="/_next/static/chunks/main.js"></script>
</head>
<body>
  <div id="__next"></div>
  <form action="/api/subscribe"></form>
  <form action="/contact"></form>
  <script>fetch('/api/v1/orders'); window.gtag = function(){};</script>
  <script id="__NEXT_DATA__" type="application/json">{"page":"/"}</script>
</body>
</html>`

func TestAnalyze(t *testing.T) {
	a := NewFingerprinter(nil).Analyze(samplePage, "https://shop.example.com")
	require.NotNil(t, a)

	assert.Equal(t, []string{"Next.js/React"}, a.Frameworks)
	assert.Equal(t, []string{"Bootstrap", "Fetch API"}, a.Technologies)
	assert.Equal(t, []string{"Stripe", "Google Services", "Google Analytics"}, a.ThirdPartyServices)

	assert.Equal(t, []string{
		"https://js.stripe.com/v3/",
		"https://www.googletagmanager.com/gtag/js?id=G-1",
		"https://cdn.example.co.uk/bootstrap.min.css",
	}, a.ExternalResources)
	assert.Equal(t, []string{"stripe.com", "googletagmanager.com", "example.co.uk"}, a.ExternalDomains)

	assert.Equal(t, []string{"/api/subscribe", "/contact"}, a.FormActions)
	assert.Equal(t, []string{"/api/subscribe", "/api/v1/orders"}, a.PotentialEndpoints)

	assert.Len(t, a.MetaTags, 2)
	assert.Equal(t, "Next.js", a.MetaTags["generator"])
	assert.Equal(t, "Café", a.MetaTags["description"])
}

func TestAnalyzeEmptyPage(t *testing.T) {
	a := NewFingerprinter(nil).Analyze("", "https://example.com")
	require.NotNil(t, a)
	assert.Empty(t, a.Frameworks)
	assert.Empty(t, a.ExternalResources)
	assert.NotNil(t, a.MetaTags)
	assert.NotNil(t, a.SecurityHeaders)
}

func TestAnalyzeDeduplicatesServices(t *testing.T) {
	html := `<script src="https://cdn.stripe.com/a.js"></script><script src="https://js.stripe.com/b.js"></script>`
	a := NewFingerprinter(nil).Analyze(html, "https://example.com")
	assert.Equal(t, []string{"Stripe"}, a.ThirdPartyServices)
	assert.Len(t, a.ExternalResources, 2)
	assert.Equal(t, []string{"stripe.com"}, a.ExternalDomains)
}

func TestExtractResources(t *testing.T) {
	res := ExtractResources(samplePage, "https://shop.example.com", nil)

	assert.Equal(t, []string{
		"https://js.stripe.com/v3/",
		"https://www.googletagmanager.com/gtag/js?id=G-1",
		"https://shop.example.com/_next/static/chunks/main.js",
	}, res.ScriptURLs)
	assert.Equal(t, []string{
		"https://shop.example.com/static/site.css",
		"https://cdn.example.co.uk/bootstrap.min.css",
	}, res.StylesheetURLs)
	require.Len(t, res.InlineScripts, 2)
	assert.Equal(t, "fetch('/api/v1/orders'); window.gtag = function(){};", res.InlineScripts[0])
	assert.Equal(t, `{"page":"/"}`, res.InlineScripts[1])
	assert.Equal(t, 8, res.Checks())
}

func TestIsExternal(t *testing.T) {
	base := "https://example.com/app/"
	assert.False(t, isExternal(base, "/js/app.js"))
	assert.False(t, isExternal(base, "js/app.js"))
	assert.False(t, isExternal(base, "https://EXAMPLE.com/x.js"))
	assert.True(t, isExternal(base, "//cdn.other.net/x.js"))
	assert.True(t, isExternal(base, "https://cdn.other.net/x.js"))
}
