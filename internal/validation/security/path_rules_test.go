package security

import (
	"testing"
	"github.com/stretchr/testify/assert"
)

func TestHasSensitiveContent(t *testing.T) {
	cases := []struct {
		path string
		body string
		want bool
	}{
		{"/.env", "DB_PASSWORD=hunter2", true},
		{"/.env.production", "PORT=8080", false},
		{"/api/.env", "SECRET: nope", false},
		{"/config.json", `{"config": {"debug": true}}`, true},
		{"/config.json", `{"name": "x"}`, false},
		{"/api/config.yaml", "config:\n  key: value", true},
		{"/config.yml", "<html>config: x</html>", false},
		{"/config.toml", "[server]\nport = 1", true},
		{"/api/debug.json", `{"debug": true}`, true},
		{"/debug.yaml", "level: info", false},
		{"/package.json", `{"name": "app"}`, true},
		{"/composer.json", `{"require": {}}`, true},
		{"/composer.json", `"require"`, false},
		{"/requirements.txt", "flask==2.0.1", true},
		{"/requirements.txt", "flask", false},
		{"/Cargo.toml", "[package]\nname = \"x\"", true},
		{"/.git/config", "[core]\n\tbare = false", true},
		{"/.gitignore", "node_modules/\n", true},
		{"/.gitignore", "dist/\n", false},
		{"/admin", "Admin Dashboard", true},
		{"/admin", "<html>admin login</html>", false},
		{"/phpmyadmin", "Welcome to phpMyAdmin", true},
		{"/wp-admin", "redirecting to wp-login.php", true},
		{"/robots.txt", "User-agent: *", true},
		{"/robots.txt", "# empty", false},
		{"/sitemap.xml", `<?xml version="1.0"?><urlset></urlset>`, true},
		{"/sitemap.xml", `<urlset></urlset>`, false},
		{"/backup", string(make([]byte, 101)), true},
		{"/backup", "short", false},
		{"/unknown", "API_KEY=1", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HasSensitiveContent(tc.path, tc.body), "%s: %q", tc.path, tc.body)
	}
}

func TestHasDebugContent(t *testing.T) {
	assert.True(t, HasDebugContent(`{"version":"1.0"}`))
	assert.True(t, HasDebugContent("uptime: 3d"))
	assert.True(t, HasDebugContent("Environment: staging"))
	assert.False(t, HasDebugContent("hello world"))
	assert.False(t, HasDebugContent("<html>debug</html>"))
}

func TestProductVersion(t *testing.T) {
	assert.Equal(t, "1.18.0", productVersion("nginx/1.18.0 (Ubuntu)"))
	assert.Equal(t, "7.4.3", productVersion("PHP/7.4.3"))
	assert.Equal(t, "10.0.0", productVersion("Microsoft-IIS/10.0"))
	assert.Equal(t, "", productVersion("cloudflare"))
}

func TestPathListSizes(t *testing.T) {
	assert.Len(t, SensitivePaths, 30)
	assert.Len(t, DebugPaths, 9)
}
