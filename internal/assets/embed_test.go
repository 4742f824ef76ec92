// ABOUTME: Tests for embedded page lookup and static file cache headers
// ABOUTME: Requests go through httptest against the embedded file server

package assets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestContainsHash(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"js/app.a1b2c3d4.js", true},
		{"assets/app.CU4W1PlC.css", true},
		{"index.html", false},
		{"app.js", false},
		{".gitkeep", false},
	}
	for _, tt := range tests {
		if got := containsHash(tt.path); got != tt.want {
			t.Errorf("containsHash(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMimeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".js", "application/javascript"},
		{".mjs", "application/javascript"},
		{".css", "text/css; charset=utf-8"},
		{".woff2", "font/woff2"},
		{".svg", "image/svg+xml"},
		{".map", "application/json"},
		{".qqqqqq", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeFromExt(tt.ext); got != tt.want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestPages(t *testing.T) {
	for _, name := range []string{IndexPage, SettingsPage} {
		data, err := Page(name)
		if err != nil {
			t.Fatalf("Page(%q) error = %v", name, err)
		}
		if !strings.Contains(string(data), "<html") {
			t.Errorf("Page(%q) does not look like HTML", name)
		}
	}

	if _, err := Page("missing.html"); err == nil {
		t.Error("Page(missing.html) error = nil, want error")
	}
}

func TestFileServer(t *testing.T) {
	srv := FileServer()

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/javascript" {
		t.Errorf("Content-Type = %q, want application/javascript", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope.js", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}
