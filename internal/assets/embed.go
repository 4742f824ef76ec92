// Package assets serves the embedded web UI: the chat page, the settings
// page, and their static scripts and styles. Static files get cache headers
// based on whether their names carry a content hash.
package assets

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
)

//go:embed all:web
var webFS embed.FS

// Page names served at the site root.
const (
	IndexPage    = "index.html"
	SettingsPage = "settings.html"
)

// hashPattern detects content hashes in filenames (e.g. ".CU4W1PlC.").
// Accepts base64url characters with an 8-char minimum.
var hashPattern = regexp.MustCompile(`\.[a-zA-Z0-9_-]{8,}\.`)

func init() {
	// Errors are ignored: these only fail if extension format is invalid,
	// and our literals are known-good.
	_ = mime.AddExtensionType(".woff2", "font/woff2")
	_ = mime.AddExtensionType(".map", "application/json")
}

// containsHash reports whether the given path contains a content hash
// (8+ characters between dots, e.g. "app.a1b2c3d4.js").
func containsHash(p string) bool {
	return hashPattern.MatchString(p)
}

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// Page returns the contents of a top-level HTML page.
func Page(name string) ([]byte, error) {
	return fs.ReadFile(webFS, path.Join("web", name))
}

// FileServer returns an http.Handler that serves embedded assets from web/static/.
// Hashed assets get immutable cache headers; unhashed assets get no-cache.
// The handler expects paths relative to the static root (strip /static/ before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		if containsHash(r.URL.Path) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
