// ABOUTME: File-backed settings store with patch-merge writes and atomic replacement
// ABOUTME: Every failure surfaces as a chat.StoreError; the file is never left half-written

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"

	"github.com/2389/nanobot-gateway/internal/chat"
)

// ErrNotFound is returned when the settings file does not exist.
var ErrNotFound = errors.New("settings file not found")

// Field is one value to set in the document. Path uses dotted sjson syntax;
// build it with Key to escape user-supplied names.
type Field struct {
	Path  string
	Value any
}

// Patch is an ordered list of fields merged into the document in one write.
type Patch []Field

// Store reads and writes the settings file.
type Store struct {
	path   string
	logger *slog.Logger
	cache  bool

	writeMu sync.Mutex
	group   singleflight.Group

	mu     sync.RWMutex
	cached *Document
	gen    uint64
}

// Option configures a Store.
type Option func(*Store)

// WithCache keeps the parsed document in memory until a write or Invalidate.
func WithCache(enabled bool) Option {
	return func(s *Store) { s.cache = enabled }
}

// NewStore creates a store for the settings file at path.
func NewStore(path string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "settings"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the parsed document. The result is shared; callers must not modify it.
func (s *Store) Read(ctx context.Context) (*Document, error) {
	if s.cache {
		s.mu.RLock()
		doc := s.cached
		s.mu.RUnlock()
		if doc != nil {
			return doc, nil
		}
	}

	v, err, _ := s.group.Do("load", func() (any, error) {
		s.mu.RLock()
		gen := s.gen
		s.mu.RUnlock()

		raw, err := s.readRaw()
		if err != nil {
			return nil, err
		}
		doc, err := ParseDocument(raw)
		if err != nil {
			return nil, err
		}
		if s.cache {
			s.mu.Lock()
			// A write or invalidation during the load makes this copy stale
			if s.gen == gen {
				s.cached = doc
			}
			s.mu.Unlock()
		}
		return doc, nil
	})
	if err != nil {
		return nil, &chat.StoreError{Op: "read", Err: err}
	}
	return v.(*Document), nil
}

// Section returns the raw JSON of a top-level or dotted section exactly as
// stored, or "{}" when it is absent.
func (s *Store) Section(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := s.readRaw()
	if err != nil {
		return nil, &chat.StoreError{Op: "read", Err: err}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &chat.StoreError{Op: "read", Err: errors.New("settings document is not valid JSON")}
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() || !res.IsObject() {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(res.Raw), nil
}

// ChannelSections returns every channel section verbatim, keyed by channel name.
func (s *Store) ChannelSections(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(ChannelNames))
	for _, name := range ChannelNames {
		section, err := s.Section(ctx, "channels."+name)
		if err != nil {
			return nil, err
		}
		out[name] = section
	}
	return out, nil
}

// Write merges patch into the stored document, validates the result, and
// atomically replaces the file.
func (s *Store) Write(ctx context.Context, patch Patch) error {
	return s.Modify(ctx, func([]byte) (Patch, error) {
		return patch, nil
	})
}

// Modify reads the current document, lets fn build a patch from it, and
// writes the patch, all under the write lock.
func (s *Store) Modify(ctx context.Context, fn func(raw []byte) (Patch, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := s.readRaw()
	if err != nil {
		return &chat.StoreError{Op: "write", Err: err}
	}
	if !gjson.ValidBytes(raw) {
		return &chat.StoreError{Op: "write", Err: errors.New("settings document is not valid JSON")}
	}

	patch, err := fn(raw)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	doc, merged, err := applyPatch(raw, patch)
	if err != nil {
		return &chat.StoreError{Op: "write", Err: err}
	}
	if err := writeAtomic(s.path, merged); err != nil {
		return &chat.StoreError{Op: "write", Err: err}
	}

	s.mu.Lock()
	s.gen++
	if s.cache {
		s.cached = doc
	}
	s.mu.Unlock()

	s.logger.Info("settings updated", "path", s.path, "fields", len(patch))
	return nil
}

// Init writes doc to the settings path if no file exists yet.
// Returns false when a file was already present.
func (s *Store) Init(doc *Document) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, &chat.StoreError{Op: "init", Err: err}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, &chat.StoreError{Op: "init", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return false, &chat.StoreError{Op: "init", Err: fmt.Errorf("creating settings directory: %w", err)}
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		return false, &chat.StoreError{Op: "init", Err: err}
	}
	return true, nil
}

// Invalidate drops the cached document so the next Read goes to disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) readRaw() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	return raw, nil
}

// applyPatch sets every field in raw and validates the merged result.
func applyPatch(raw []byte, patch Patch) (*Document, []byte, error) {
	merged := raw
	for _, f := range patch {
		var err error
		merged, err = sjson.SetBytes(merged, f.Path, f.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("setting %s: %w", f.Path, err)
		}
	}

	doc, err := ParseDocument(merged)
	if err != nil {
		return nil, nil, err
	}
	return doc, pretty.PrettyOptions(merged, &pretty.Options{Width: 80, Indent: "  "}), nil
}

// writeAtomic replaces path with data via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	mode := fs.FileMode(0600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// Key escapes a user-supplied name for use as one sjson path component.
func Key(name string) string {
	r := strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(name)
}
