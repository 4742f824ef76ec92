// ABOUTME: Tests that the fsnotify watcher invalidates the settings cache
// ABOUTME: Edits the document out of band and waits for the next read to see them

package settings

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherInvalidatesOnExternalEdit(t *testing.T) {
	s := newTestStore(t, sampleDoc, WithCache(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(s, nil)
	require.NoError(t, err)
	defer w.Close()
	go w.Run(ctx)

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "anthropic/claude-opus-4-5", doc.Agents.Defaults.Model)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"agents": {"defaults": {"model": "edited"}}}`), 0600))

	assert.Eventually(t, func() bool {
		doc, err := s.Read(ctx)
		return err == nil && doc.Agents.Defaults.Model == "edited"
	}, 2*time.Second, 20*time.Millisecond)
}
