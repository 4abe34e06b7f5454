package logging

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecordAndRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "logs"))

	s.RecordApp("[START] Locally started")
	s.Record("ab12cd34", "127.0.0.1 - - [15/Oct/2026 10:00:00] \"GET / HTTP/1.1\" 200 2")
	s.Record("ab12cd34", "second line\n")

	app, err := s.ReadApp()
	require.NoError(t, err)
	assert.Equal(t, "[START] Locally started\n", app)

	site, err := s.ReadSite("ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 - - [15/Oct/2026 10:00:00] \"GET / HTTP/1.1\" 200 2\nsecond line\n", site)

	other, err := s.ReadSite("ffffffff")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreClear(t *testing.T) {
	s := NewStore(t.TempDir())
	s.RecordApp("one")
	s.Record("id1", "two")

	require.NoError(t, s.ClearApp())
	require.NoError(t, s.ClearSite("id1"))

	app, _ := s.ReadApp()
	site, _ := s.ReadSite("id1")
	assert.Empty(t, app)
	assert.Empty(t, site)

	// 清空后继续追加
	s.Record("id1", "three")
	site, _ = s.ReadSite("id1")
	assert.Equal(t, "three\n", site)
}

func TestStoreRemoveSite(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Record("id1", "line")

	require.NoError(t, s.RemoveSite("id1"))
	assert.NoFileExists(t, s.SitePath("id1"))
	require.NoError(t, s.RemoveSite("id1"))
}

func TestStoreSitePathStaysInDir(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	assert.Equal(t, dir, filepath.Dir(s.SitePath("../../etc/passwd")))
}

func TestStoreFollow(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Record("id1", "existing")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := s.Follow(ctx, "id1")
	require.NoError(t, err)

	assert.Equal(t, "existing", receive(t, lines))

	s.Record("id1", "appended")
	assert.Equal(t, "appended", receive(t, lines))

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-lines:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func receive(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for log line")
		return ""
	}
}
