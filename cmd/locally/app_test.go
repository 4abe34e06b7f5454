package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locally/internal/config"
	"locally/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.ShutdownTimeout = 2
	return cfg
}

func TestRestoreSessionAndAutoStart(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0644))

	first := newApp(cfg)
	s, err := first.registry.Create("blog", dir, 0)
	require.NoError(t, err)
	_, err = first.registry.Create("other", dir, 0)
	require.NoError(t, err)
	first.saveSession()
	first.shutdown()

	_, err = first.settings.Update(func(st *config.Settings) {
		st.AutoStartSites = []string{"blog", "missing"}
	})
	require.NoError(t, err)

	second := newApp(cfg)
	defer second.shutdown()
	second.restoreSession()

	require.Len(t, second.registry.List(), 2)
	restored, err := second.registry.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Port, restored.Port)
	assert.True(t, restored.Running())

	other, err := second.registry.Lookup("other")
	require.NoError(t, err)
	assert.False(t, other.Running())
}

func TestRestoreSessionDisabled(t *testing.T) {
	cfg := testConfig(t)
	first := newApp(cfg)
	_, err := first.registry.Create("blog", t.TempDir(), 0)
	require.NoError(t, err)
	first.saveSession()

	_, err = first.settings.Update(func(st *config.Settings) { st.RememberLastSession = false })
	require.NoError(t, err)

	second := newApp(cfg)
	defer second.shutdown()
	second.restoreSession()
	assert.Empty(t, second.registry.List())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "locally dev\n", out.String())
}

func TestLogsCommand(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(cfg)
	a.logs.RecordApp("[START] Site blog started")

	load := func() (*config.Config, error) { return cfg, nil }

	var out bytes.Buffer
	cmd := logsCmd(load)
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "[START] Site blog started")

	out.Reset()
	cmd = logsCmd(load)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--clear"})
	require.NoError(t, cmd.Execute())

	content, err := a.logs.ReadApp()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSettingsCommandPath(t *testing.T) {
	cfg := testConfig(t)
	load := func() (*config.Config, error) { return cfg, nil }

	var out bytes.Buffer
	cmd := settingsCmd(load)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, cfg.SettingsPath()+"\n", out.String())
}

func TestServeRecordsProcessEvents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Addr = "127.0.0.1:0"
	load := func() (*config.Config, error) { return cfg, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := serveCmd(load)
	cmd.SetOut(io.Discard)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.ExecuteContext(ctx))

	content, err := logging.NewStore(cfg.LogsPath()).ReadApp()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^\[START\] Locally started at \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, lines[0])
	assert.Regexp(t, `^\[STOP\] Locally closed at \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, lines[1])
}
