package main

import (
	"errors"
	"log/slog"

	"locally/internal/analytics"
	"locally/internal/config"
	"locally/internal/logging"
	"locally/internal/site"
)

type loader func() (*config.Config, error)

// app 进程内共享的组件
type app struct {
	cfg      *config.Config
	settings *config.SettingsStore
	logs     *logging.Store
	stats    *analytics.Manager
	registry *site.Registry
	session  *site.FileStore
}

func newApp(cfg *config.Config) *app {
	settings := config.NewSettingsStore(cfg.SettingsPath())
	logs := logging.NewStore(cfg.LogsPath())
	stats := analytics.NewManager(cfg.StatsPath())

	return &app{
		cfg:      cfg,
		settings: settings,
		logs:     logs,
		stats:    stats,
		registry: site.NewRegistry(site.Options{
			Settings:        settings,
			Recorder:        logs,
			Stats:           stats,
			ShutdownTimeout: cfg.ShutdownGrace(),
		}),
		session: site.NewFileStore(cfg.SessionPath()),
	}
}

// restoreSession 恢复上次会话并启动 auto_start_sites 中的站点
func (a *app) restoreSession() {
	st := a.settings.Current()
	if st.RememberLastSession {
		records, err := a.session.Load()
		if err != nil {
			slog.Warn("读取会话失败", "path", a.session.Path(), "error", err)
		} else if restored := a.registry.Restore(records); len(restored) > 0 {
			slog.Info("已恢复上次会话", "sites", len(restored))
		}
	}

	for _, key := range st.AutoStartSites {
		s, err := a.registry.Lookup(key)
		if err != nil {
			slog.Warn("自动启动的站点不存在", "site", key)
			continue
		}
		if err := a.registry.Start(s.ID); err != nil && !errors.Is(err, site.ErrAlreadyRunning) {
			slog.Error("自动启动站点失败", "site", key, "error", err)
		}
	}
}

func (a *app) saveSession() {
	if !a.settings.Current().RememberLastSession {
		return
	}
	if err := a.session.Save(a.registry.Snapshot()); err != nil {
		slog.Error("保存会话失败", "error", err)
	}
}

// shutdown 停止所有站点并写入统计快照
func (a *app) shutdown() {
	if err := a.registry.StopAll(); err != nil {
		slog.Warn("部分站点未能正常停止", "error", err)
	}
	a.stats.StopAll()
}
