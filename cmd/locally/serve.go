package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"locally/internal/config"
	"locally/internal/handler/admin"
	"locally/internal/server"
)

const eventTimeLayout = "2006-01-02 15:04:05"

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and manage sites until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg)
			a.logs.RecordApp(fmt.Sprintf("[START] Locally started at %s", time.Now().Format(eventTimeLayout)))

			// 外部修改设置文件时热重载
			go func() {
				err := a.settings.Watch(ctx, func(config.Settings) {
					slog.Info("设置文件已重新加载", "path", a.settings.Path())
				})
				if err != nil {
					slog.Warn("无法监听设置文件", "error", err)
				}
			}()

			a.restoreSession()

			h := admin.NewHandler(a.registry, a.settings, a.logs, a.stats, a.session)
			srv := server.New(cfg, h)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			fmt.Fprintf(cmd.OutOrStdout(), "管理接口: http://%s/_api\n", cfg.Server.Addr)

			select {
			case <-ctx.Done():
				slog.Info("收到退出信号，正在关闭")
			case err := <-errCh:
				if err != nil {
					a.shutdown()
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("管理接口关闭失败", "error", err)
			}

			a.saveSession()
			a.shutdown()
			a.logs.RecordApp(fmt.Sprintf("[STOP] Locally closed at %s", time.Now().Format(eventTimeLayout)))
			return nil
		},
	}
}
