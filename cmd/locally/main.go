package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"locally/internal/config"
	"locally/internal/logging"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "locally",
		Short:         "Serve local folders and archives over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "启动配置文件路径 (TOML)")

	load := func() (*config.Config, error) {
		cfg, created, err := config.LoadOrInit(configPath, true)
		if err != nil {
			return nil, fmt.Errorf("加载配置失败: %w", err)
		}
		logging.SetLevelWithStr(cfg.Server.LogLevel)
		if created {
			slog.Info("已生成默认配置文件", "path", configPath)
		}
		return cfg, nil
	}

	root.AddCommand(
		serveCmd(load),
		hostCmd(load),
		settingsCmd(load),
		logsCmd(load),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "locally", version)
		},
	}
}
