package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"locally/internal/site"
)

func hostCmd(load loader) *cobra.Command {
	var (
		name string
		port int
	)

	cmd := &cobra.Command{
		Use:   "host <dir|archive>",
		Short: "Serve a single folder or archive until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.shutdown()

			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("无法访问 %s: %w", args[0], err)
			}

			var s *site.Site
			if info.IsDir() {
				s, err = a.registry.Create(name, args[0], port)
			} else {
				if port != 0 {
					return fmt.Errorf("导入压缩包时不支持 --port")
				}
				s, err = a.registry.Import(name, args[0])
			}
			if err != nil {
				return err
			}

			if err := a.registry.Start(s.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s 已启动: %s\n按 Ctrl+C 停止\n", s.Name, s.URL())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			return a.registry.Stop(s.ID)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "站点名称（默认取目录或压缩包名）")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口（默认在设置的端口范围内自动分配）")
	return cmd
}
