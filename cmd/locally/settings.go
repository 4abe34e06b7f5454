package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"locally/internal/config"
)

func settingsCmd(load loader) *cobra.Command {
	var showPath bool

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			path := cfg.SettingsPath()
			if showPath {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}

			data, err := json.MarshalIndent(config.LoadSettings(path), "", "  ")
			if err != nil {
				return fmt.Errorf("序列化设置失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPath, "path", false, "只输出设置文件路径")
	return cmd
}
