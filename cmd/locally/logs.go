package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"locally/internal/logging"
)

func logsCmd(load loader) *cobra.Command {
	var clearLog bool

	cmd := &cobra.Command{
		Use:   "logs [site-id]",
		Short: "Print or clear the application log or a site log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logs := logging.NewStore(cfg.LogsPath())

			if clearLog {
				if len(args) == 1 {
					err = logs.ClearSite(args[0])
				} else {
					err = logs.ClearApp()
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "日志已清空")
				return nil
			}

			var content string
			if len(args) == 1 {
				content, err = logs.ReadSite(args[0])
			} else {
				content, err = logs.ReadApp()
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearLog, "clear", false, "清空日志")
	return cmd
}
