package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/chatline/pkg/config"
)

func newAskCmd(configPath *string) *cobra.Command {
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, logFile, err := newLogger(cfg.Log, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}

			a, err := newApp(cfg, log, systemPrompt)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.session.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt (overrides dispatch.system_prompt)")
	return cmd
}
