package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pario-ai/chatline/pkg/config"
	"github.com/pario-ai/chatline/pkg/ui/chat"
)

func newChatCmd(configPath *string) *cobra.Command {
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a chat session (line mode when stdin is not a terminal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			interactive := isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout())
			log, logFile, err := newLogger(cfg.Log, interactive, cmd.ErrOrStderr())
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !interactive {
				err := chat.RunLines(ctx, a.session, cmd.InOrStdin(), cmd.OutOrStdout())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			m := chat.New(ctx, a.session, chat.WithTitle("chatline · "+cfg.Provider.Model))
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("run chat ui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt (overrides dispatch.system_prompt)")
	return cmd
}

// isTerminal reports whether v is an *os.File attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
