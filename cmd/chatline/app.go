package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pario-ai/chatline/pkg/cache/memory"
	"github.com/pario-ai/chatline/pkg/config"
	"github.com/pario-ai/chatline/pkg/conversation"
	"github.com/pario-ai/chatline/pkg/dispatch"
	"github.com/pario-ai/chatline/pkg/provider"
	"github.com/pario-ai/chatline/pkg/usage"
)

// newLogger builds the root logger. In quiet mode (full-screen UI) nothing is
// written to the terminal: output goes to cfg.File or is discarded.
func newLogger(cfg config.LogConfig, quiet bool, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
	}
	if quiet {
		return zerolog.Nop(), nil, nil
	}

	out := stderr
	if isTerminal(stderr) {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil, nil
}

// app holds the wired components behind one command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	cache   *memory.Cache
	ledger  *usage.Ledger
	session *conversation.Session
	closers []io.Closer
}

func newApp(cfg *config.Config, log zerolog.Logger, systemPrompt string) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.Cache.Enabled {
		a.cache = memory.New(cfg.Cache.TTL)
		a.closers = append(a.closers, a.cache)
	}

	opts := []dispatch.Option{dispatch.WithLogger(log)}
	if cfg.Usage.Enabled {
		ledger, err := usage.Open(cfg.Usage.DBPath,
			usage.WithRetention(cfg.Usage.Retention),
			usage.WithLogger(log),
		)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init usage ledger: %w", err)
		}
		a.ledger = ledger
		a.closers = append(a.closers, ledger)
		opts = append(opts, dispatch.WithRecorder(ledger))
	}

	client := provider.New(cfg.Provider)
	d := dispatch.New(a.cache, client, opts...)

	if systemPrompt == "" {
		systemPrompt = cfg.Dispatch.SystemPrompt
	}
	a.session = conversation.NewSession(d,
		conversation.WithSystemPrompt(systemPrompt),
		conversation.WithTimeout(cfg.Dispatch.Timeout),
		conversation.WithLogger(log),
	)

	log.Debug().
		Str("model", cfg.Provider.Model).
		Bool("cache", cfg.Cache.Enabled).
		Bool("usage", cfg.Usage.Enabled).
		Msg("app ready")
	return a, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
