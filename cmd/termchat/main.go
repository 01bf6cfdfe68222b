package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/internal/logging"
	"github.com/omochice/termchat/internal/session"
	"github.com/omochice/termchat/internal/ui"
)

const exitUsage = 2

// usageError marks configuration problems detected before connecting.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(exitUsage)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		flags      = config.Default()
	)

	cmd := &cobra.Command{
		Use:           "termchat --username <name> --room <room> [--hostUri <url>]",
		Short:         "Chat with a room from the terminal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, configFile, flags)
			if err != nil {
				return &usageError{err: err}
			}
			if err := cfg.Validate(); err != nil {
				return &usageError{err: err}
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Username, "username", "", "Name shown to the room")
	f.StringVar(&flags.Room, "room", "", "Room to join")
	f.StringVar(&flags.HostURI, "hostUri", config.DefaultHostURI, "Chat server URI (http, https, ws or wss)")
	f.DurationVar(&flags.HandshakeTimeout, "handshake-timeout", config.DefaultHandshakeTimeout, "Time allowed to connect and upgrade")
	f.StringVar(&flags.LogFile, "log-file", "", "Diagnostic log file (default "+logging.DefaultFile()+")")
	f.StringVar(&flags.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.BoolVar(&flags.Plain, "plain", false, "Use line mode instead of the full-screen interface")
	f.StringVar(&configFile, "config", "", "TOML file with default settings")
	return cmd
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, configFile string, flags config.Config) (config.Config, error) {
	cfg := config.Default()
	cfg.LogLevel = flags.LogLevel
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFile(configFile, cfg); err != nil {
			return config.Config{}, err
		}
	}

	set := cmd.Flags().Changed
	if set("username") {
		cfg.Username = flags.Username
	}
	if set("room") {
		cfg.Room = flags.Room
	}
	if set("hostUri") {
		cfg.HostURI = flags.HostURI
	}
	if set("handshake-timeout") {
		cfg.HandshakeTimeout = flags.HandshakeTimeout
	}
	if set("log-file") {
		cfg.LogFile = flags.LogFile
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if set("plain") {
		cfg.Plain = flags.Plain
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger, closer := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(eventbus.WithLogger(logger))
	sess, err := session.New(cfg, bus, logger)
	if err != nil {
		return &usageError{err: err}
	}

	logger.Info().Str("user", cfg.Username).Str("room", cfg.Room).Str("host", cfg.HostURI).Msg("Starting termchat")

	plain := cfg.Plain || !isTerminal(os.Stdout) || !isTerminal(os.Stdin)
	if plain {
		return runPlain(ctx, sess, bus)
	}
	return runTUI(ctx, sess, bus, cfg, logger)
}

func runTUI(ctx context.Context, sess *session.Session, bus *eventbus.Bus, cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(bus, fmt.Sprintf("termchat - %s@%s", cfg.Username, cfg.Room))
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Bind(bus, programSink(program.Send))

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		select {
		case <-sess.Done():
			program.Send(ui.SessionEndedMsg{Err: sess.Err()})
		case <-ctx.Done():
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error().Err(err).Msg("Terminal UI failed")
		return err
	}
	if err := sess.Err(); err != nil {
		return errors.Wrap(err, "connection lost")
	}
	return nil
}

func runPlain(ctx context.Context, sess *session.Session, bus *eventbus.Bus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// a blocked read on stdin is not interrupted by Close; keep it open
	stdin := struct{ io.Reader }{os.Stdin}
	front := ui.NewPlain(bus, stdin, os.Stdout)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return front.Run(ctx)
	})
	eg.Go(func() error {
		select {
		case <-sess.Done():
			cancel()
			if err := sess.Err(); err != nil {
				return errors.Wrap(err, "connection lost")
			}
			fmt.Fprintln(os.Stdout, "Disconnected from server")
		case <-ctx.Done():
		}
		return nil
	})
	return eg.Wait()
}

// programSink adapts a tea.Program's Send to the sink expected by ui.Bind.
func programSink(send func(tea.Msg)) func(any) {
	return func(msg any) {
		send(msg)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
