// chatstream - Stream chat completions from OpenAI-compatible servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/cli"
	"github.com/jeranaias/chatstream/internal/commands"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/logging"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/scroll"
	"github.com/jeranaias/chatstream/internal/ui/chat"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}

	// Version and help need no configuration.
	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return cli.ExitSuccess
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	}

	cfg, path, err := loadConfig(args)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	overrides := config.EnvOverrides().Merge(cli.OverridesFromArgs(args))
	effective, err := overrides.Applied(cfg)
	if err != nil {
		if !errors.Is(err, config.ErrNoEndpoint) {
			err = fmt.Errorf("invalid config: %w", err)
		}
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}

	logger, err := setupLogging(effective.Log, args.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		logger = logging.Discard()
	}
	defer logger.Close()
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"command": cmd.String(),
		"config":  path,
		"version": Version,
	}).Info("Starting chatstream")

	store := config.NewStore(cfg, path, logger.Component("config"))
	if err := store.SetOverrides(overrides); err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), stopSignals(cmd)...)
	defer stop()

	if err := store.Watch(ctx); err != nil {
		log.WithError(err).Warn("Config file will not be reloaded on change")
	}

	app := cli.NewApp(store, logger.Component("app"), os.Stdout, os.Stderr)
	if cmd == cli.CmdTUI {
		err = runTUI(app, logger)
	} else {
		err = cli.Run(ctx, cmd, args, app)
	}
	if err != nil {
		log.WithError(err).Debug("Command failed")
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// loadConfig reads the saved configuration, without overrides. The
// returned path is where changes are saved.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	if args.ConfigPath == "" {
		return config.Load()
	}
	if _, err := os.Stat(args.ConfigPath); err != nil {
		return config.Default(), args.ConfigPath, nil
	}
	cfg, err := config.LoadFromPath(args.ConfigPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, args.ConfigPath, nil
}

// stopSignals lists the signals that end a command. The REPL and the TUI
// handle Ctrl+C themselves, to cancel a reply without exiting.
func stopSignals(cmd cli.Command) []os.Signal {
	switch cmd {
	case cli.CmdChat, cli.CmdTUI:
		return []os.Signal{syscall.SIGTERM}
	default:
		return []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
}

func setupLogging(cfg config.LogConfig, verbose bool) (*logging.Logger, error) {
	if verbose {
		cfg.Level = "debug"
	}
	return logging.Setup(cfg)
}

// =============================================================================
// TUI
// =============================================================================

func runTUI(app *cli.App, logger *logging.Logger) error {
	if !cli.IsTTY() || !cli.IsStdoutTTY() {
		return &cli.ValidationError{
			Field:   "terminal",
			Reason:  "the full-screen chat needs a terminal",
			Example: `chatstream chat, or chatstream ask "question" for pipes`,
		}
	}

	cfg := app.Store.Config()
	conv := model.NewConversation()
	ctrl := scroll.NewController(cfg.UI.ScrollTolerance)
	eng := app.NewEngine(conv, ctrl)

	m := chat.New(chat.Options{
		Engine:   eng,
		Store:    app.Store,
		Scroll:   ctrl,
		Theme:    styles.NewTheme(cfg.UI.Theme),
		Commands: commands.NewRegistry(),
		Markdown: cfg.UI.Markdown,
		MaxFPS:   cfg.UI.MaxFPS,
		Log:      logger.Component("tui"),
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	app.Store.OnChange(func(*config.Config) {
		p.Send(chat.ConfigReloadedMsg{})
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
