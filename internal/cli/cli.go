// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing and dispatch for chatstream.

package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/openai"
	"github.com/jeranaias/chatstream/internal/scroll"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdProbe
	CmdEndpoints
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdProbe:
		return "probe"
	case CmdEndpoints:
		return "endpoints"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Verbose    bool
	Quiet      bool
	NoMarkdown bool
	ConfigPath string
	Endpoint   string
	Model      string

	// Command-specific
	Query      string
	Subcommand string

	// Raw holds the arguments after the command name, global flags removed.
	Raw []string
}

const usageText = `chatstream - stream chat completions from OpenAI-compatible servers

Usage:
  chatstream [flags] [command] [args]

Commands:
  (none), tui              Full-screen chat
  chat                     Line-mode chat with history and slash commands
  ask <question>           One question, streamed to stdout ("-" reads stdin)
  probe [name]             Check that an endpoint is usable
  endpoints [list]         List saved endpoints
  endpoints add <url>      Save an endpoint
      --name, --model, --key, --max-tokens, --temperature, --top-p, --use
  endpoints use <name>     Select the active endpoint
  endpoints rm <name>      Delete an endpoint
  endpoints rename <name> <new-name>
  version                  Print version information
  help                     Show this help

Flags:
  -e, --endpoint <name>    Use a saved endpoint for this run
  -m, --model <name>       Override the model for this run
      --config <path>      Read and write this config file
      --no-markdown        Print replies without markdown rendering
  -v, --verbose            Debug logging
  -q, --quiet              No status output

Environment:
  CHATSTREAM_ENDPOINT, CHATSTREAM_SERVER_URL, CHATSTREAM_MODEL,
  CHATSTREAM_API_KEY, CHATSTREAM_READ_TIMEOUT, CHATSTREAM_LOG_LEVEL
  .env files in the working and config directories are loaded first.

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "chatstream version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}
	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	name := strings.ToLower(remaining[0])
	args.Raw = remaining[1:]

	switch name {
	case "tui":
		return CmdTUI, args, nil
	case "chat", "repl":
		return CmdChat, args, nil
	case "ask", "a":
		args.Query = strings.Join(args.Raw, " ")
		return CmdAsk, args, nil
	case "probe", "check":
		return CmdProbe, args, nil
	case "endpoints", "endpoint", "ep":
		if len(args.Raw) > 0 {
			args.Subcommand = strings.ToLower(args.Raw[0])
		}
		return CmdEndpoints, args, nil
	case "version", "--version":
		return CmdVersion, args, nil
	case "help", "-h", "--help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, &ValidationError{Field: "command", Value: remaining[0], Reason: "unknown command", Example: "chatstream help"}
	}
}

// parseGlobalFlags extracts global flags from anywhere in argv. Everything
// after "--", and everything after an endpoints command (whose add takes
// its own --model), is passed through untouched.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var remaining []string
	var args Args

	value := func(i int, flag string) (string, error) {
		if i+1 >= len(argv) {
			return "", ErrMissingArgument(flag, "chatstream "+flag+" <value>")
		}
		return argv[i+1], nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			remaining = append(remaining, argv[i+1:]...)
			break
		}

		if n, v, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "--") {
			switch n {
			case "--endpoint":
				args.Endpoint = v
				continue
			case "--model":
				args.Model = v
				continue
			case "--config":
				args.ConfigPath = v
				continue
			}
		}

		switch arg {
		case "-v", "--verbose":
			args.Verbose = true
		case "-q", "--quiet":
			args.Quiet = true
		case "--no-markdown":
			args.NoMarkdown = true
		case "-e", "--endpoint", "-m", "--model", "--config":
			v, err := value(i, arg)
			if err != nil {
				return nil, args, err
			}
			switch arg {
			case "-e", "--endpoint":
				args.Endpoint = v
			case "-m", "--model":
				args.Model = v
			default:
				args.ConfigPath = v
			}
			i++
		default:
			remaining = append(remaining, arg)
			if len(remaining) == 1 && ownsFlags(arg) {
				remaining = append(remaining, argv[i+1:]...)
				return remaining, args, nil
			}
		}
	}
	return remaining, args, nil
}

func ownsFlags(command string) bool {
	switch strings.ToLower(command) {
	case "endpoints", "endpoint", "ep":
		return true
	}
	return false
}

// OverridesFromArgs returns --endpoint and --model as config overrides.
// Like environment overrides they hold for this run only.
func OverridesFromArgs(args Args) config.Overrides {
	return config.Overrides{Endpoint: args.Endpoint, Model: args.Model}
}

// =============================================================================
// APPLICATION
// =============================================================================

// App carries what every command needs.
type App struct {
	Store  *config.Store
	Client *openai.Client
	Log    *logrus.Entry

	Out io.Writer
	Err io.Writer

	// Markdown enables glamour rendering of replies on a terminal.
	Markdown bool
	Theme    string
}

// NewApp builds the HTTP client from the store's current configuration.
func NewApp(store *config.Store, log *logrus.Entry, out, errOut io.Writer) *App {
	cfg := store.Config()
	client := openai.NewClientWithConfig(&openai.ClientConfig{
		ConnectTimeout: secondsOrZero(cfg.Stream.ConnectTimeoutSecs),
		Log:            log,
	})
	return &App{
		Store:    store,
		Client:   client,
		Log:      log,
		Out:      out,
		Err:      errOut,
		Markdown: cfg.UI.Markdown,
		Theme:    cfg.UI.Theme,
	}
}

// NewEngine creates an engine for conv configured from the store.
func (a *App) NewEngine(conv *model.Conversation, ctrl *scroll.Controller) *engine.Engine {
	cfg := a.Store.Config()
	return engine.New(conv, a.Client, engine.OptionsFromConfig(cfg.Stream, ctrl, a.Log))
}

// Run executes every command except CmdTUI, which needs the terminal.
func Run(ctx context.Context, cmd Command, args Args, app *App) error {
	switch cmd {
	case CmdChat:
		return RunChat(ctx, app, args)
	case CmdAsk:
		return HandleAsk(ctx, app, args)
	case CmdProbe:
		return HandleProbe(ctx, app, args)
	case CmdEndpoints:
		return HandleEndpoints(app, args)
	case CmdVersion:
		PrintVersion(app.Out)
		return nil
	case CmdHelp:
		PrintUsage(app.Out)
		return nil
	default:
		return fmt.Errorf("command %s cannot run here", cmd)
	}
}
