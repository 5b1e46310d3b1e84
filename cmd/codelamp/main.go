// CodeLamp is a conversational coding assistant daemon.
//
// It bridges a chat UI to the Gemini backend over a websocket protocol,
// augmenting generation with local tools (workspace file access, time,
// market data). Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	codelamp serve            Start the UI bridge server
//	codelamp ask <question>   Ask a single question (for testing)
//	codelamp version          Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codelamp/codelamp/internal/agent"
	"github.com/codelamp/codelamp/internal/bridge"
	"github.com/codelamp/codelamp/internal/buildinfo"
	"github.com/codelamp/codelamp/internal/config"
	"github.com/codelamp/codelamp/internal/llm"
	"github.com/codelamp/codelamp/internal/secrets"
	"github.com/codelamp/codelamp/internal/session"
	"github.com/codelamp/codelamp/internal/storage"
	"github.com/codelamp/codelamp/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full lifecycle
// can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the codelamp command. Arguments are
// parsed by hand: the flag package relies on package-level globals, and
// the argument surface here is small enough not to need it.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: codelamp ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "CodeLamp - Conversational Coding Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: codelamp [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the UI bridge server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/codelamp/config.yaml, /etc/codelamp/config.yaml")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// loadConfig locates and parses the YAML configuration. An explicit path
// must exist; otherwise the default locations are searched, and when none
// has a config file the built-in defaults are used so the daemon works out
// of the box.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// runAsk boots a minimal core (no bridge, no persistence) and answers a
// single question, streaming the response to stdout.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		sec, err := secrets.Open(cfg.DataDir)
		if err == nil {
			apiKey = sec.Get("gemini")
		}
	}
	if apiKey == "" {
		return fmt.Errorf("no Gemini API key: set GEMINI_API_KEY or save one from the UI")
	}

	client := llm.NewGeminiClient(apiKey, logger,
		llm.WithModel(cfg.Gemini.Model),
		llm.WithBaseURL(cfg.Gemini.BaseURL),
	)

	registry := tools.NewRegistry(tools.NewMarketClient(logger), logger)
	loop := agent.NewLoop(registry, logger, cfg.Loop.MaxToolRounds)
	ws := tools.NewWorkspace(cfg.Workspace.Path)

	_, err = loop.Run(ctx, client, nil, question, ws, func(chunk string) {
		fmt.Fprint(stdout, chunk)
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout)
	return nil
}

// runServe is the primary operating mode: loads config, opens the archive
// and secret stores, starts the bridge server, and blocks until a shutdown
// signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting CodeLamp", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = newLogger(stdout, level)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	kv, err := storage.Open(filepath.Join(cfg.DataDir, "codelamp.db"))
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	defer kv.Close()

	sec, err := secrets.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}

	sessions := session.NewStore(kv, cfg.History.MaxConversations, logger)
	registry := tools.NewRegistry(tools.NewMarketClient(logger), logger)
	loop := agent.NewLoop(registry, logger, cfg.Loop.MaxToolRounds)
	ws := tools.NewWorkspace(cfg.Workspace.Path)
	if ws.Root() != "" {
		logger.Info("workspace configured", "path", ws.Root())
	}

	server := bridge.NewServer(
		cfg.Listen.Address, cfg.Listen.Port,
		sec, sessions, loop, ws,
		cfg.Gemini.Model, cfg.Gemini.BaseURL,
		logger,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
