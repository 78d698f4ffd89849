// ABOUTME: Entry point for the convoy command line host
// ABOUTME: Loads config, opens the coordinator from the durable snapshot and runs one action

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/convoy-coordinator/internal/auth"
	"github.com/2389/convoy-coordinator/internal/config"
	"github.com/2389/convoy-coordinator/internal/coordinator"
	"github.com/2389/convoy-coordinator/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ ___  _ ____   _____  _   _
 / __/ _ \| '_ \ \ / / _ \| | | |
| (_| (_) | | | \ V / (_) | |_| |
 \___\___/|_| |_|\_/ \___/ \__, |
                           |___/
`

// errUsage signals that usage was printed and the process should fail.
var errUsage = errors.New("usage")

const usage = `Usage: convoy <command> [arguments]

Commands:
  list [--search T] [--status S]
                              List convoys, optionally filtered
  mine                        List convoys you take part in
  show ID                     Show convoy details
  create --title T [flags]    Create a convoy you organize
  join ID                     Join a convoy
  leave ID                    Leave a convoy
  chat ID                     Show the convoy chat
  send ID TEXT...             Post a chat message
  login EMAIL PASSWORD        Sign in
  register EMAIL PASSWORD [NAME...]
                              Create an account and sign in
  logout                      Sign out
  whoami                      Show the signed-in user
  export ID [--out FILE]      Render the convoy as HTML
  init [--force] [--reset]    Write the default config file
  version                     Print the version

Config: $CONVOY_CONFIG or ~/.config/convoy/config.yaml
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches one command and writes its output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	if err := dispatch(ctx, args, out); err != nil && !errors.Is(err, errHelp) {
		return err
	}
	return nil
}

func dispatch(ctx context.Context, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return withSession(ctx, out, func(s *session) error { return runList(s, rest) })
	case "mine":
		return withSession(ctx, out, func(s *session) error { return runMine(s, rest) })
	case "show":
		return withSession(ctx, out, func(s *session) error { return runShow(s, rest) })
	case "create":
		return withSession(ctx, out, func(s *session) error { return runCreate(ctx, s, rest) })
	case "join":
		return withSession(ctx, out, func(s *session) error { return runJoin(ctx, s, rest) })
	case "leave":
		return withSession(ctx, out, func(s *session) error { return runLeave(ctx, s, rest) })
	case "chat":
		return withSession(ctx, out, func(s *session) error { return runChat(s, rest) })
	case "send":
		return withSession(ctx, out, func(s *session) error { return runSend(ctx, s, rest) })
	case "login":
		return withSession(ctx, out, func(s *session) error { return runLogin(ctx, s, rest) })
	case "register":
		return withSession(ctx, out, func(s *session) error { return runRegister(ctx, s, rest) })
	case "logout":
		return withSession(ctx, out, func(s *session) error { return runLogout(ctx, s, rest) })
	case "whoami":
		return withSession(ctx, out, func(s *session) error { return runWhoami(s, rest) })
	case "export":
		return withSession(ctx, out, func(s *session) error { return runExport(s, rest) })
	case "init":
		return runInit(ctx, out, rest)
	case "version", "--version":
		fmt.Fprintf(out, "convoy %s\n", version)
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", cmd)
		fmt.Fprint(out, usage)
		return errUsage
	}
}

// session is the per-invocation wiring shared by all commands.
type session struct {
	configPath string
	cfg        *config.Config
	coord      *coordinator.Coordinator
	logger     *slog.Logger
	out        io.Writer
}

// withSession opens a session, runs fn and closes the session.
func withSession(ctx context.Context, out io.Writer, fn func(*session) error) error {
	s, err := openSession(ctx, out)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.coord.Close(); err != nil {
			s.logger.Warn("closing coordinator", "error", err)
		}
	}()
	return fn(s)
}

func openSession(ctx context.Context, out io.Writer) (*session, error) {
	configPath := config.DefaultPath()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	blobs, err := store.OpenBlobStore(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	directory, err := auth.NewDirectory(auth.DirectoryOptions{
		DemoPassword: cfg.Auth.DemoPassword,
		Blobs:        blobs,
	}, logger)
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("building user directory: %w", err)
	}
	if err := directory.Restore(ctx); err != nil {
		blobs.Close()
		return nil, fmt.Errorf("restoring accounts: %w", err)
	}

	coord, err := coordinator.Open(ctx, coordinator.Options{
		Blobs:           blobs,
		SnapshotKey:     cfg.Database.Key,
		Auth:            directory,
		Latency:         cfg.Simulation.Latency,
		DuplicateWindow: cfg.Chat.DuplicateWindow,
		DisableSeed:     !cfg.Seed.Enabled,
		Logger:          logger,
	})
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("opening coordinator: %w", err)
	}

	logger.Debug("session opened",
		"config", configPath,
		"driver", cfg.Database.Driver,
		"path", cfg.Database.Path,
	)

	return &session{
		configPath: configPath,
		cfg:        cfg,
		coord:      coord,
		logger:     logger,
		out:        out,
	}, nil
}

func runInit(ctx context.Context, out io.Writer, args []string) error {
	fs := newFlagSet("init", out)
	force := fs.Bool("force", false, "overwrite an existing config file")
	reset := fs.Bool("reset", false, "discard stored convoys and chat and reload the demo data")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	configPath := config.DefaultPath()
	_, statErr := os.Stat(configPath)
	switch {
	case statErr == nil && !*force:
		yellow.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Config exists: %s (use --force to overwrite)\n", configPath)
	default:
		if err := config.Write(configPath, config.Default()); err != nil {
			return err
		}
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Config written: %s\n", configPath)
	}

	if !*reset {
		return nil
	}

	return withSession(ctx, out, func(s *session) error {
		if err := s.coord.Reset(ctx); err != nil {
			return fmt.Errorf("resetting state: %w", err)
		}
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "State reset: %d convoys\n", len(s.coord.Convoys()))
		return nil
	})
}
