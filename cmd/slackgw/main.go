package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/slackgw/internal/config"
	"github.com/mattjoyce/slackgw/internal/dispatch"
	"github.com/mattjoyce/slackgw/internal/install"
	"github.com/mattjoyce/slackgw/internal/lock"
	"github.com/mattjoyce/slackgw/internal/log"
	"github.com/mattjoyce/slackgw/internal/signing"
	"github.com/mattjoyce/slackgw/internal/slack"
	"github.com/mattjoyce/slackgw/internal/storage"
	"github.com/mattjoyce/slackgw/internal/webhook"
)

const version = "0.1.0"

// configEnv names the variable consulted when --config is not given.
const configEnv = "SLACKGW_CONFIG"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "installations":
		return runInstallationsNoun(args)

	// --- TOOLS ---
	case "sign":
		return runSign(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version":
		fmt.Printf("slackgw version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `slackgw - Multi-workspace Slack app gateway

Usage:
  slackgw <noun> <action> [flags]

Core Resources (Nouns):
  system         Gateway lifecycle
  config         Configuration validation and integrity
  installations  Stored workspace credentials

System Commands:
  system start           Start the gateway in foreground

Config Commands:
  config check           Validate syntax, values and integrity
  config lock            Authorize current state (write .checksums)

Installation Commands:
  installations reset    Delete every stored installation (requires --yes)

Tools:
  sign                   Compute an X-Slack-Signature for a body

General:
  version                Show version information
  help                   Show this help message

The config path defaults to $SLACKGW_CONFIG, then ./config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printNounHelp(os.Stderr, "system", "start")
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "system", "start")
		return 0
	}

	switch args[0] {
	case "start":
		return runStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printNounHelp(os.Stderr, "config", "check", "lock")
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "config", "check", "lock")
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runInstallationsNoun(args []string) int {
	if len(args) < 1 {
		printNounHelp(os.Stderr, "installations", "reset")
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "installations", "reset")
		return 0
	}

	switch args[0] {
	case "reset":
		return runInstallationsReset(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown installations action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func printNounHelp(w io.Writer, noun string, actions ...string) {
	fmt.Fprintf(w, "Usage: slackgw %s <%s> [flags]\n", noun, strings.Join(actions, "|"))
	fmt.Fprintf(w, "Run 'slackgw %s <action> --help' for action flags.\n", noun)
}

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return "./config.yaml"
}

// --- ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("slackgw starting", "version", version, "config", cfg.SourcePath)

	if cfg.Store.Driver == storage.DriverSQLite {
		pidLockPath := lock.PathFor(cfg.Store.Path)
		pidLock, err := lock.AcquirePIDLock(pidLockPath)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLockPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		return 1
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.Store.Driver)

	client := slack.NewClient(slack.Config{
		BaseURL:      cfg.Slack.APIBaseURL,
		ClientID:     cfg.Slack.ClientID,
		ClientSecret: cfg.Slack.ClientSecret,
		Timeout:      cfg.Slack.RequestTimeout,
	}, nil)

	installer := install.NewService(install.Config{
		ClientID:    cfg.Slack.ClientID,
		Scopes:      cfg.ScopeList(),
		RedirectURI: cfg.RedirectURI(),
	}, client, store, log.WithComponent("install"))

	disp := dispatch.New(store, client, log.WithComponent("dispatch"))

	serverConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure http server", "error", err)
		return 1
	}
	server := webhook.New(serverConfig, installer, disp, store, log.WithComponent("http"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	if cfg.Slack.AllowUnsignedChallenge {
		logger.Warn("unsigned url_verification challenges will be answered")
	}
	logger.Info("slackgw running (press Ctrl+C to stop)", "listen", serverConfig.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	// The store closes only after in-flight requests drain.
	<-done
	logger.Info("slackgw stopped")
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	return storage.Open(ctx, storage.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration valid: %s\n", cfg.SourcePath)
	fmt.Printf("  listen:      %s\n", cfg.Server.Listen)
	fmt.Printf("  store:       %s\n", cfg.Store.Driver)
	fmt.Printf("  scopes:      %s\n", cfg.ScopeList())
	if uri := cfg.RedirectURI(); uri != "" {
		fmt.Printf("  redirect:    %s\n", uri)
	}
	fmt.Printf("  admin:       %t\n", cfg.Admin.Enabled())
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Compute hashes without writing .checksums")
	verbose := fs.Bool("verbose", false, "Print each file hash")
	fs.BoolVar(verbose, "v", false, "Print each file hash (shorthand)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	report, err := config.Lock(*configPath, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if *verbose || *dryRun {
		for name, hash := range report.Hashes {
			fmt.Printf("HASH %s: %s\n", name, hash)
		}
	}
	if report.Written {
		fmt.Printf("Wrote %s (%d files)\n", report.ChecksumPath, len(report.Hashes))
	} else {
		fmt.Printf("Dry run: %s not written\n", report.ChecksumPath)
	}
	return 0
}

func runInstallationsReset(args []string) int {
	fs := flag.NewFlagSet("installations reset", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	yes := fs.Bool("yes", false, "Confirm deletion of every stored installation")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "Refusing to delete installations without --yes")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer store.Close()

	n, err := store.DeleteAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete installations: %v\n", err)
		return 1
	}
	fmt.Printf("Deleted %d installation(s)\n", n)
	return 0
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("SLACK_SIGNING_SECRET"), "Signing secret (default $SLACK_SIGNING_SECRET)")
	timestamp := fs.String("timestamp", "", "Request timestamp in Unix seconds (default now)")
	body := fs.String("body", "", "Request body; '-' reads stdin")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "--secret is required")
		return 1
	}
	ts := *timestamp
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}

	payload := []byte(*body)
	if *body == "-" {
		b, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			return 1
		}
		payload = b
	}

	fmt.Printf("%s: %s\n", signing.TimestampHeader, ts)
	fmt.Printf("%s: %s\n", signing.SignatureHeader, signing.Sign(*secret, ts, payload))
	return 0
}

func flagExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 1
}
