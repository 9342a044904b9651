// Package main is the CLI entry point for intentd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
	"github.com/eliteGoblin/focusd/intentd/internal/infra"
	"github.com/eliteGoblin/focusd/intentd/internal/server"
	"github.com/eliteGoblin/focusd/intentd/internal/session"
	"github.com/eliteGoblin/focusd/intentd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const pidFileName = "intentd.pid"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "intentd",
	Short: "Focus-enforcement engine driven by declared intentions",
	Long: `intentd enforces a declared intention: a short goal plus optional
duration and allow-lists. Every app focus and URL navigation is checked
against the active intention; anything that doesn't fit is routed
through a deliberate-friction override flow instead of a hard block.`,
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enforcement engine and the browser companion server",
	Long: `Runs the decision engine, the session state machine and the loopback
companion server the browser extension talks to. Blocks until
interrupted.`,
	RunE: runServe,
}

var startCmd = &cobra.Command{
	Use:   "start <intention text>",
	Short: "Start a new intention",
	Long: `Begins a focus session. Apps, URLs and bundles given here form the
explicit allow-list for the session. Any previously active intention
is ended with reason new-intention.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active intention",
	RunE:  runEnd,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine and session status",
	RunE:  runStatus,
}

var bundlesCmd = &cobra.Command{
	Use:   "bundles",
	Short: "List stored bundles",
	RunE:  runBundles,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently used intentions",
	RunE:  runHistory,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent allow/block decisions",
	RunE:  runLog,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configDir     string
	startDuration time.Duration
	startApps     []string
	startURLs     []string
	startBundles  []string
	startStrict   bool
	endReason     string
	jsonOutput    bool
	historyLimit  int
	logLimit      int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Config directory (default: OS config dir)")

	startCmd.Flags().DurationVar(&startDuration, "for", 0, "Session duration (e.g. 25m); omit for unlimited")
	startCmd.Flags().StringArrayVar(&startApps, "app", nil, "Allowed app identifier (repeatable)")
	startCmd.Flags().StringArrayVar(&startURLs, "url", nil, "Allowed URL pattern (repeatable)")
	startCmd.Flags().StringArrayVar(&startBundles, "bundle", nil, "Bundle name to include (repeatable)")
	startCmd.Flags().BoolVar(&startStrict, "strict", false, "Strict mode: only explicit/always/bundle rules apply")

	endCmd.Flags().StringVar(&endReason, "reason", string(domain.EndCompleted), "End reason (completed|chose-distraction)")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of entries to show")
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "Number of entries to show")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(bundlesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/tmp/intentd"
	}
	return filepath.Join(home, ".local", "share", "intentd")
}

// openStack wires key provider, store and config the way every command
// needs them. Caller closes the store.
func openStack(logger *zap.Logger) (*infra.Store, config.Config, error) {
	dataDir := defaultDataDir()

	keyProvider := infra.NewFileKeyProvider(dataDir)
	key, err := infra.EnsureKey(keyProvider)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to ensure store key: %w", err)
	}

	store, err := infra.NewStore(dataDir, key)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to open store: %w", err)
	}

	dir := configDir
	if dir == "" {
		dir = config.DefaultDir()
	}
	cfg := config.Load(dir, config.LegacyDir(), logger)

	if err := usecase.SyncBundles(context.Background(), store, cfg.Bundles, logger); err != nil {
		store.Close()
		return nil, config.Config{}, fmt.Errorf("failed to sync bundles: %w", err)
	}

	return store, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	store, cfg, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions := session.NewManager(cfg.App, store, store, store, logger)
	resolver := usecase.NewResolver(cfg.Rules, store, store, store, nil, logger)
	companion := server.NewCompanion(Version, cfg.App, sessions, resolver, store, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sessions.Resume(ctx); err != nil {
		logger.Warn("failed to resume previous session", zap.Error(err))
	}

	if err := writePIDFile(); err != nil {
		logger.Warn("failed to write pid file", zap.Error(err))
	}
	defer removePIDFile()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Drain alerts; native UI collaborators subscribe here. Logging is
	// the baseline consumer so alerts are never silently lost.
	go func() {
		for alert := range sessions.Alerts() {
			logger.Info("session alert",
				zap.String("kind", string(alert.Kind)),
				zap.String("intention", alert.Intention.Text))
		}
	}()

	go func() {
		_ = sessions.Run(ctx)
	}()

	err = companion.ListenAndServe(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, cfg, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions := session.NewManager(cfg.App, store, store, store, logger)
	if err := sessions.Resume(context.Background()); err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if err := store.RecordEntered(context.Background(), text); err != nil {
		logger.Warn("failed to record intention history", zap.Error(err))
	}

	req := session.StartRequest{
		Text:                text,
		Duration:            startDuration,
		URLs:                startURLs,
		BundleNames:         startBundles,
		LLMFilteringEnabled: !startStrict,
	}
	for _, app := range startApps {
		req.Apps = append(req.Apps, domain.BundleApp{Identifier: app, DisplayName: app})
	}

	in, err := sessions.Start(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Printf("Started intention #%d: %q\n", in.ID, in.Text)
	if in.Unlimited() {
		fmt.Printf("Duration: unlimited (checkin every %d min)\n", cfg.App.UnlimitedCheckinMinutes)
	} else {
		fmt.Printf("Duration: %s\n", time.Duration(in.DurationSeconds)*time.Second)
	}
	if startStrict {
		fmt.Println("Mode: strict (only explicit/always/bundle rules apply)")
	}
	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, cfg, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reason := domain.EndReason(endReason)
	switch reason {
	case domain.EndCompleted, domain.EndChoseDistraction:
	default:
		return fmt.Errorf("invalid reason %q", endReason)
	}

	sessions := session.NewManager(cfg.App, store, store, store, logger)
	if err := sessions.Resume(context.Background()); err != nil {
		return err
	}
	if err := sessions.End(context.Background(), reason); err != nil {
		return err
	}
	fmt.Println("Intention ended.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, cfg, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("\n=== intentd Status ===")

	resolver := infra.NewAppResolver()
	if pid, err := readPIDFile(); err == nil && resolver.IsRunning(pid) {
		fmt.Printf("Engine: RUNNING (pid %d, companion port %d)\n", pid, cfg.App.CompanionPort)
	} else {
		fmt.Println("Engine: NOT RUNNING")
		fmt.Println("Run 'intentd serve' to enable enforcement.")
	}

	active, err := store.FindActiveIntention(context.Background())
	if err != nil {
		return err
	}
	if active == nil {
		fmt.Println("Intention: none")
	} else {
		fmt.Printf("Intention: %q (started %s ago)\n",
			active.Text, time.Since(active.StartedAt).Round(time.Second))
		if active.Unlimited() {
			fmt.Println("Duration: unlimited")
		} else {
			remaining := time.Until(active.ExpiresAt()).Round(time.Second)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Printf("Remaining: %s\n", remaining)
		}
		if !active.LLMFilteringEnabled {
			fmt.Println("Mode: strict")
		}
	}

	fmt.Println("======================")
	return nil
}

func runBundles(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, _, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bundles, err := store.ListBundles(context.Background())
	if err != nil {
		return err
	}

	fmt.Println("\n=== Bundles ===")
	for _, b := range bundles {
		fmt.Printf("\n[%d] %s\n", b.ID, b.Name)
		if b.AllowAllApps {
			fmt.Println("  Apps: all")
		} else {
			for _, a := range b.Apps {
				fmt.Printf("  App: %s (%s)\n", a.DisplayName, a.Identifier)
			}
		}
		if b.AllowAllURLs {
			fmt.Println("  URLs: all")
		} else {
			for _, p := range b.URLPatterns {
				fmt.Printf("  URL: %s\n", p)
			}
		}
	}
	fmt.Println("\n===============")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, _, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := store.RecentHistory(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No intention history yet.")
		return nil
	}

	fmt.Println("\n=== Intention History ===")
	for _, it := range items {
		fmt.Printf("%q  selected %dx  last used %s\n",
			it.Text, it.TimesSelected, it.LastUsedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, _, err := openStack(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.RecentAccess(context.Background(), logLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No access decisions logged yet.")
		return nil
	}

	fmt.Println("\n=== Access Log ===")
	for _, e := range entries {
		verdict := "BLOCK"
		if e.WasAllowed {
			verdict = "ALLOW"
			if e.AllowedReason != "" {
				verdict += " (" + string(e.AllowedReason) + ")"
			}
		}
		if e.WasOverride {
			verdict += " [override]"
		}
		fmt.Printf("%s  %-5s %s  %s\n",
			e.Timestamp.Format("15:04:05"), e.Kind, e.Identifier, verdict)
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("intentd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func pidFilePath() string {
	return filepath.Join(defaultDataDir(), pidFileName)
}

func writePIDFile() error {
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0600)
}

func removePIDFile() {
	_ = os.Remove(pidFilePath())
}

func readPIDFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func createLogger() *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"/var/tmp/intentd.log", "stderr"}
	zcfg.ErrorOutputPaths = []string{"/var/tmp/intentd.error.log"}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
