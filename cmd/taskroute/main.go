// Package main is the entry point for the task routing engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taskroute/engine/internal/classify"
	"github.com/taskroute/engine/internal/config"
	"github.com/taskroute/engine/internal/dispatch"
	"github.com/taskroute/engine/internal/engine"
	"github.com/taskroute/engine/internal/exec"
	"github.com/taskroute/engine/internal/gate"
	"github.com/taskroute/engine/internal/ipc"
	"github.com/taskroute/engine/internal/ledger"
	"github.com/taskroute/engine/internal/registry"
	"github.com/taskroute/engine/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration YAML file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("taskroute %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// Resolve config path: --config flag > TASKROUTE_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("TASKROUTE_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		fatal("no config found. Place config.yaml next to the exe, use --config <path>, or set TASKROUTE_CONFIG.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	logCfg := zap.NewProductionConfig()
	if *verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := logCfg.Build()
	if err != nil {
		fatal(fmt.Sprintf("build logger: %v", err))
	}
	defer log.Sync()

	reg, err := registry.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		fatal(fmt.Sprintf("load worker catalog: %v", err))
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()

	ctx := context.Background()

	// Rebuild the ledger from the persisted history.
	history, err := (&store.LedgerRepo{}).List(ctx, db)
	if err != nil {
		fatal(fmt.Sprintf("replay ledger: %v", err))
	}
	policy := ledger.NewPolicy(ledger.Replay(history), cfg.Policy, store.NewPolicyStore(db), log)
	if open, err := (&store.QuestRepo{}).GetOpen(ctx, db); err != nil {
		fatal(fmt.Sprintf("load open quest: %v", err))
	} else if open != nil {
		policy.AttachQuest(*open)
	}

	// Wire the worker providers.
	providers := exec.NewProviderRegistry()
	for name, pc := range cfg.Providers {
		if err := providers.Register(exec.ProviderSpec{
			Name:       name,
			Command:    pc.Command,
			Args:       pc.Args,
			Env:        pc.Env,
			TimeoutSec: pc.TimeoutSec,
		}); err != nil {
			fatal(fmt.Sprintf("register provider %s: %v", name, err))
		}
	}
	runner := exec.NewRunner(providers, log)

	audit := store.NewAuditSink(db)
	g := gate.New(gate.Config{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedTools:       cfg.AllowedTools,
	}, policy, audit, log)
	dispatcher := dispatch.New(reg, runner, policy, dispatch.Config{
		MaxParallel: cfg.MaxParallelWorkers,
	}, log)

	eng := engine.New(engine.Deps{
		Registry:   reg,
		Classifier: classify.New(reg),
		Gate:       g,
		Dispatcher: dispatcher,
		Policy:     policy,
		DB:         db,
		Audit:      audit,
		Log:        log,
	})
	if err := eng.Start(ctx); err != nil {
		fatal(fmt.Sprintf("start engine: %v", err))
	}

	handler := &ipc.Handler{Engine: eng, Policy: policy, Registry: reg}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
	}()

	log.Info("task routing engine listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("workers", reg.Len()),
		zap.String("standing", string(policy.Standing())))

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		fatal(fmt.Sprintf("server error: %v", err))
	}
}

// discoverConfig looks for config.yaml next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	os.Exit(1)
}
