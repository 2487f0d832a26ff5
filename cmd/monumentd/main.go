package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monument-sim/monument/internal/config"
	"github.com/monument-sim/monument/internal/engine"
	"github.com/monument-sim/monument/internal/namespace"
	transporthttp "github.com/monument-sim/monument/internal/transport/http"
)

func main() {
	var (
		addr           = flag.String("addr", "", "http listen address (default from LISTEN_ADDR env, or :8080)")
		dataDir        = flag.String("data", "", "runtime data directory (default from DATA_DIR env, or data/sims)")
		namespacesPath = flag.String("namespaces", "", "namespace overrides YAML (default from NAMESPACES_CONFIG env)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[monumentd] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Load()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *namespacesPath != "" {
		cfg.NamespacesConfigPath = *namespacesPath
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}

	overrides, err := config.LoadNamespaces(cfg.NamespacesConfigPath)
	if err != nil {
		logger.Fatalf("load namespace overrides: %v", err)
	}

	reg := namespace.NewRegistry(cfg.DataDir, engine.Config{
		CollectTimeout:         cfg.CollectTimeout(),
		ScoringInterval:        cfg.ScoringInterval,
		ScoringEnabled:         cfg.ScoringEnabled,
		EliminateAtOrBelowZero: cfg.EliminateAtOrBelowZero,
	})
	defer reg.Close()

	// The Memory service (vector recall) is an out-of-scope collaborator
	// (spec §1): no client is wired by default, so the HUD's recalled-
	// memories section is null until one is configured.
	var memory engine.MemoryRecaller

	srv := transporthttp.NewServer(reg, cfg, logger, memory, overrides)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (data dir %s)", cfg.ListenAddr, cfg.DataDir)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
