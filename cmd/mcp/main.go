// Command mcp serves the world tools over stdio for local MCP clients. It
// owns its storage exclusively; do not point it at a data directory a running
// server is using.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldsim.ai/internal/persistence/backend"
	"worldsim.ai/internal/platform/config"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/transport/mcp"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		simPath    = flag.String("sim", "./configs/sim.yaml", "path to sim.yaml")
		worldsPath = flag.String("worlds", "./configs/worlds.yaml", "path to worlds.yaml")
		storeKind  = flag.String("storage", backend.KindFS, "storage backend: fs, sqlite, postgres or memory")
		dsn        = flag.String("dsn", "", "postgres dsn, or sqlite file path")
	)
	flag.Parse()

	// stdout carries the protocol.
	logger := log.New(os.Stderr, "[mcp] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Server{DataDir: *dataDir, Storage: *storeKind, DSN: *dsn}
	if err := config.ParseEnv(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := run(cfg, *simPath, *worldsPath, logger); err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, simPath, worldsPath string, logger *log.Logger) error {
	tune, err := tuning.Load(simPath)
	if err != nil {
		return err
	}
	worlds, err := multiworld.Load(worldsPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := backend.Open(ctx, backend.Options{
		Kind:              cfg.Storage,
		DataDir:           cfg.DataDir,
		DSN:               cfg.DSN,
		ArchiveEveryTicks: tune.ArchiveEveryTicks,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer st.Close()

	mgr, err := multiworld.Open(ctx, worlds, multiworld.Options{Tuning: tune, Storage: st, Logger: logger})
	if err != nil {
		return fmt.Errorf("worlds: %w", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		if err := mgr.Close(ctx2); err != nil {
			logger.Printf("flush on exit: %v", err)
		}
	}()

	logger.Printf("serving stdio (world=%s storage=%s)", mgr.Active(), cfg.Storage)
	if err := mcp.NewServer(mgr).Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
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
