package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"worldsim.ai/internal/gen"
	"worldsim.ai/internal/persistence/backend"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/platform/config"
	platformotel "worldsim.ai/internal/platform/otel"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/transport/httpapi"
	"worldsim.ai/internal/transport/mcp"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configDir  = flag.String("configs", "./configs", "config directory")
		simPath    = flag.String("sim", "", "path to sim.yaml (default: <configs>/sim.yaml)")
		worldsPath = flag.String("worlds", "", "path to worlds.yaml (default: <configs>/worlds.yaml)")
		storeKind  = flag.String("storage", backend.KindFS, "storage backend: fs, sqlite, postgres or memory")
		dsn        = flag.String("dsn", "", "postgres dsn, or sqlite file path")
		autostart  = flag.Bool("autostart", false, "start the simulation loop on boot")
		enableMCP  = flag.Bool("mcp", true, "serve MCP tools at /mcp")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Server{
		Addr:      *addr,
		DataDir:   *dataDir,
		ConfigDir: *configDir,
		Storage:   *storeKind,
		DSN:       *dsn,
		Autostart: *autostart,
		EnableMCP: *enableMCP,
	}
	if err := config.ParseEnv(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}
	if strings.TrimSpace(*simPath) == "" {
		*simPath = filepath.Join(cfg.ConfigDir, "sim.yaml")
	}
	if strings.TrimSpace(*worldsPath) == "" {
		*worldsPath = filepath.Join(cfg.ConfigDir, "worlds.yaml")
	}

	if err := serve(cfg, *simPath, *worldsPath, logger); err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}

// serve runs until a signal arrives or the listener fails. Errors return
// through the deferred cleanup so the active world is flushed first.
func serve(cfg config.Server, simPath, worldsPath string, logger *log.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := platformotel.Setup(ctx, "worldsim-server")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := newApp(ctx, cfg, simPath, worldsPath, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Autostart {
		if err := a.mgr.Runtime().Start(ctx); err != nil {
			return fmt.Errorf("start loop: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world=%s storage=%s)", cfg.Addr, a.mgr.Active(), cfg.Storage)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

type app struct {
	mgr     *multiworld.Manager
	store   storage.Storage
	handler http.Handler
	logger  *log.Logger
}

func newApp(ctx context.Context, cfg config.Server, simPath, worldsPath string, logger *log.Logger) (*app, error) {
	tune, err := tuning.Load(simPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Printf("tuning not found (%s); using defaults", simPath)
		tune = tuning.Defaults()
	}
	worlds, err := multiworld.Load(worldsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Printf("worlds config not found (%s); using defaults", worldsPath)
		worlds, _ = multiworld.Load("")
	}

	st, err := backend.Open(ctx, backend.Options{
		Kind:              cfg.Storage,
		DataDir:           cfg.DataDir,
		DSN:               cfg.DSN,
		ArchiveEveryTicks: tune.ArchiveEveryTicks,
		Logger:            log.New(logger.Writer(), "[storage] ", logger.Flags()),
	})
	if err != nil {
		return nil, err
	}

	var generator gen.Generator = gen.Nop{}
	if cfg.LLMEndpoint != "" {
		generator = gen.NewChat(gen.ChatConfig{
			Endpoint:    cfg.LLMEndpoint,
			Model:       cfg.LLMModel,
			APIKey:      cfg.LLMAPIKey,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Stop:        cfg.LLMStop,
			Timeout:     cfg.LLMTimeout,
		}, nil)
		logger.Printf("generation: %s (model=%s)", cfg.LLMEndpoint, cfg.LLMModel)
	}

	mgr, err := multiworld.Open(ctx, worlds, multiworld.Options{
		Tuning:    tune,
		Storage:   st,
		Generator: generator,
		Logger:    log.New(logger.Writer(), "[sim] ", logger.Flags()),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	httpapi.New(mgr, httpapi.Options{Logger: logger, BaseContext: ctx}).Register(mux)
	if cfg.EnableMCP {
		mux.Handle("/mcp", mcp.Handler(mgr))
	}
	return &app{mgr: mgr, store: st, handler: mux, logger: logger}, nil
}

// close stops the loop, flushes the active world and releases storage.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.mgr.Close(ctx); err != nil {
		a.logger.Printf("flush on shutdown: %v", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Printf("close storage: %v", err)
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
