package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"worldsim.ai/internal/persistence/backend"
	"worldsim.ai/internal/platform/config"
	"worldsim.ai/internal/protocol"
)

func TestNewApp_BootsFromRepoConfigs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Server{DataDir: dir, Storage: backend.KindSQLite, EnableMCP: true}
	logger := log.New(io.Discard, "", 0)

	a, err := newApp(ctx, cfg, "../../configs/sim.yaml", "../../configs/worlds.yaml", logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(a.handler)

	resp, err := http.Get(srv.URL + "/v1/worlds")
	if err != nil {
		t.Fatal(err)
	}
	var list protocol.WorldList
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if list.ActiveWorldID != "village" || len(list.Worlds) != 2 {
		t.Fatalf("worlds: %+v", list)
	}

	resp, err = http.Post(srv.URL+"/v1/simulate/step", "application/json", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	srv.Close()
	a.close()

	// Restart over the same data directory resumes the stepped world.
	b, err := newApp(ctx, cfg, "../../configs/sim.yaml", "../../configs/worlds.yaml", logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.close()
	if got := b.mgr.Runtime().Epoch(); got != 1 {
		t.Fatalf("epoch after restart: %d", got)
	}
}

func TestNewApp_MissingConfigsUseDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Server{DataDir: dir, Storage: backend.KindMemory}
	a, err := newApp(context.Background(), cfg, filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope2.yaml"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.close()
	if a.mgr.Active() != "default" {
		t.Fatalf("active: %s", a.mgr.Active())
	}
}

func TestServe_ListenFailureReturnsAfterCleanup(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	dir := t.TempDir()
	cfg := config.Server{Addr: busy.Addr().String(), DataDir: dir, Storage: backend.KindSQLite}
	err = serve(cfg, "../../configs/sim.yaml", "../../configs/worlds.yaml", log.New(io.Discard, "", 0))
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("serve on a busy address: %v", err)
	}

	// Storage was flushed and released; a fresh app takes it over.
	a, err := newApp(context.Background(), cfg, "../../configs/sim.yaml", "../../configs/worlds.yaml", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("reopen after failed serve: %v", err)
	}
	defer a.close()
	if a.mgr.Active() != "village" {
		t.Fatalf("active: %s", a.mgr.Active())
	}
}
