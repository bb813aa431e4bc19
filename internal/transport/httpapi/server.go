// Package httpapi exposes the runtime and world manager as a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/runtime"
	"worldsim.ai/internal/transport/ws"
)

const maxBody = 1 << 20

type Options struct {
	Logger *log.Logger
	// BaseContext outlives requests; the background loop started over HTTP
	// runs under it. Defaults to context.Background().
	BaseContext context.Context
}

type Server struct {
	mgr    *multiworld.Manager
	logger *log.Logger
	base   context.Context
	stream *ws.Server
}

func New(mgr *multiworld.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{
		mgr:    mgr,
		logger: opts.Logger,
		base:   opts.BaseContext,
		stream: ws.NewServer(mgr.Runtime(), opts.Logger),
	}
}

func (s *Server) rt() *runtime.Runtime { return s.mgr.Runtime() }

// Register mounts every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /v1/world", s.handleWorld)
	mux.HandleFunc("POST /v1/world/time-scale", s.handleTimeScale)
	mux.HandleFunc("GET /v1/locations", s.handleLocations)
	mux.HandleFunc("POST /v1/locations", s.handleAddLocation)

	mux.HandleFunc("GET /v1/characters", s.handleCharacters)
	mux.HandleFunc("POST /v1/characters", s.handleCreateCharacter)
	mux.HandleFunc("GET /v1/characters/{id}", s.handleCharacter)
	mux.HandleFunc("PATCH /v1/characters/{id}", s.handleUpdateCharacter)
	mux.HandleFunc("GET /v1/characters/{id}/memories", s.handleMemories)
	mux.HandleFunc("POST /v1/characters/{id}/memories/summarize", s.handleSummarize)

	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("POST /v1/events", s.handleInjectEvent)
	mux.HandleFunc("POST /v1/events/{id}/cancel", s.handleCancelEvent)

	mux.HandleFunc("POST /v1/simulate/step", s.handleStep)
	mux.HandleFunc("POST /v1/simulate/start", s.handleStart)
	mux.HandleFunc("POST /v1/simulate/stop", s.handleStop)

	mux.HandleFunc("GET /v1/logs/tail", s.handleLogTail)
	mux.HandleFunc("GET /v1/logs/ws", s.stream.Handler())

	mux.HandleFunc("GET /v1/worlds", s.handleWorlds)
	mux.HandleFunc("POST /v1/worlds", s.handleCreateWorld)
	mux.HandleFunc("POST /v1/worlds/select", s.handleSelectWorld)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	code := protocol.CodeOf(err)
	status := protocol.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(rw, status, protocol.ErrorMsg{Code: code, Message: err.Error()})
}

// decode validates the body against schema before unmarshalling into v.
func decode(r *http.Request, schema string, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return protocol.Errorf(protocol.ErrInvalidArgument, "read body: %v", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if err := protocol.Validate(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.Errorf(protocol.ErrInvalidArgument, "%v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, protocol.Errorf(protocol.ErrInvalidArgument, "%s must be an integer, got %q", key, raw)
	}
	return n, nil
}
