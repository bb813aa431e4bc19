// Package ws streams the narrative log to WebSocket observers.
package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/narrative"
)

const (
	helloTimeout = 5 * time.Second
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = 25 * time.Second
	outBuffer    = 256
)

// Source is the runtime surface the stream needs.
type Source interface {
	Log() *narrative.Log
	WorldID() string
	Epoch() int64
	Running() bool
}

type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		src: src,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler upgrades the connection, waits for HELLO, answers WELCOME, replays
// the requested tail and then forwards live entries as LOG frames.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		filter := map[narrative.Kind]bool{}
		for _, k := range hello.Kinds {
			filter[narrative.Kind(k)] = true
		}
		want := func(e narrative.Entry) bool { return len(filter) == 0 || filter[e.Kind] }

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		live, unsubscribe := s.src.Log().Subscribe(outBuffer)
		defer unsubscribe()

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			WorldID:         s.src.WorldID(),
			Epoch:           s.src.Epoch(),
			Running:         s.src.Running(),
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		var lastSeq int64
		lastWorld := welcome.WorldID
		if hello.Replay > 0 {
			for _, e := range s.src.Log().Tail(ctx, hello.Replay, "") {
				if !want(e) {
					continue
				}
				if err := writeEntry(conn, e); err != nil {
					return
				}
				lastSeq, lastWorld = e.Seq, e.WorldID
			}
		}

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
						cancel()
						return
					}
				case e := <-live:
					// Skip what the replay already sent.
					if e.WorldID == lastWorld && e.Seq <= lastSeq {
						continue
					}
					if !want(e) {
						continue
					}
					if err := writeEntry(conn, e); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop; observers only send control frames after HELLO.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}
	if err := protocol.Validate(protocol.SchemaHello, msg); err != nil {
		s.reject(conn, err)
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.reject(conn, err)
		return hello, false
	}
	if hello.ProtocolVersion != "" && hello.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.Errorf(protocol.ErrInvalidArgument, "bad protocol_version %q", hello.ProtocolVersion))
		return hello, false
	}
	return hello, true
}

func (s *Server) reject(conn *websocket.Conn, err error) {
	_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.CodeOf(err), Message: err.Error()})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
}

func writeEntry(conn *websocket.Conn, e narrative.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return writeJSON(conn, protocol.LogMsg{Type: protocol.TypeLog, ProtocolVersion: protocol.Version, Entry: raw})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
