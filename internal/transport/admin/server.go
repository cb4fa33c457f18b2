// Package admin serves the loopback-only operator surface: world state, the
// patch table, on-demand saves and a websocket stream of persistence events.
package admin

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// SaveFunc performs a full save, including backup rotation.
type SaveFunc func(ctx context.Context) (world.SaveStats, error)

type Server struct {
	world *world.World
	save  SaveFunc
	hub   *Hub
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, save SaveFunc, hub *Hub, logger *log.Logger) *Server {
	return &Server{
		world: w,
		save:  save,
		hub:   hub,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts every admin route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", s.StateHandler())
	mux.HandleFunc("/admin/v1/patches", s.PatchesHandler())
	mux.HandleFunc("/admin/v1/save", s.SaveHandler())
	mux.HandleFunc("/admin/v1/events", s.EventsHandler())
}

type patchView struct {
	Ordinal int    `json:"ordinal"`
	Key     string `json:"key"`
	Applied bool   `json:"applied"`
}

func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r, http.MethodGet) {
			return
		}
		writeJSON(rw, http.StatusOK, s.world.Stats())
	}
}

func (s *Server) PatchesHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r, http.MethodGet) {
			return
		}
		entries := s.world.PatchEntries()
		out := make([]patchView, 0, len(entries))
		for _, e := range entries {
			out = append(out, patchView{Ordinal: e.Ordinal, Key: e.Key, Applied: e.Applied})
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

func (s *Server) SaveHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r, http.MethodPost) {
			return
		}
		if s.save == nil {
			http.Error(rw, "save not available", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()
		st, err := s.save(ctx)
		if err != nil {
			s.logf("admin save failed: %v", err)
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, st)
	}
}

func (s *Server) EventsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, events := s.hub.Subscribe(256)
		defer s.hub.Unsubscribe(id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case ev, ok := <-events:
					if !ok {
						writeErr <- nil
						return
					}
					b, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Clients only ever close; reading drives ping/close handling.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) guard(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
