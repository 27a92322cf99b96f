package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bryanchriswhite/capshim/internal/app"
	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/bryanchriswhite/capshim/internal/capture"
	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// PhaseHeader carries the capture phase on /api/capture responses
const PhaseHeader = "X-Capture-Phase"

// maxEncodeBody bounds images posted to /api/encode
const maxEncodeBody = 64 << 20

// Server exposes the interceptors to the native preload stub over HTTP
type Server struct {
	router     *mux.Router
	app        *app.App
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a new bridge server
func NewServer(a *app.App) *Server {
	s := &Server{
		router: mux.NewRouter(),
		app:    a,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local socket only
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Routes hang off the top-level router so that a method mismatch
	// answers 405 rather than 404
	api := prefixed{s.router, "/api"}

	// Capture
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/encode", s.handleEncode).Methods("POST")

	// Window metadata and genuine-call wrappers
	api.HandleFunc("/window/title", s.handleTitle).Methods("GET")
	api.HandleFunc("/window/pid", s.handlePID).Methods("GET")
	api.HandleFunc("/window/{id}/attributes", s.handleAttributes).Methods("GET")
	api.HandleFunc("/window/{id}/property/{atom}", s.handleProperty).Methods("GET")
	api.HandleFunc("/pointer/{id}", s.handlePointer).Methods("GET")

	// Idle tracking
	api.HandleFunc("/idle/extension", s.handleIdleExtension).Methods("GET")
	api.HandleFunc("/idle/info", s.handleIdleInfo).Methods("GET")

	// State
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// prefixed registers routes under a path prefix on the top-level router
type prefixed struct {
	router *mux.Router
	prefix string
}

func (p prefixed) HandleFunc(path string, f func(http.ResponseWriter, *http.Request)) *mux.Route {
	return p.router.HandleFunc(p.prefix+path, f)
}

// Handler returns the routed handler, wrapped with request logging
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// Listen opens a unix socket when socket is set, otherwise a TCP port on
// localhost. A stale socket file is replaced.
func Listen(socket string, port int) (net.Listener, error) {
	if socket == "" {
		return net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	}

	if err := os.Remove(socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", socket)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(socket, 0600); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return l, nil
}

// Serve handles requests on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent("api").Info().
		Str("network", l.Addr().Network()).
		Str("addr", l.Addr().String()).
		Msg("Bridge listening")

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// logRequests logs each request at debug level
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.WithComponent("api").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// HTTP Handlers

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	// reject before capturing so a refused request leaves the session alone
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "png"
	}
	if !imgcodec.Supported(format) {
		http.Error(w, fmt.Sprintf("unsupported format: %s", format), http.StatusBadRequest)
		return
	}

	res, err := s.app.Capture.Capture(r.Context())
	if err != nil {
		// no image: the stub returns a null pointer to its caller
		w.Header().Set(PhaseHeader, string(capture.PhaseFailed))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data := res.Encoded
	if imgcodec.Normalize(res.Format) != imgcodec.Normalize(format) || len(data) == 0 {
		data, err = imgcodec.EncodeBytes(res.Image, format)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	b := res.Image.Bounds()
	w.Header().Set(PhaseHeader, string(res.Phase))
	w.Header().Set("X-Image-Width", strconv.Itoa(b.Dx()))
	w.Header().Set("X-Image-Height", strconv.Itoa(b.Dy()))
	w.Header().Set("Content-Type", imgcodec.ContentType(format))
	w.Write(data)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEncodeBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img, _, err := imgcodec.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var out bytes.Buffer
	err = s.app.Interceptor.SaveToCallback(r.Context(), img, format, q["option"], func(data []byte) error {
		_, err := out.Write(data)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", imgcodec.ContentType(format))
	w.Write(out.Bytes())
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	title, err := s.app.Metadata.WindowTitle(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"title": title})
}

func (s *Server) handlePID(w http.ResponseWriter, r *http.Request) {
	pid, err := s.app.Metadata.WindowPID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]int{"pid": pid})
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	win, ok := windowParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.app.Interceptor.GetWindowAttributes(r.Context(), win))
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	win, ok := windowParam(w, r)
	if !ok {
		return
	}

	atom, err := s.resolveAtom(mux.Vars(r)["atom"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := window.PropertyRequest{Window: win, Property: atom, Length: 1 << 20}
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		req.Offset = uint32(n)
	}
	if v := q.Get("length"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid length", http.StatusBadRequest)
			return
		}
		req.Length = uint32(n)
	}
	if v := q.Get("delete"); v != "" {
		d, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid delete", http.StatusBadRequest)
			return
		}
		req.Delete = d
	}
	if v := q.Get("type"); v != "" {
		t, err := window.ParseID(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Type = window.Atom(t)
	}

	reply, err := s.app.Interceptor.GetWindowProperty(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, reply)
}

// resolveAtom accepts a numeric atom id or an atom name
func (s *Server) resolveAtom(v string) (window.Atom, error) {
	if id, err := window.ParseID(v); err == nil {
		return window.Atom(id), nil
	}
	atom, err := s.app.Interceptor.Delegate().InternAtom(v)
	if err != nil {
		return 0, fmt.Errorf("cannot resolve atom %q: %w", v, err)
	}
	return atom, nil
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	win, ok := windowParam(w, r)
	if !ok {
		return
	}
	reply, err := s.app.Interceptor.QueryPointer(r.Context(), win)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, reply)
}

func (s *Server) handleIdleExtension(w http.ResponseWriter, r *http.Request) {
	eventBase, errorBase, ok := s.app.Interceptor.QueryIdleExtension()
	writeJSON(w, map[string]interface{}{
		"present":    ok,
		"event_base": eventBase,
		"error_base": errorBase,
	})
}

func (s *Server) handleIdleInfo(w http.ResponseWriter, r *http.Request) {
	var drawable window.Window
	if v := r.URL.Query().Get("drawable"); v != "" {
		id, err := window.ParseID(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		drawable = window.Window(id)
	}

	info := s.app.Interceptor.AllocIdleInfo()
	if !s.app.Interceptor.QueryIdleInfo(r.Context(), drawable, info) {
		http.Error(w, "idle info unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := map[string]interface{}{
		"session":   s.app.State.Snapshot(),
		"allow_set": s.app.Gate.AllowSet(),
	}

	meta, err := s.app.Store.LoadMeta()
	switch {
	case err == nil:
		state["cache"] = meta
	case errors.Is(err, cache.ErrNotFound):
		state["cache"] = nil
	default:
		state["cache_error"] = err.Error()
	}

	writeJSON(w, state)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe to capture events
	events := s.app.Capture.Subscribe()
	defer s.app.Capture.Unsubscribe(events)

	// Send the current session first
	if err := conn.WriteJSON(s.app.State.Snapshot()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	// Detect client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func windowParam(w http.ResponseWriter, r *http.Request) (window.Window, bool) {
	id, err := window.ParseID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return window.Window(id), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("Failed to encode response")
	}
}
