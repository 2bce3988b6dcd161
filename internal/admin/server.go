// Admin HTTP server: dashboard page, JSON API and websocket facets
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"mpd-sim/internal/logging"
	"mpd-sim/internal/position"
	"mpd-sim/internal/sim"
	"mpd-sim/internal/telemetry"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 16
)

//go:embed templates/index.html
var content embed.FS

// Server exposes the simulator over HTTP.
type Server struct {
	Sim         *sim.Simulator
	positions   *position.Memory
	tpl         *template.Template
	gatherer    prometheus.Gatherer
	corsOrigins []string
	upgrader    websocket.Upgrader
	status      func(addr string, listening bool)
	log         *slog.Logger
	handler     http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithGatherer serves metrics from g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCORSOrigins allows cross-origin API and websocket access from origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithStatusHook is called when the listener opens and closes.
func WithStatusHook(fn func(addr string, listening bool)) Option {
	return func(s *Server) { s.status = fn }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer builds the router for sim and positions.
func NewServer(simulator *sim.Simulator, positions *position.Memory, opts ...Option) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{
		Sim:       simulator,
		positions: positions,
		tpl:       tpl,
		gatherer:  prometheus.DefaultGatherer,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router with request ID and CORS middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handlePutState).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/charts", s.handleCharts).Methods(http.MethodGet)
	api.HandleFunc("/charts/{channel}", s.handleChannel).Methods(http.MethodGet)
	api.HandleFunc("/timer-position", s.handleGetPosition).Methods(http.MethodGet)
	api.HandleFunc("/timer-position", s.handlePutPosition).Methods(http.MethodPut)
	api.HandleFunc("/timer-position", s.handleDeletePosition).Methods(http.MethodDelete)

	r.HandleFunc("/ws/control", s.handleWSControl).Methods(http.MethodGet)
	r.HandleFunc("/ws/data", s.handleWSData).Methods(http.MethodGet)

	if len(s.corsOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(r)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logging.NewContext(context.Background(), s.log) },
	}
	addr := ln.Addr().String()
	s.log.Info("admin server listening", "addr", addr)
	s.notifyStatus(addr, true)
	defer s.notifyStatus(addr, false)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("admin server shutting down", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin server: %w", err)
	}
	return nil
}

func (s *Server) notifyStatus(addr string, listening bool) {
	if s.status != nil {
		s.status(addr, listening)
	}
}

type indexData struct {
	WellID   string
	Running  bool
	Elapsed  string
	Position position.Position
	Channels []telemetry.ChannelSpec
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pos, _ := s.positions.Get(r.Context())
	data := indexData{
		WellID:   s.Sim.WellID(),
		Running:  s.Sim.Running(),
		Elapsed:  s.Sim.FormattedElapsed(),
		Position: pos,
		Channels: s.Sim.Channels(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stateResponse merges both facets without the chart data.
type stateResponse struct {
	Running        bool   `json:"running"`
	RunID          string `json:"run_id,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Elapsed        string `json:"elapsed"`
}

func (s *Server) state() stateResponse {
	c := s.Sim.ControlState()
	sec := s.Sim.ElapsedSeconds()
	return stateResponse{
		Running:        c.Running,
		RunID:          c.RunID,
		ElapsedSeconds: sec,
		Elapsed:        sim.FormatElapsed(sec),
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Running *bool `json:"running"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Running == nil {
		http.Error(w, `missing "running"`, http.StatusBadRequest)
		return
	}
	s.Sim.SetRunning(*req.Running)
	logging.FromContext(r.Context()).Info("run flag set via api", "running", *req.Running)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.ChartData())
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch := telemetry.Channel(mux.Vars(r)["channel"])
	d, ok := s.Sim.ChartData().Dataset(ch)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown channel %q", ch), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type positionResponse struct {
	position.Position
	Saved bool `json:"saved"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, saved := s.positions.Get(r.Context())
	writeJSON(w, http.StatusOK, positionResponse{Position: p, Saved: saved})
}

func (s *Server) handlePutPosition(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := position.Decode(body)
	if !ok {
		http.Error(w, "position needs finite numeric x and y", http.StatusBadRequest)
		return
	}
	if err := s.positions.Set(r.Context(), p); err != nil {
		logging.FromContext(r.Context()).Error("save timer position", "err", err)
		http.Error(w, "failed to save position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{Position: p, Saved: true})
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.positions.Reset(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("clear timer position", "err", err)
		http.Error(w, "failed to clear position", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWSControl(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.Sim.WatchControl, func() any { return s.Sim.ControlState() })
}

// handleWSData omits charts from frames where only the timer changed.
func (s *Server) handleWSData(w http.ResponseWriter, r *http.Request) {
	var last *telemetry.ChartDataState
	s.stream(w, r, s.Sim.WatchData, func() any {
		d := s.Sim.DataSince(last)
		if d.Charts != nil {
			last = d.Charts
		}
		return d
	})
}

// stream sends snapshot once on connect and again after every notification.
// snapshot is only called from the streaming goroutine.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, watch func() (<-chan struct{}, func()), snapshot func() any) {
	log := logging.FromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := watch()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read", "err", err)
				}
				return
			}
		}
	}()

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshot()); err != nil {
			log.Debug("websocket write", "err", err)
			return false
		}
		return true
	}
	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case _, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulator stopped"),
					time.Now().Add(writeWait))
				return
			}
			if !send() {
				return
			}
		}
	}
}

// checkOrigin accepts same-host and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.corsOrigins, "*") || slices.Contains(s.corsOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
