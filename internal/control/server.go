package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
	"github.com/eliteGoblin/focusd/appguard/internal/usecase"
)

const defaultHistoryLimit = 20

// StatusSource reads the engine state from the monitor loop.
type StatusSource interface {
	Status(ctx context.Context) (domain.InterventionRecord, *domain.SuppressionSession, error)
}

// Server serves the configuration channel and the overlay websocket.
type Server struct {
	hub       *Hub
	blocklist *usecase.BlockListService
	status    StatusSource
	apps      domain.AppRegistry
	history   domain.HistoryRecorder
	gate      domain.MonitoringGate
	authToken string
	version   string
	logger    *zap.Logger
}

// NewServer creates a server. status may be nil when no monitor is running.
func NewServer(hub *Hub, blocklist *usecase.BlockListService, status StatusSource, authToken string, logger *zap.Logger) *Server {
	return &Server{
		hub:       hub,
		blocklist: blocklist,
		status:    status,
		authToken: authToken,
		logger:    logger,
	}
}

// SetAppRegistry enables GET /api/apps.
func (s *Server) SetAppRegistry(apps domain.AppRegistry) { s.apps = apps }

// SetHistory enables GET /api/history.
func (s *Server) SetHistory(h domain.HistoryRecorder) { s.history = h }

// SetMonitoringGate enables /api/monitoring.
func (s *Server) SetMonitoringGate(g domain.MonitoringGate) { s.gate = g }

// SetVersion sets the version reported by /api/status.
func (s *Server) SetVersion(v string) { s.version = v }

// SetupRoutes registers all handlers on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/blocked", s.handleBlocked)
	mux.HandleFunc("/api/enabled", s.handleEnabled)
	mux.HandleFunc("/api/apps", s.handleApps)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/monitoring", s.handleMonitoring)
}

// Handler returns the routed handler with security headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("control server listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	go s.hub.Serve(conn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.blocklist.Snapshot()
	resp := StatusResponse{
		Enabled:        cfg.Enabled,
		BlockedIDs:     cfg.IDs(),
		OverlayClients: s.hub.ClientCount(),
		Version:        s.version,
	}

	if s.gate != nil {
		granted := s.gate.IsMonitoringEnabled()
		resp.MonitoringGranted = &granted
	}

	if s.status != nil {
		record, active, err := s.status.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if record.LastBlockedID != "" {
			at := record.LastBlockedAt
			resp.LastBlockedID = record.LastBlockedID
			resp.LastBlockedAt = &at
		}
		resp.ActiveSession = active
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBlocked: PUT replaces the set, POST adds, DELETE removes, GET lists.
func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, BlockedRequest{IDs: s.blocklist.Snapshot().IDs()})
		return
	}

	var req BlockedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch r.Method {
	case http.MethodPut:
		err = s.blocklist.SetBlockedIDs(req.IDs)
	case http.MethodPost:
		err = s.blocklist.AddBlockedIDs(req.IDs)
	case http.MethodDelete:
		err = s.blocklist.RemoveBlockedIDs(req.IDs)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		// The live configuration already changed; only persistence failed.
		s.logger.Error("blocked apps not persisted", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, BlockedRequest{IDs: s.blocklist.Snapshot().IDs()})
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.blocklist.SetEnabled(req.Enabled); err != nil {
		s.logger.Error("enabled flag not persisted", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, EnabledRequest{Enabled: s.blocklist.Snapshot().Enabled})
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.apps == nil {
		http.Error(w, "app registry not available", http.StatusServiceUnavailable)
		return
	}

	apps, err := usecase.InstalledApplications(s.apps)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.history == nil {
		http.Error(w, "history not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := s.history.RecentSessions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []domain.SuppressionSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleMonitoring: GET reports whether the service is granted, POST asks
// the host to enable it.
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.gate == nil {
		http.Error(w, "monitoring gate not available", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := s.gate.RequestEnable(); err != nil {
			s.logger.Warn("enable monitoring request failed", zap.Error(err))
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, MonitoringResponse{Granted: s.gate.IsMonitoringEnabled()})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

// checkOrigin accepts non-browser clients and same-host or loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}

	host := parsed.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
