package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"dupsieve/internal/cleanup"
	"dupsieve/internal/config"
	"dupsieve/internal/models"
	"dupsieve/internal/storage"
)

// Server serves stored duplicate groups and runs scans over a WebSocket
type Server struct {
	store       *storage.Storage
	cfg         *config.Config
	addr        string
	idleTimeout time.Duration
	logger      *slog.Logger
	httpServer  *http.Server

	// Idle timeout management
	mu            sync.Mutex
	lastActivity  time.Time
	tabActive     bool
	activeClients int
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once

	// One scan at a time
	scanMu sync.Mutex
}

// Option configures a Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithIdleTimeout shuts the server down after d without activity. Zero
// disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new Server
func New(store *storage.Storage, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		store:        store,
		cfg:          cfg,
		addr:         "127.0.0.1:8080",
		logger:       slog.Default(),
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("GET /api/groups", s.handleGroups)
	mux.HandleFunc("GET /api/scan", s.handleLastScan)
	mux.HandleFunc("POST /api/clean", s.handleClean)
	mux.HandleFunc("GET /api/image/{id}", s.handleImage)

	// WebSocket for scans and connection monitoring
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Start serves until ctx is cancelled or the idle timeout fires
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("serving", "addr", ln.Addr().String())

	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker()
	}

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down server")
		case <-s.shutdownChan:
			s.logger.Info("idle timeout reached, shutting down server")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) idleTimeoutChecker() {
	ticker := time.NewTicker(min(10*time.Second, max(s.idleTimeout/4, time.Millisecond)))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			// Don't timeout if tab is active or there are active WebSocket clients
			if s.tabActive || s.activeClients > 0 {
				s.lastActivity = time.Now()
				s.mu.Unlock()
				continue
			}

			idle := time.Since(s.lastActivity)
			s.mu.Unlock()

			if idle >= s.idleTimeout {
				s.shutdownOnce.Do(func() { close(s.shutdownChan) })
				return
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) setTabActive(active bool) {
	s.mu.Lock()
	s.tabActive = active
	if active {
		s.lastActivity = time.Now()
	}
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// API Handlers

func parseKind(r *http.Request) (models.GroupKind, bool) {
	switch k := models.GroupKind(r.URL.Query().Get("kind")); k {
	case "", models.KindSimilar:
		return models.KindSimilar, true
	case models.KindExact:
		return k, true
	default:
		return "", false
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	kind, ok := parseKind(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be similar or exact")
		return
	}
	groups, err := s.store.GetGroups(kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if groups == nil {
		groups = []*models.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleLastScan(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	info, err := s.store.LastScan()
	if errors.Is(err, storage.ErrNoScan) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type cleanRequest struct {
	GroupIDs []int            `json:"group_ids"`
	Kind     models.GroupKind `json:"kind,omitempty"`
	DryRun   bool             `json:"dry_run"`
}

type cleanFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type cleanResponse struct {
	Action    config.Action  `json:"action"`
	DryRun    bool           `json:"dry_run"`
	Processed []string       `json:"processed"`
	Skipped   []string       `json:"skipped"`
	Failures  []cleanFailure `json:"failures"`
	SizeMB    float64        `json:"size_mb"`
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	var req cleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = models.KindSimilar
	}
	if req.Kind != models.KindSimilar && req.Kind != models.KindExact {
		writeError(w, http.StatusBadRequest, "kind must be similar or exact")
		return
	}

	scan, err := s.store.LastScan()
	if err != nil {
		writeError(w, http.StatusConflict, "no scan to clean: "+err.Error())
		return
	}

	groups, err := s.store.GetGroups(req.Kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(req.GroupIDs) > 0 {
		groups = lo.Filter(groups, func(g *models.DuplicateGroup, _ int) bool {
			return lo.Contains(req.GroupIDs, g.ID)
		})
	}

	cleaner, err := cleanup.FromConfig(s.cfg, scan.Folder,
		cleanup.WithStore(s.store),
		cleanup.WithDryRun(req.DryRun),
		cleanup.WithLogger(s.logger))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report := cleaner.Apply(groups)

	if !req.DryRun {
		if err := cleanup.Forget(s.store, report.ProcessedIDs()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	paths := func(recs []*models.Record) []string {
		return lo.Map(recs, func(rec *models.Record, _ int) string { return rec.Path })
	}
	writeJSON(w, http.StatusOK, cleanResponse{
		Action:    report.Action,
		DryRun:    report.DryRun,
		Processed: paths(report.Processed),
		Skipped:   paths(report.Skipped),
		Failures: lo.Map(report.Failures, func(f *models.FileFailure, _ int) cleanFailure {
			return cleanFailure{Path: f.Path, Error: f.Err.Error()}
		}),
		SizeMB: report.SizeMB(),
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	rec, err := s.store.GetRecordByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.ServeFile(w, r, rec.Path)
}
