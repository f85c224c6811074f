// Package httpapi is the local UI bridge: a small authenticated-by-locality
// REST surface the dashboard talks to, plus an SSE event feed mirroring the
// in-process event bus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"clashflux-go/internal/control"
	"clashflux-go/internal/profile"
	apprt "clashflux-go/internal/runtime"
	"clashflux-go/internal/stats"
	"clashflux-go/internal/stream"
)

const requestTimeout = 30 * time.Second

// Controller is the slice of the application runtime the API serves.
type Controller interface {
	Status(ctx context.Context) *apprt.Status
	Proxies(ctx context.Context) (map[string]control.Proxy, error)
	SetMode(ctx context.Context, mode string) error
	SetTun(ctx context.Context, enable bool) error
	SetSystemProxy(enable bool) error
	SelectProxy(ctx context.Context, group, name string) error
	RestartKernel() error
	ActivateProfile(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string) (profile.Profile, error)
	Profiles() *profile.Manager
	Stats() *stats.Aggregator
	TrafficSamples() []stats.TrafficSample
	Traffic() *stream.TrafficStream
	Logs() *stream.LogStream
	Client() *control.Client
	Bus() *apprt.Bus
}

// Server provides the HTTP API with a chi router.
type Server struct {
	controller Controller
	logger     *zap.SugaredLogger
	router     *chi.Mux
}

// NewServer creates the API server and mounts all routes.
func NewServer(controller Controller, logger *zap.SugaredLogger) *Server {
	s := &Server{
		controller: controller,
		logger:     logger,
		router:     chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve runs the API on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Infow("UI bridge API listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	// CORS headers so the dashboard can be served from a dev origin.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleSSEEvents)

		r.Post("/mode", s.handleSetMode)
		r.Post("/tun", s.handleSetTun)
		r.Post("/system-proxy", s.handleSetSystemProxy)
		r.Post("/kernel/restart", s.handleRestartKernel)

		r.Get("/proxies", s.handleGetProxies)
		r.Put("/proxies/{group}", s.handleSelectProxy)
		r.Post("/proxies/{group}/delay", s.handleGroupDelay)

		r.Get("/connections", s.handleGetConnections)
		r.Delete("/connections", s.handleCloseAllConnections)
		r.Delete("/connections/{id}", s.handleCloseConnection)

		r.Get("/rules", s.handleGetRules)
		r.Get("/logs", s.handleGetLogs)
		r.Get("/dns/query", s.handleQueryDNS)

		r.Get("/providers/proxies", s.handleGetProxyProviders)
		r.Put("/providers/proxies/{name}", s.handleUpdateProxyProvider)
		r.Get("/providers/rules", s.handleGetRuleProviders)
		r.Put("/providers/rules/{name}", s.handleUpdateRuleProvider)

		r.Post("/configs/reload", s.handleReload)
		r.Post("/geo/update", s.handleUpdateGeo)
		r.Post("/fakeip/flush", s.handleFlushFakeIP)
		r.Post("/gc", s.handleForceGC)

		r.Get("/stats", s.handleGetStats)
		r.Get("/stats/today", s.handleGetStatsToday)
		r.Get("/traffic", s.handleGetTraffic)
		r.Get("/traffic/live", s.handleGetTrafficLive)

		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleAddProfile)
		r.Delete("/profiles/{id}", s.handleDeleteProfile)
		r.Post("/profiles/{id}/update", s.handleUpdateProfile)
		r.Post("/profiles/{id}/activate", s.handleActivateProfile)
	})
}

// JSON response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errorStatus(err), apiResponse{Success: false, Error: err.Error()})
}

// errorStatus maps domain errors onto HTTP status codes. Kernel auth
// failures surface as 502: from the dashboard's point of view the bridge
// could not reach its backend, not the caller.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, control.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrNotDownloaded):
		return http.StatusConflict
	case errors.Is(err, control.ErrUnauthorized):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
