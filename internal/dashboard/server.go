// Package dashboard serves the server-rendered web views of cloudboard.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/catherinevee/cloudboard/internal/api"
	"github.com/catherinevee/cloudboard/internal/cache"
	"github.com/catherinevee/cloudboard/internal/metrics"
	"github.com/catherinevee/cloudboard/internal/shared/config"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

// Options configures a dashboard Server
type Options struct {
	Client  *api.Client
	Syncer  *cbsync.Syncer
	Cache   *cache.QueryCache
	Metrics *metrics.Collector
	Logger  zerolog.Logger

	AllowedOrigins []string
	SecureCookies  bool
}

// Server is the web dashboard
type Server struct {
	client  *api.Client
	syncer  *cbsync.Syncer
	cache   *cache.QueryCache
	metrics *metrics.Collector
	log     zerolog.Logger
	pages   map[string]pageTemplate

	router        *mux.Router
	handler       http.Handler
	secureCookies bool
	startTime     time.Time
	now           func() time.Time
}

// NewServer wires the routes and middleware of the dashboard
func NewServer(opts Options) (*Server, error) {
	if opts.Client == nil {
		return nil, errors.New("dashboard requires an API client")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Syncer == nil {
		opts.Syncer = cbsync.NewSyncer(opts.Client, cbsync.WithMetrics(opts.Metrics), cbsync.WithLogger(opts.Logger))
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewQueryCache(cache.NewTTLCache(time.Minute, 1000, opts.Metrics))
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		client:        opts.Client,
		syncer:        opts.Syncer,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		log:           opts.Logger.With().Str("component", "dashboard").Logger(),
		pages:         pages,
		router:        mux.NewRouter(),
		secureCookies: opts.SecureCookies,
		startTime:     time.Now(),
		now:           time.Now,
	}

	s.setupRoutes()
	s.handler = s.setupMiddleware(opts.AllowedOrigins)
	return s, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) setupRoutes() {
	r := s.router

	r.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/login", s.loginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.loginSubmit).Methods(http.MethodPost)
	r.HandleFunc("/register", s.registerPage).Methods(http.MethodGet)
	r.HandleFunc("/register", s.registerSubmit).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.logout).Methods(http.MethodPost)

	r.HandleFunc("/", s.authed(s.homePage)).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.authed(s.profilePage)).Methods(http.MethodGet)
	r.HandleFunc("/diagram.svg", s.authed(s.diagram)).Methods(http.MethodGet)

	r.HandleFunc("/credentials/new", s.authed(s.credentialsChooser)).Methods(http.MethodGet)
	r.HandleFunc("/credentials/{id}/delete", s.authed(s.deleteCredential)).Methods(http.MethodPost)
	r.HandleFunc("/credentials/{provider}", s.authed(s.credentialForm)).Methods(http.MethodGet)
	r.HandleFunc("/credentials/azure", s.authed(s.saveAzureCredential)).Methods(http.MethodPost)
	r.HandleFunc("/credentials/{provider}", s.authed(s.saveCredential)).Methods(http.MethodPost)

	r.HandleFunc("/subscriptions/refresh", s.authed(s.refreshSubscriptions)).Methods(http.MethodPost)
	r.HandleFunc("/subscriptions/{id}/resource-groups", s.authed(s.syncResourceGroups)).Methods(http.MethodPost)
}

func (s *Server) setupMiddleware(allowedOrigins []string) http.Handler {
	s.router.Use(s.requestLogging)
	s.router.Use(s.recovery)
	s.router.Use(s.csrfProtect)

	if len(allowedOrigins) == 0 {
		return s.router
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", api.RequestIDHeader, csrfHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ApplyConfig applies the settings that can change while serving
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.cache.Store().SetDefaultTTL(cfg.Dashboard.CacheTTLDuration())
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		s.log.Warn().Err(err).Msg("ignoring invalid log level from config")
	}
	s.log.Info().
		Dur("cache_ttl", cfg.Dashboard.CacheTTLDuration()).
		Str("log_level", cfg.Logging.Level).
		Msg("configuration reloaded")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.cache.Store().Janitor(janitorCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"service": "cloudboard-dashboard",
		"uptime":  time.Since(s.startTime).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(api.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(api.RequestIDHeader, id)

		l := logger.WithRequestID(s.log, id)
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), l)))

		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqLog := logger.FromContext(r.Context())
				reqLog.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
