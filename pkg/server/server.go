// Package server wires the storage and index engines to the HTTP API and
// owns the process-level lifecycle (load, background workers, save).
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/internal/metrics"
	"github.com/autoindex/idxadvisor/pkg/api"
	"github.com/autoindex/idxadvisor/pkg/storage"
)

// Server holds references to the router, the storage engine, and the API handler.
type Server struct {
	router   *mux.Router
	dbEngine *storage.StorageEngine
	handler  *api.Handler
}

// NewServer creates a new instance of Server, applying storage options to
// the underlying engine before registering API routes against it.
func NewServer(options ...storage.StorageOption) *Server {
	dbEngine := storage.NewStorageEngine(options...)

	s := &Server{
		router:   mux.NewRouter(),
		dbEngine: dbEngine,
	}

	s.handler = api.NewHandler(dbEngine, dbEngine.GetIndexEngine())
	s.handler.RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Use the logging middleware for all routes
	s.router.Use(requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Warn().Str("method", r.Method).Str("path", r.URL.Path).Msg("no route found")
		http.NotFound(w, r)
	})

	return s
}

// requestLoggerMiddleware logs the method, URL path, and duration for each
// request and records it against the HTTP request metrics.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if match := mux.CurrentRoute(r); match != nil {
			if tmpl, err := match.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", elapsed).Msg("request served")
		metrics.ObserveHTTPRequest(r.Method, route, strconv.Itoa(rec.status), elapsed)
	})
}

// statusRecorder captures the status code written by a handler so the
// logging middleware can report it after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InitDB optionally load data from a file, or do any initialization steps.
func (s *Server) InitDB(filename string) {
	if err := s.dbEngine.LoadCollectionMetadata(filename); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("could not load DB metadata")
	} else {
		log.Info().Str("file", filename).Msg("loaded DB metadata")
	}
}

// SaveDB saves the current database state to file
func (s *Server) SaveDB(filename string) {
	if err := s.dbEngine.SaveToFile(filename); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("could not save DB")
	} else {
		log.Info().Str("file", filename).Msg("saved DB")
	}
}

// Handler exposes the API handler, e.g. so cmd/ can attach the index
// advisor's query observer to it.
func (s *Server) Handler() *api.Handler {
	return s.handler
}

// StorageEngine exposes the underlying storage engine, e.g. so the index
// advisor's storesource adapter can be built against it.
func (s *Server) StorageEngine() *storage.StorageEngine {
	return s.dbEngine
}

// StartBackgroundWorkers starts the storage engine's background save loop.
func (s *Server) StartBackgroundWorkers() {
	s.dbEngine.StartBackgroundWorkers()
}

// StopBackgroundWorkers stops the storage engine's background save loop.
func (s *Server) StopBackgroundWorkers() {
	s.dbEngine.StopBackgroundWorkers()
}

// Router exposes the internal mux.Router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// RegisterAdmin wires the index advisor's reporting/control endpoints
// onto this server's router.
func (s *Server) RegisterAdmin(admin *api.AdminHandler) {
	admin.RegisterRoutes(s.router)
}
