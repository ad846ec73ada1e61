// Package api provides the local view server for macrocal.
//
// It exposes the page state held by the controllers (event list, summary,
// filters, server info) as JSON so that a browser UI can render it, and
// forwards the user actions (toggle, filter, refresh) back to them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/macrocal/internal/app"
	"github.com/seenimoa/macrocal/internal/controller"
	"github.com/seenimoa/macrocal/pkg/models"
)

// Version is reported by /health. The CLI overrides it at startup.
var Version = "dev"

// Server is the HTTP view server.
type Server struct {
	router chi.Router
	app    *app.App
	log    logrus.FieldLogger
}

// NewServer creates a configured view server with all routes and middleware.
func NewServer(a *app.App) *Server {
	s := &Server{
		app: a,
		log: a.Log.WithField("component", "api"),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server and shuts it down gracefully on
// SIGINT/SIGTERM.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.WithField("addr", addr).Info("view server listening")

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	s.log.Info("shutting down view server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if len(s.app.Config.Server.CORSOrigins) > 0 {
		origins = s.app.Config.Server.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/view", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Post("/events/{index}/toggle", s.handleToggleEvent)

		r.Get("/summary", s.handleSummary)
		r.Post("/summary/sections/{name}/toggle", s.handleToggleSection)

		r.Post("/refresh", s.handleRefresh)

		r.Get("/filters", s.handleGetFilters)
		r.Put("/filters", s.handlePutFilters)
		r.Delete("/filters", s.handleResetFilters)

		r.Get("/info", s.handleInfo)
	})

	return r
}

// requestLogger writes one access log line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// FiltersResponse is the body of GET /api/view/filters.
type FiltersResponse struct {
	Filters models.FilterState       `json:"filters"`
	Sort    models.SortKey           `json:"sortBy"`
	Options controller.FilterOptions `json:"options"`
}

// InfoResponse is the body of GET /api/view/info.
type InfoResponse struct {
	Server      controller.ServerInfo `json:"server"`
	Panel       controller.Panel      `json:"panel"`
	CurrentTime string                `json:"currentTime"`
	LastUpdate  *time.Time            `json:"lastUpdate,omitempty"`
	Notices     []string              `json:"notices"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":   "ok",
			"version":  Version,
			"base_url": s.app.Client.BaseURL(),
			"time":     time.Now().Format(time.RFC3339),
		},
	})
}

// handleEvents returns the event list. Filter and sort query parameters,
// when present, replace the current selection before the view is taken.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ev := s.app.Events

	if q.Has("importance") || q.Has("currency") || q.Has("country") {
		f := ev.View().Filters
		if q.Has("importance") {
			f.Importance = q.Get("importance")
		}
		if q.Has("currency") {
			f.Currency = q.Get("currency")
		}
		if q.Has("country") {
			f.Country = q.Get("country")
		}
		if err := ev.SetFilters(r.Context(), f); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if q.Has("sort") {
		key, ok := models.ParseSortKey(q.Get("sort"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid sort key: "+q.Get("sort"))
			return
		}
		ev.SetSort(key)
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ev.View()})
}

func (s *Server) handleToggleEvent(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	expanded, ok := s.app.Events.ToggleExpand(idx)
	if !ok {
		writeError(w, http.StatusNotFound, "no event at index "+strconv.Itoa(idx))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"index": idx, "expanded": expanded},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(s.app.Summary.HTML())) //nolint:errcheck
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Summary.View()})
}

func (s *Server) handleToggleSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	expanded, err := s.app.Summary.ToggleSection(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"section": name, "expanded": expanded},
	})
}

// handleRefresh schedules a debounced refresh and returns immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.app.Events.RequestRefresh()
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "scheduled"},
	})
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	v := s.app.Events.View()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: FiltersResponse{
			Filters: v.Filters,
			Sort:    v.Sort,
			Options: controller.DefaultFilterOptions(),
		},
	})
}

func (s *Server) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	var f models.FilterState
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.app.Events.SetFilters(r.Context(), f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Events.View().Filters})
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	s.app.Events.ResetFilters(r.Context())
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Events.View().Filters})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	v := s.app.Events.View()
	info := InfoResponse{
		Server:      s.app.Session.Server(),
		Panel:       v.Server,
		CurrentTime: v.CurrentTime,
		Notices:     s.app.Notices.Messages(),
	}
	if t := s.app.Session.LastUpdate(); !t.IsZero() {
		info.LastUpdate = &t
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: info})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
