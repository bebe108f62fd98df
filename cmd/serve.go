package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/export"
	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
	"github.com/sells-group/catchment/internal/poi"
	"github.com/sells-group/catchment/internal/provider"
	"github.com/sells-group/catchment/internal/resilience"
	"github.com/sells-group/catchment/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catchment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		handler := buildRouter(&api{
			analyzer: env.Analyzer,
			sessions: env.Sessions,
			breakers: env.Breakers,
		}, cfg.Server.AllowedOrigins)

		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// catchmentAnalyzer is the analyzer surface the API needs.
type catchmentAnalyzer interface {
	session.Analyzer
	Limits() catchment.Limits
}

type api struct {
	analyzer catchmentAnalyzer
	sessions *session.Store
	breakers *resilience.Breakers
}

// buildRouter mounts the API routes.
func buildRouter(a *api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/limits", a.limits)
		r.Get("/categories", a.categories)
		r.Post("/sessions", a.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/analyze", a.analyze)
			r.Get("/result", a.result)
			r.Get("/export", a.export)
			r.Delete("/", a.deleteSession)
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.breakers != nil {
		body["breakers"] = a.breakers.States()
	}
	if a.sessions != nil {
		body["sessions"] = a.sessions.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) limits(w http.ResponseWriter, _ *http.Request) {
	l := a.analyzer.Limits()
	writeJSON(w, http.StatusOK, map[string]float64{
		"min_minutes":       l.MinMinutes,
		"max_minutes":       l.MaxMinutes,
		"default_minutes":   l.DefaultMinutes,
		"default_speed_kph": l.DefaultSpeed,
	})
}

type categoryInfo struct {
	Name   poi.Category `json:"name"`
	Color  string       `json:"color"`
	Radius int          `json:"radius"`
}

func (a *api) categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, categoryTable())
}

func categoryTable() []categoryInfo {
	cats := poi.Categories()
	out := make([]categoryInfo, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryInfo{Name: c, Color: c.Color(), Radius: c.MarkerRadius()})
	}
	return out
}

func (a *api) createSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": session.NewID()})
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	a.sessions.Invalidate(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type analyzeRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Minutes  float64  `json:"minutes"`
	SpeedKPH float64  `json:"speed_kph"`
}

// resultResponse is a Result plus its polygon ring, which Result itself
// does not serialize.
type resultResponse struct {
	*catchment.Result
	Polygon []geo.Point `json:"polygon"`
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	res, err := a.sessions.Analyze(r.Context(), chi.URLParam(r, "id"), a.analyzer, catchment.Query{
		Origin:   geo.Point{Lat: *req.Lat, Lon: *req.Lon},
		Minutes:  req.Minutes,
		SpeedKPH: req.SpeedKPH,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("analysis failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: res, Polygon: res.PolygonCoords()})
}

func (a *api) result(w http.ResponseWriter, r *http.Request) {
	res, ok := a.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no result for session")
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: res, Polygon: res.PolygonCoords()})
}

func (a *api) export(w http.ResponseWriter, r *http.Request) {
	res, ok := a.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no result for session")
		return
	}

	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatGeoJSON)
	}
	format, err := export.ParseFormat(name)
	if err != nil || !format.Streamable() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", name))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == export.FormatXLSX {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="catchment_%s.xlsx"`, shortID(res.ID)))
	}
	if err := export.Write(w, res, format); err != nil {
		zap.L().Error("export failed", zap.String("format", name), zap.Error(err))
	}
}

// statusFor maps analysis failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; fetch errors wrapping the cancellation included.
		return 499
	case errors.Is(err, catchment.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, network.ErrNoNetworkFound):
		return http.StatusNotFound
	case provider.IsFetchError(err), errors.Is(err, provider.ErrCRSMismatch):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
