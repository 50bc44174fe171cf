package public

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/langowen/fxledger/deploy/config"
	"github.com/langowen/fxledger/internal/api_service/service"
	mwLogger "github.com/langowen/fxledger/internal/api_service/ports/http/public/middleware/logger"
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Server  *http.Server
	cfg     *config.Config
	service Service
	pinger  Pinger
}

func NewServer(server *http.Server, cfg *config.Config, svc Service, pinger Pinger) *Server {
	return &Server{
		Server:  server,
		cfg:     cfg,
		service: svc,
		pinger:  pinger,
	}
}

// NewRouter mounts the API routes and /metrics.
func NewRouter(s *Server, reg prometheus.Registerer, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwLogger.New())
	r.Use(middleware.Recoverer)
	r.Use(NewHTTPMetrics(reg).Middleware)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.Health)
	r.Get("/rates/{base}", s.GetRates)
	r.Get("/rates/{base}/{target}", s.GetPair)

	return r
}

func StartServer(ctx context.Context, svc Service, pinger Pinger, cfg *config.Config) <-chan struct{} {
	serverConfig := &http.Server{
		Addr:         ":" + cfg.HTTPServer.Port,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	server := NewServer(serverConfig, cfg, svc, pinger)
	serverConfig.Handler = NewRouter(server, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

	doneChan := make(chan struct{})

	go func() {
		if err := server.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop server", "error", err)
		}

		close(doneChan)
	}()

	return doneChan
}

func (s *Server) GetRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	base := chi.URLParam(r, "base")

	opts, err := parseOptions(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rates, err := s.service.FetchRates(ctx, base, opts...)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, rates)
}

func (s *Server) GetPair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	base := chi.URLParam(r, "base")
	target := chi.URLParam(r, "target")

	opts, err := parseOptions(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rate, err := s.service.FetchPair(ctx, base, target, opts...)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, rate)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			RespondWithError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}

	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseOptions(r *http.Request) ([]service.Option, error) {
	var opts []service.Option

	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := date.Parse(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithDate(day))
	}

	if raw := r.URL.Query().Get("precision"); raw != "" {
		precision, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, errors.New("precision must be an integer")
		}
		opts = append(opts, service.WithPrecision(int32(precision)))
	}

	return opts, nil
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, "rates not found")
	case errors.Is(err, entities.ErrValidation), errors.Is(err, entities.ErrInvalidBaseCurrency):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func RespondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func RespondWithError(w http.ResponseWriter, code int, message string, details ...string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)

	errorText := message
	if len(details) > 0 {
		errorText += "\nDetails: " + details[0]
	}

	if _, err := w.Write([]byte(errorText)); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}
