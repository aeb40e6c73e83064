// Package api exposes the booking scheduler over HTTP/JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"stationbook/internal/booking"
	"stationbook/internal/metrics"
	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// Booker is the part of the scheduler the API drives.
type Booker interface {
	ListOccupiedSlots(ctx context.Context, date, stationID string) ([]model.TimeRange, error)
	ListReservations(ctx context.Context, date, stationID string) ([]*model.Reservation, error)
	CreateReservation(ctx context.Context, req booking.CreateRequest) (*model.Reservation, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ExtendReservation(ctx context.Context, id string, additionalHours float64) (*model.Reservation, error)
	AttachSecondaryOrder(ctx context.Context, id string, items []model.LineItem) error
	SetGameSelections(ctx context.Context, id string, gameIDs []string) error
	CancelReservation(ctx context.Context, id string) (*model.Reservation, error)
	CompleteReservation(ctx context.Context, id string) (*model.Reservation, error)
}

// StationCatalog is the station directory plus opening hours.
type StationCatalog interface {
	booking.StationDirectory
	Schedule(stationID, date string) (slots.ScheduleInfo, bool)
}

// Config holds HTTP server settings.
type Config struct {
	Port           int
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server    *http.Server
	booker    Booker
	stations  StationCatalog
	generator *slots.Generator
	apiKey    string
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(cfg Config, booker Booker, stations StationCatalog, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		booker:    booker,
		stations:  stations,
		generator: slots.NewGenerator(booker),
		apiKey:    cfg.APIKey,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stations", s.handleListStations)
	mux.HandleFunc("GET /api/stations/{id}/occupied", s.handleOccupied)
	mux.HandleFunc("GET /api/stations/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/stations/{id}/reservations", s.handleStationReservations)
	mux.HandleFunc("POST /api/reservations", s.handleCreate)
	mux.HandleFunc("GET /api/reservations/{id}", s.handleGet)
	mux.HandleFunc("POST /api/reservations/{id}/extend", s.handleExtend)
	mux.HandleFunc("POST /api/reservations/{id}/orders", s.handleAttachOrders)
	mux.HandleFunc("PUT /api/reservations/{id}/games", s.handleSetGames)
	mux.HandleFunc("POST /api/reservations/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/reservations/{id}/complete", s.handleComplete)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.observe(s.rateLimit(s.authenticate(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

// Handler returns the root handler including middleware.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}

func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeBookingError maps scheduler errors to status codes. The message of a
// domain error goes to the client untouched.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case booking.KindSlotConflict:
		status = http.StatusConflict
	case booking.KindNotFound, booking.KindStationNotFound:
		status = http.StatusNotFound
	case booking.KindInvalidExtension, booking.KindCapacityExceeded, booking.KindInvalidRequest,
		booking.KindStationUnavailable, booking.KindInvalidTransition:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("booking operation failed")
		writeError(w, status, "INTERNAL", "internal error")
		return
	}
	writeError(w, status, string(kind), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
