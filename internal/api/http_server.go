package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/allocation"
	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/metrics"
	"github.com/afiqaffendi/rbs/internal/models"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Bookings    domain.BookingService
	Restaurants domain.RestaurantService
	Drafts      domain.DraftService
}

// ReadinessCheck reports whether the backing store can serve requests.
type ReadinessCheck func(ctx context.Context) error

// HTTPServer is the JSON API of the booking system.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	ready    ReadinessCheck
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, services Services, ready ReadinessCheck, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		services: services,
		ready:    ready,
		auth:     NewHTTPAuth(cfg),
		logger:   base,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	limiter := newRateLimiter(cfg.RateLimit, srv.auth.apiKeyHeader())
	handler := srv.loggingMiddleware(srv.corsMiddleware(limiter.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	user := s.auth.RequireUser

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/restaurants", s.handleListRestaurants)
	mux.HandleFunc("GET /api/v1/restaurants/{id}", s.handleGetRestaurant)
	mux.HandleFunc("GET /api/v1/restaurants/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/restaurants/{id}/availability", s.handleAvailability)
	mux.HandleFunc("PUT /api/v1/restaurants/{id}/inventory", user(s.handleUpdateInventory))
	mux.HandleFunc("PUT /api/v1/restaurants/{id}/hours", user(s.handleUpdateHours))
	mux.HandleFunc("PUT /api/v1/restaurants/{id}/menu", user(s.handleUpdateMenu))
	mux.HandleFunc("GET /api/v1/restaurants/{id}/bookings", user(s.handleDailyBookings))

	mux.HandleFunc("POST /api/v1/bookings", user(s.handleCreateBooking))
	mux.HandleFunc("GET /api/v1/bookings", user(s.handleListBookings))
	mux.HandleFunc("GET /api/v1/bookings/{id}", user(s.handleGetBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", user(s.handleCancelBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", user(s.handleCompleteBooking))
	mux.HandleFunc("POST /api/v1/bookings/{id}/verify", user(s.handleVerifyPayment))

	mux.HandleFunc("POST /api/v1/payments/callback", s.auth.RequireAPIKey(permPaymentCallback, s.handlePaymentCallback))

	mux.HandleFunc("GET /api/v1/drafts/me", user(s.handleGetDraft))
	mux.HandleFunc("PUT /api/v1/drafts/me", user(s.handleSaveDraft))
	mux.HandleFunc("DELETE /api/v1/drafts/me", user(s.handleClearDraft))
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", s.auth.apiKeyHeader()},
		AllowCredentials: true,
	}).Handler(next)
}

const requestIDHeader = "X-Request-ID"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.ObserveHTTP(endpoint, strconv.Itoa(recorder.status), dur)

		ev := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Restaurants.ListRestaurants(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restaurants": list})
}

func (s *HTTPServer) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rest, err := s.services.Restaurants.GetRestaurant(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

// handleSlots lists the slot labels of a restaurant, or with a date the availability of each.
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		labels, err := s.services.Bookings.ListSlots(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": labels})
		return
	}

	pax, ok := queryInt(w, r, "pax", 1)
	if !ok {
		return
	}
	avail, err := s.services.Bookings.SlotAvailability(r.Context(), id, date, pax)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "pax": pax, "slots": avail})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("date") == "" || q.Get("slot") == "" {
		writeError(w, http.StatusBadRequest, "date and slot are required")
		return
	}
	pax, ok := queryInt(w, r, "pax", 0)
	if !ok {
		return
	}

	res, err := s.services.Bookings.CheckAvailability(r.Context(), id, q.Get("date"), q.Get("slot"), pax)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inventoryRequest struct {
	Tables map[string]int `json:"tables"`
}

func (s *HTTPServer) handleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body inventoryRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	rest, err := s.services.Restaurants.UpdateInventory(r.Context(), caller, id, body.Tables)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

type hoursRequest struct {
	OperatingHours string `json:"operating_hours"`
}

func (s *HTTPServer) handleUpdateHours(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body hoursRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	rest, err := s.services.Restaurants.UpdateHours(r.Context(), caller, id, body.OperatingHours)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

type menuRequest struct {
	Menu []models.MenuItem `json:"menu"`
}

func (s *HTTPServer) handleUpdateMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body menuRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	rest, err := s.services.Restaurants.UpdateMenu(r.Context(), caller, id, body.Menu)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

func (s *HTTPServer) handleDailyBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	list, err := s.services.Bookings.DailyBookings(r.Context(), caller, id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "bookings": list})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	req.CustomerID = caller.UserID

	b, err := s.services.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	var (
		list []models.Booking
		err  error
	)
	view := r.URL.Query().Get("view")
	switch view {
	case "", "upcoming":
		view = "upcoming"
		list, err = s.services.Bookings.UpcomingBookings(r.Context(), caller.UserID)
	case "history":
		list, err = s.services.Bookings.BookingHistory(r.Context(), caller.UserID)
	default:
		writeError(w, http.StatusBadRequest, "view must be upcoming or history")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": view, "bookings": list})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, s.services.Bookings.GetBooking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, s.services.Bookings.CancelBooking)
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, s.services.Bookings.CompleteBooking)
}

type verifyRequest struct {
	Approve *bool `json:"approve"`
}

func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Approve == nil {
		writeError(w, http.StatusBadRequest, "approve is required")
		return
	}
	s.bookingAction(w, r, func(ctx context.Context, caller domain.Identity, id int64) (*models.Booking, error) {
		return s.services.Bookings.VerifyPayment(ctx, caller, id, *body.Approve)
	})
}

func (s *HTTPServer) bookingAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Identity, int64) (*models.Booking, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	b, err := fn(r.Context(), caller, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	draft, err := s.services.Drafts.GetDraft(r.Context(), caller.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if draft == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.DraftBooking
	if !decodeJSON(w, r, &draft) {
		return
	}
	caller, _ := IdentityFromContext(r.Context())
	draft.UserID = caller.UserID

	if err := s.services.Drafts.SaveDraft(r.Context(), &draft); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	if err := s.services.Drafts.ClearDraft(r.Context(), caller.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrConfiguration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrNoSuitableTable):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  err.Error(),
			"reason": allocation.ReasonNoSuitableTable,
		})
	case errors.Is(err, models.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"retryable": true,
		})
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return n, true
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
