package selforder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"selforder-system/internal/database"
	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

// Handler exposes the self-order HTTP surface
type Handler struct {
	service   *Service
	payments  *Orchestrator
	handoff   *Handoff
	scheduler *Scheduler
	db        *database.DB
	logger    *logger.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(service *Service, payments *Orchestrator, handoff *Handoff, scheduler *Scheduler, db *database.DB, log *logger.Logger) *Handler {
	return &Handler{
		service:   service,
		payments:  payments,
		handoff:   handoff,
		scheduler: scheduler,
		db:        db,
		logger:    log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", h.withLogging(h.CreateSession))
	mux.HandleFunc("GET /sessions/{code}", h.withLogging(h.GetSession))
	mux.HandleFunc("POST /sessions/{code}/items", h.withLogging(h.AddItem))
	mux.HandleFunc("POST /sessions/{code}/submit", h.withLogging(h.Submit))
	mux.HandleFunc("GET /sessions/{code}/total", h.withLogging(h.GetTotal))
	mux.HandleFunc("POST /sessions/{code}/pay", h.withLogging(h.CreatePayment))
	mux.HandleFunc("GET /sessions/{code}/payment-status", h.withLogging(h.GetPaymentStatus))
	mux.HandleFunc("PUT /sessions/{code}/extend", h.withLogging(h.ExtendSession))
	mux.HandleFunc("DELETE /sessions/{code}", h.withLogging(h.ForceExpire))
	mux.HandleFunc("POST /payment/callback", h.withLogging(h.PaymentCallback))
	mux.HandleFunc("GET /health", h.withLogging(h.HealthCheck))

	return mux
}

// CreateSession handles POST /sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON format", requestID)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), requestID)
		return
	}

	resp, err := h.service.CreateSession(r.Context(), &req, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// GetSession handles GET /sessions/{code}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	resp, err := h.service.GetSession(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// AddItem handles POST /sessions/{code}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON format", requestID)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), requestID)
		return
	}

	item, err := h.service.AddItem(r.Context(), r.PathValue("code"), &req, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// Submit handles POST /sessions/{code}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	result, err := h.handoff.Submit(r.Context(), r.PathValue("code"), requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetTotal handles GET /sessions/{code}/total
func (h *Handler) GetTotal(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	totals, err := h.payments.CalculateTotal(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, totals)
}

// CreatePayment handles POST /sessions/{code}/pay
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON format", requestID)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), requestID)
		return
	}

	result, err := h.payments.CreatePayment(r.Context(), r.PathValue("code"), &req, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetPaymentStatus handles GET /sessions/{code}/payment-status
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	resp, err := h.payments.GetStatus(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ExtendSession handles PUT /sessions/{code}/extend
func (h *Handler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.ExtendSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON format", requestID)
		return
	}

	session, err := h.scheduler.Extend(r.Context(), r.PathValue("code"), req.Minutes)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// ForceExpire handles DELETE /sessions/{code}, a staff-side manual expiry
func (h *Handler) ForceExpire(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	session, err := h.scheduler.ForceExpire(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// PaymentCallback handles POST /payment/callback. The gateway retries on
// non-200 responses, so this endpoint acknowledges everything it receives;
// malformed or unknown ids are absorbed inside the orchestrator.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req models.PaymentCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Error("callback_malformed", "Ignoring callback with invalid body", requestID, err, nil)
	} else {
		h.payments.HandleCallback(r.Context(), req.OrderID, req.Status, requestID)
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "selforder-api",
	}

	if err := h.db.Ping(ctx); err != nil {
		response["status"] = "unhealthy"
		h.writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeDomainError maps the error taxonomy to HTTP status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, requestID string) {
	code := models.ErrorCode(err)

	var status int
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAmountMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidState):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		h.logger.Error("request_failed", "Unhandled error", requestID, err, nil)
		h.writeError(w, status, code, "Internal server error", requestID)
		return
	}

	h.writeError(w, status, code, err.Error(), requestID)
}

// writeError writes a structured error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":      message,
		"code":       code,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

type requestIDKey struct{}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return logger.GenerateRequestID()
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
