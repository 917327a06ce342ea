package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/munimike/contact-api/internal/metrics"
	"github.com/munimike/contact-api/internal/model"
	"github.com/munimike/contact-api/internal/service"
)

const msgInternalError = "Internal error"

// ContactConfig carries the form-handling settings of a ContactHandler.
type ContactConfig struct {
	HoneypotField      string
	MaxBodyBytes       int64
	HealthCheckEnabled bool
	// SinkChecks lists configuration presence for GET ?health=1.
	SinkChecks        map[string]bool
	TrustedProxyCount int
}

// ContactHandler handles /api/contact.
type ContactHandler struct {
	contactService service.ContactService
	cfg            ContactConfig
	now            func() time.Time
}

// NewContactHandler creates a ContactHandler with the given service.
func NewContactHandler(contactService service.ContactService, cfg ContactConfig) *ContactHandler {
	if cfg.HoneypotField == "" {
		cfg.HoneypotField = "website"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &ContactHandler{contactService: contactService, cfg: cfg, now: time.Now}
}

// ServeHTTP gates on the method before any body is read.
func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.Submit(w, r)
	case http.MethodGet:
		if h.cfg.HealthCheckEnabled && r.URL.Query().Get("health") == "1" {
			h.HealthCheck(w, r)
			return
		}
		h.methodNotAllowed(w)
	default:
		h.methodNotAllowed(w)
	}
}

func (h *ContactHandler) methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "POST, OPTIONS")
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Only POST allowed"})
}

// Submit handles POST /api/contact.
// full_name (or name), email and message are required; a filled honeypot
// field is answered like a success and dropped.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	in, trapped, err := decodeInput(w, r, h.cfg.MaxBodyBytes, h.cfg.HoneypotField)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		if errors.Is(err, errBodyTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		slog.Debug("contact body rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	client := h.clientInfo(r)

	if trapped {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeHoneypot).Inc()
		slog.Info("honeypot submission dropped", "field", h.cfg.HoneypotField, "ip", client.IP)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	sub := model.NewSubmission(in, client, h.now())
	if err := sub.Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message})
			return
		}
		slog.Error("contact validation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternalError})
		return
	}

	if err := h.contactService.Submit(r.Context(), sub); err != nil {
		slog.Error("contact submit failed", "error", err,
			"submission_id", sub.ID, "sink", h.contactService.SinkName())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternalError})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthCheckResponse is the JSON response for GET /api/contact?health=1.
type healthCheckResponse struct {
	OK     bool            `json:"ok"`
	Sink   string          `json:"sink"`
	Checks map[string]bool `json:"checks"`
}

// HealthCheck reports which configuration items the active sink has.
// It never calls the sink.
func (h *ContactHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]bool, len(h.cfg.SinkChecks))
	ok := true
	for k, v := range h.cfg.SinkChecks {
		checks[k] = v
		ok = ok && v
	}
	writeJSON(w, http.StatusOK, healthCheckResponse{
		OK:     ok,
		Sink:   h.contactService.SinkName(),
		Checks: checks,
	})
}

func (h *ContactHandler) clientInfo(r *http.Request) model.ClientInfo {
	return model.ClientInfo{
		IP:        ClientIP(r, h.cfg.TrustedProxyCount),
		UserAgent: r.Header.Get("User-Agent"),
		Referer:   r.Header.Get("Referer"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
