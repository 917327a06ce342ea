package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/munimike/contact-api/internal/model"
)

// maxRelayResponse bounds how much of the webhook reply is read.
const maxRelayResponse = 64 << 10

// RelayConfig configures a RelaySink.
type RelayConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// RelaySink posts a reduced field set to an automation webhook (for example
// a Google Apps Script web app) which writes the row on our behalf.
type RelaySink struct {
	webhookURL string
	httpClient *http.Client
}

// NewRelaySink validates the webhook URL. A nil client gets a default one
// with cfg.Timeout (30s when unset).
func NewRelaySink(cfg RelayConfig, client *http.Client) (*RelaySink, error) {
	raw := strings.TrimSpace(cfg.WebhookURL)
	if raw == "" {
		return nil, &ConfigError{Sink: "relay", Missing: []string{"webhook_url"}}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Sink: "relay", Err: err}
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, &ConfigError{Sink: "relay", Err: fmt.Errorf("webhook url must be absolute http(s), got %q", u.Redacted())}
	}

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RelaySink{webhookURL: u.String(), httpClient: client}, nil
}

// Ensure RelaySink implements Sink at compile time.
var _ Sink = (*RelaySink)(nil)

func (s *RelaySink) Name() string { return "relay" }

// relayReply is the webhook's own verdict. Scripts answer either
// {"ok":true} / {"ok":false,"error":"..."} or {"status":"success"}.
type relayReply struct {
	OK      *bool  `json:"ok"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Deliver sends name, email, phone and message as form data and trusts the
// webhook's reply for the outcome.
func (s *RelaySink) Deliver(ctx context.Context, sub *model.Submission) error {
	form := url.Values{}
	form.Set("name", sub.FullName)
	form.Set("email", sub.Email)
	form.Set("phone", sub.Phone)
	form.Set("message", sub.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponse))
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: fmt.Errorf("read reply: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Sink: s.Name(), Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	}

	var reply relayReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return &DeliveryError{Sink: s.Name(), Err: fmt.Errorf("webhook reply is not JSON: %w", err)}
	}
	if err := reply.err(); err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	return nil
}

func (r relayReply) err() error {
	if r.OK != nil {
		if *r.OK {
			return nil
		}
		return r.failure()
	}
	switch strings.ToLower(r.Status) {
	case "ok", "success":
		return nil
	case "":
		return errors.New("webhook reply has no ok or status field")
	}
	return r.failure()
}

func (r relayReply) failure() error {
	switch {
	case r.Error != "":
		return fmt.Errorf("webhook reported failure: %s", r.Error)
	case r.Message != "":
		return fmt.Errorf("webhook reported failure: %s", r.Message)
	}
	return errors.New("webhook reported failure")
}

// Ping only reports configuration; the webhook has no side-effect-free check.
func (s *RelaySink) Ping(context.Context) error { return nil }
