package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/munimike/contact-api/internal/metrics"
	"github.com/munimike/contact-api/internal/model"
	"github.com/munimike/contact-api/internal/sink"
)

// DeliveryPolicy controls how Submit treats a failing sink.
type DeliveryPolicy struct {
	// BestEffort swallows delivery failures (logged at WARN) instead of
	// returning ErrDeliveryFailed.
	BestEffort bool
	// Timeout bounds each attempt. Zero leaves only the request deadline.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first one.
	Retries int
	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration
}

// contactServiceImpl is the production implementation of ContactService.
type contactServiceImpl struct {
	sink   sink.Sink
	policy DeliveryPolicy
}

// NewContactService creates a ContactService delivering to s under policy.
func NewContactService(s sink.Sink, policy DeliveryPolicy) ContactService {
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &contactServiceImpl{sink: s, policy: policy}
}

func (s *contactServiceImpl) SinkName() string { return s.sink.Name() }

func (s *contactServiceImpl) Ping(ctx context.Context) error { return s.sink.Ping(ctx) }

// Submit delivers sub and applies the failure policy to the outcome.
func (s *contactServiceImpl) Submit(ctx context.Context, sub *model.Submission) error {
	err := s.deliver(ctx, sub)
	switch {
	case err == nil:
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeDelivered).Inc()
		slog.Info("submission delivered", "submission_id", sub.ID, "sink", s.sink.Name())
		return nil

	case errors.Is(err, sink.ErrNotConfigured):
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeMisconfigured).Inc()
		return err

	case s.policy.BestEffort:
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeSwallowed).Inc()
		slog.Warn("submission not delivered, answering success under best-effort policy",
			"submission_id", sub.ID, "sink", s.sink.Name(), "error", err)
		return nil
	}

	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
}

// deliver runs the first attempt plus up to policy.Retries retries.
// Configuration errors and a finished request context end it early.
func (s *contactServiceImpl) deliver(ctx context.Context, sub *model.Submission) error {
	var err error
	for attempt := 0; attempt <= s.policy.Retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.policy.RetryBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
		}

		err = s.attempt(ctx, sub)
		if err == nil || errors.Is(err, sink.ErrNotConfigured) || ctx.Err() != nil {
			return err
		}
		slog.Warn("sink delivery attempt failed",
			"submission_id", sub.ID, "sink", s.sink.Name(), "attempt", attempt+1, "error", err)
	}
	return err
}

func (s *contactServiceImpl) attempt(ctx context.Context, sub *model.Submission) error {
	if s.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.sink.Deliver(ctx, sub)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SinkDuration.WithLabelValues(s.sink.Name(), result).Observe(time.Since(start).Seconds())
	return err
}
