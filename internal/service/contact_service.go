package service

import (
	"context"
	"errors"

	"github.com/munimike/contact-api/internal/model"
)

// ErrDeliveryFailed is returned by Submit under the strict policy when the
// sink could not record the submission.
var ErrDeliveryFailed = errors.New("submission delivery failed")

// ContactService defines the business logic for contact form submissions.
type ContactService interface {
	// Submit forwards a validated submission to the configured sink.
	// A nil error means the caller may answer with success; under the
	// best-effort policy that includes sink failures, which are only logged.
	// Configuration errors are always returned.
	Submit(ctx context.Context, sub *model.Submission) error

	// SinkName names the active sink.
	SinkName() string

	// Ping reports whether the active sink is usable.
	Ping(ctx context.Context) error
}
