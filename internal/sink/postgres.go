package sink

import (
	"context"

	"github.com/munimike/contact-api/internal/model"
)

// SubmissionStore persists submissions. repository.PgSubmissionRepository
// implements it.
type SubmissionStore interface {
	Save(ctx context.Context, sub *model.Submission) error
	Ping(ctx context.Context) error
}

// PostgresSink stores submissions in the contact_submissions table.
type PostgresSink struct {
	store SubmissionStore
}

// NewPostgresSink wraps store.
func NewPostgresSink(store SubmissionStore) *PostgresSink {
	return &PostgresSink{store: store}
}

// Ensure PostgresSink implements Sink at compile time.
var _ Sink = (*PostgresSink)(nil)

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Deliver(ctx context.Context, sub *model.Submission) error {
	if err := s.store.Save(ctx, sub); err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	return nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
