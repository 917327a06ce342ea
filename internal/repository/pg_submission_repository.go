package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/munimike/contact-api/internal/model"
)

// SubmissionRepository defines the persistence interface for contact submissions.
type SubmissionRepository interface {
	Save(ctx context.Context, sub *model.Submission) error
	Ping(ctx context.Context) error
}

// PgSubmissionRepository is the PostgreSQL implementation of SubmissionRepository.
type PgSubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubmissionRepository creates a PgSubmissionRepository backed by the given pool.
func NewPgSubmissionRepository(pool *pgxpool.Pool) *PgSubmissionRepository {
	return &PgSubmissionRepository{pool: pool}
}

// Ensure PgSubmissionRepository implements SubmissionRepository at compile time.
var _ SubmissionRepository = (*PgSubmissionRepository)(nil)

// Save inserts one contact_submissions row. The id is the submission's own
// UUID so a retried delivery cannot create a duplicate row.
func (r *PgSubmissionRepository) Save(ctx context.Context, sub *model.Submission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO contact_submissions
		   (id, received_at, full_name, email, phone, message, page, referrer, ip, user_agent, meta)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		sub.ID, sub.ReceivedAt, sub.FullName, sub.Email, sub.Phone, sub.Message,
		sub.Page, sub.Referrer, sub.IP, sub.UserAgent, sub.Meta.String(),
	)
	return err
}

// Ping checks the pool can reach the database.
func (r *PgSubmissionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
