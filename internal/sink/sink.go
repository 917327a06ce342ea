// Package sink delivers contact submissions to the external system of record.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/munimike/contact-api/internal/model"
)

// Sink is the system of record a submission is forwarded to.
type Sink interface {
	// Name identifies the sink in logs and metrics ("sheets", "relay", "postgres").
	Name() string
	// Deliver forwards one submission. It is called at most once per attempt.
	Deliver(ctx context.Context, sub *model.Submission) error
	// Ping reports whether the sink is usable without delivering anything.
	Ping(ctx context.Context) error
}

// ErrNotConfigured is matched by every ConfigError.
var ErrNotConfigured = errors.New("sink: not configured")

// ConfigError reports configuration a sink needs but did not get, or got in
// a form it cannot use.
type ConfigError struct {
	Sink    string
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sink %s: invalid configuration: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("sink %s: missing configuration: %s", e.Sink, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrNotConfigured }

// DeliveryError wraps a failed call to the external system.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string { return "sink " + e.Sink + ": " + e.Err.Error() }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Unavailable is a Sink that fails every call with the same error. It stands
// in for a sink whose construction failed so the server can still start and
// report the problem through its health endpoints.
type Unavailable struct {
	SinkName string
	Err      error
}

func (u *Unavailable) Name() string { return u.SinkName }

func (u *Unavailable) Deliver(context.Context, *model.Submission) error { return u.Err }

func (u *Unavailable) Ping(context.Context) error { return u.Err }
