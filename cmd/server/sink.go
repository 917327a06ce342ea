package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/munimike/contact-api/internal/config"
	"github.com/munimike/contact-api/internal/logging"
	"github.com/munimike/contact-api/internal/repository"
	"github.com/munimike/contact-api/internal/sink"
)

// buildSink constructs the configured sink. Missing configuration does not
// stop the server: the sink is replaced by one that fails every delivery,
// which the service reports as a configuration error. ctx backs the Sheets
// token source, so it must stay alive as long as the sink is used.
func buildSink(ctx context.Context, cfg *config.Config) (sink.Sink, func()) {
	noop := func() {}

	var (
		s   sink.Sink
		err error
	)
	closer := noop
	switch cfg.Sink.Kind {
	case config.SinkSheets:
		s, err = sink.NewSheetsSink(ctx, sink.SheetsConfig{
			ServiceAccountJSON: cfg.Sheets.ServiceAccountKey,
			ClientEmail:        cfg.Sheets.ClientEmail,
			PrivateKey:         cfg.Sheets.PrivateKey,
			SpreadsheetID:      cfg.Sheets.SpreadsheetID,
			SheetName:          cfg.Sheets.SheetName,
			Range:              cfg.Sheets.Range,
		})
	case config.SinkRelay:
		s, err = sink.NewRelaySink(sink.RelayConfig{
			WebhookURL: cfg.Relay.WebhookURL,
			Timeout:    cfg.Sink.Timeout,
		}, nil)
	case config.SinkPostgres:
		if cfg.Database.URL == "" {
			err = &sink.ConfigError{Sink: config.SinkPostgres, Missing: []string{"database_url"}}
			break
		}
		pool, perr := repository.NewPool(ctx, cfg.Database.URL)
		if perr != nil {
			logging.Fatal("failed to connect to database", "error", perr)
		}
		closer = pool.Close
		s = sink.NewPostgresSink(repository.NewPgSubmissionRepository(pool))
	}

	if err != nil {
		var ce *sink.ConfigError
		if !errors.As(err, &ce) {
			ce = &sink.ConfigError{Sink: cfg.Sink.Kind, Err: err}
		}
		slog.Error("contact sink is not configured; submissions will fail",
			"sink", cfg.Sink.Kind, "missing", ce.Missing, "error", ce.Err)
		return &sink.Unavailable{SinkName: cfg.Sink.Kind, Err: ce}, noop
	}
	return s, closer
}

// sinkChecks extends the presence checks of cfg with "usable", which is false
// when the sink could not be built from what was supplied.
func sinkChecks(cfg *config.Config, s sink.Sink) map[string]bool {
	checks := cfg.SinkChecks()
	_, unavailable := s.(*sink.Unavailable)
	checks["usable"] = !unavailable
	return checks
}
