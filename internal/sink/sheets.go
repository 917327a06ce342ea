package sink

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/munimike/contact-api/internal/model"
)

// SheetsConfig describes the spreadsheet a SheetsSink appends to and the
// service account it authenticates as. Either ServiceAccountJSON or the
// ClientEmail/PrivateKey pair must be set.
type SheetsConfig struct {
	ServiceAccountJSON string
	ClientEmail        string
	PrivateKey         string
	SpreadsheetID      string
	SheetName          string
	Range              string
}

// HasCredentials reports whether a service account credential was supplied.
func (c SheetsConfig) HasCredentials() bool {
	if strings.TrimSpace(c.ServiceAccountJSON) != "" {
		return true
	}
	return strings.TrimSpace(c.ClientEmail) != "" && strings.TrimSpace(c.PrivateKey) != ""
}

func (c SheetsConfig) missing() []string {
	var m []string
	if !c.HasCredentials() {
		m = append(m, "credentials")
	}
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		m = append(m, "spreadsheet_id")
	}
	return m
}

// A1Range returns the append target, e.g. "Contact!A1". Tab names that are
// not plain identifiers are quoted.
func (c SheetsConfig) A1Range() string {
	name := c.SheetName
	if name == "" {
		name = "Contact"
	}
	r := c.Range
	if r == "" {
		r = "A1"
	}
	if strings.ContainsFunc(name, func(ch rune) bool {
		return !(ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z')
	}) {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + r
}

// jwtConfig builds the service-account JWT flow. Keys pasted into env vars
// often carry literal "\n" sequences; those are turned back into newlines.
func (c SheetsConfig) jwtConfig() (*jwt.Config, error) {
	var conf *jwt.Config
	if js := strings.TrimSpace(c.ServiceAccountJSON); js != "" {
		var err error
		conf, err = google.JWTConfigFromJSON([]byte(js), sheets.SpreadsheetsScope)
		if err != nil {
			return nil, err
		}
		if conf.Email == "" {
			return nil, errors.New("service account key has no client_email")
		}
	} else {
		conf = &jwt.Config{
			Email:      strings.TrimSpace(c.ClientEmail),
			PrivateKey: []byte(c.PrivateKey),
			Scopes:     []string{sheets.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
	}
	conf.PrivateKey = bytes.ReplaceAll(conf.PrivateKey, []byte(`\n`), []byte("\n"))
	if err := checkPrivateKey(conf.PrivateKey); err != nil {
		return nil, err
	}
	return conf, nil
}

// checkPrivateKey parses the service account key up front. oauth2 would only
// do it on the first token fetch, turning a bad key into a delivery failure.
// Errors never include key material.
func checkPrivateKey(key []byte) error {
	der := key
	if block, _ := pem.Decode(key); block != nil {
		der = block.Bytes
	} else if bytes.Contains(key, []byte("-----BEGIN")) {
		return errors.New("private key: malformed PEM block")
	}
	if len(bytes.TrimSpace(der)) == 0 {
		return errors.New("private key is empty")
	}
	if _, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return nil
	}
	return errors.New("private key is not a PEM encoded PKCS8 or PKCS1 RSA key")
}

// SheetsSink appends each submission as one row of a Google Sheets tab.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	appendRange   string
}

// NewSheetsSink validates cfg, including the private key, and prepares an
// authenticated Sheets client. ctx supplies values for the token source;
// its cancellation does not stop later token refreshes.
// Extra options are applied after the credential option.
func NewSheetsSink(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsSink, error) {
	if missing := cfg.missing(); len(missing) > 0 {
		return nil, &ConfigError{Sink: "sheets", Missing: missing}
	}
	conf, err := cfg.jwtConfig()
	if err != nil {
		return nil, &ConfigError{Sink: "sheets", Err: err}
	}

	// Token refreshes must keep working while requests drain after ctx ends.
	var ts oauth2.TokenSource = conf.TokenSource(context.WithoutCancel(ctx))
	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	return &SheetsSink{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		appendRange:   cfg.A1Range(),
	}, nil
}

// Ensure SheetsSink implements Sink at compile time.
var _ Sink = (*SheetsSink)(nil)

func (s *SheetsSink) Name() string { return "sheets" }

// Deliver appends sub.Row() below the last row of the target table.
func (s *SheetsSink) Deliver(ctx context.Context, sub *model.Submission) error {
	vr := &sheets.ValueRange{Values: [][]any{sub.Row()}}
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.appendRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	slog.Debug("sheets row appended", "submission_id", sub.ID, "updated_range", updated)
	return nil
}

// Ping fetches the spreadsheet id only, which exercises both the token
// exchange and sheet access.
func (s *SheetsSink) Ping(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	return nil
}
