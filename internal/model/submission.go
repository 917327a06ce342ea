package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout renders ReceivedAt the same way browsers render
// Date.prototype.toISOString (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RowColumns is the canonical column order of a submission row.
// Sheets and the postgres table both follow it.
var RowColumns = []string{
	"timestamp",
	"full_name",
	"email",
	"message",
	"page",
	"referrer",
	"phone",
	"ip",
	"user_agent",
	"meta",
}

// Submission represents one contact form submission. It is built per request
// and discarded once the response is written; durability belongs to the sink.
type Submission struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	FullName   string    `json:"full_name" validate:"required,max=200"`
	Email      string    `json:"email" validate:"required,max=320"`
	Phone      string    `json:"phone,omitempty" validate:"max=64"`
	Message    string    `json:"message" validate:"required,max=5000"`
	Page       string    `json:"page,omitempty" validate:"max=2048"`
	Referrer   string    `json:"referrer,omitempty" validate:"max=2048"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Meta       Meta      `json:"meta"`
}

// Input carries the client payload after body decoding, before alias mapping.
//
// Client compatibility mapping:
//
//	name                  -> full_name (when full_name is empty)
//	page, referrer        -> meta.page, meta.referrer (when meta lacks them)
//	country_code + phone  -> phone ("+<cc> <phone>")
type Input struct {
	FullName    string
	Name        string
	Email       string
	Phone       string
	CountryCode string
	Message     string
	Page        string
	Referrer    string
	Meta        Meta
}

// ClientInfo holds what the server itself observed about the caller.
type ClientInfo struct {
	IP        string
	UserAgent string
	Referer   string
}

// NewSubmission maps a decoded payload onto the canonical Submission shape.
// Header-derived client data wins over values the browser reported in meta.
func NewSubmission(in Input, client ClientInfo, now time.Time) *Submission {
	meta := in.Meta
	if meta.Page == "" {
		meta.Page = strings.TrimSpace(in.Page)
	}
	if meta.Referrer == "" {
		meta.Referrer = strings.TrimSpace(in.Referrer)
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(in.Name)
	}

	s := &Submission{
		ID:         uuid.NewString(),
		ReceivedAt: now.UTC(),
		FullName:   fullName,
		Email:      strings.TrimSpace(in.Email),
		Phone:      JoinPhone(in.CountryCode, in.Phone),
		Message:    strings.TrimSpace(in.Message),
		Page:       strings.TrimSpace(meta.Page),
		Referrer:   firstNonEmpty(meta.Referrer, client.Referer),
		IP:         firstNonEmpty(client.IP, meta.IP),
		UserAgent:  firstNonEmpty(client.UserAgent, meta.UserAgent),
		Meta:       meta,
	}
	return s
}

// JoinPhone combines an optional country code with a phone number.
// A number that already carries a "+" prefix is kept as is.
func JoinPhone(countryCode, phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	cc := strings.TrimSpace(countryCode)
	if cc == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return cc + " " + phone
}

// Row returns the submission as one spreadsheet row in RowColumns order.
func (s *Submission) Row() []any {
	return []any{
		s.ReceivedAt.UTC().Format(TimestampLayout),
		s.FullName,
		s.Email,
		s.Message,
		s.Page,
		s.Referrer,
		s.Phone,
		s.IP,
		s.UserAgent,
		s.Meta.String(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
