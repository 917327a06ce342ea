package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func TestNewSubmission_TrimsAndMapsAliases(t *testing.T) {
	in := Input{
		Name:        "  Jane Doe ",
		Email:       " jane@x.com",
		Phone:       "5551234",
		CountryCode: "1",
		Message:     "Hello\n",
		Page:        "/contact",
	}
	s := NewSubmission(in, ClientInfo{IP: "203.0.113.7", UserAgent: "Mozilla/5.0", Referer: "https://google.com/"}, fixedNow)

	if s.ID == "" {
		t.Error("expected generated ID")
	}
	if s.FullName != "Jane Doe" {
		t.Errorf("expected full name from alias, got %q", s.FullName)
	}
	if s.Email != "jane@x.com" {
		t.Errorf("expected trimmed email, got %q", s.Email)
	}
	if s.Message != "Hello" {
		t.Errorf("expected trimmed message, got %q", s.Message)
	}
	if s.Phone != "+1 5551234" {
		t.Errorf("expected joined phone, got %q", s.Phone)
	}
	if s.Page != "/contact" || s.Meta.Page != "/contact" {
		t.Errorf("expected page alias to land in meta, got page=%q meta.page=%q", s.Page, s.Meta.Page)
	}
	if s.Referrer != "https://google.com/" {
		t.Errorf("expected Referer header fallback, got %q", s.Referrer)
	}
	if s.IP != "203.0.113.7" {
		t.Errorf("expected ip from client info, got %q", s.IP)
	}
}

func TestNewSubmission_FullNameWinsOverName(t *testing.T) {
	s := NewSubmission(Input{FullName: "Full", Name: "Short"}, ClientInfo{}, fixedNow)
	if s.FullName != "Full" {
		t.Errorf("expected full_name to win, got %q", s.FullName)
	}
}

func TestNewSubmission_HeaderDataWinsOverMeta(t *testing.T) {
	in := Input{Meta: Meta{IP: "10.0.0.1", UserAgent: "meta-ua", Referrer: "https://meta.example/"}}
	s := NewSubmission(in, ClientInfo{IP: "198.51.100.2", UserAgent: "header-ua", Referer: "https://header.example/"}, fixedNow)

	if s.IP != "198.51.100.2" {
		t.Errorf("expected header ip, got %q", s.IP)
	}
	if s.UserAgent != "header-ua" {
		t.Errorf("expected header user agent, got %q", s.UserAgent)
	}
	// meta.referrer is what the page saw; the Referer header is only a fallback.
	if s.Referrer != "https://meta.example/" {
		t.Errorf("expected meta referrer, got %q", s.Referrer)
	}
}

func TestNewSubmission_MetaFallbackWhenHeadersMissing(t *testing.T) {
	in := Input{Meta: Meta{IP: "10.0.0.1", UserAgent: "meta-ua"}}
	s := NewSubmission(in, ClientInfo{}, fixedNow)
	if s.IP != "10.0.0.1" || s.UserAgent != "meta-ua" {
		t.Errorf("expected meta fallback, got ip=%q ua=%q", s.IP, s.UserAgent)
	}
}

func TestJoinPhone(t *testing.T) {
	cases := []struct {
		cc, phone, want string
	}{
		{"", "", ""},
		{"44", "", ""},
		{"", "555 1234", "555 1234"},
		{"44", "20 7946 0958", "+44 20 7946 0958"},
		{"+81", "3-1234-5678", "+81 3-1234-5678"},
		{"1", "+1 555 1234", "+1 555 1234"},
	}
	for _, c := range cases {
		if got := JoinPhone(c.cc, c.phone); got != c.want {
			t.Errorf("JoinPhone(%q, %q) = %q, want %q", c.cc, c.phone, got, c.want)
		}
	}
}

func TestRow_Order(t *testing.T) {
	s := NewSubmission(Input{FullName: "Jane Doe", Email: "jane@x.com", Message: "Hello"},
		ClientInfo{IP: "203.0.113.7", UserAgent: "UA/1.0"}, fixedNow)

	row := s.Row()
	want := []any{"2026-03-14T09:26:53.589Z", "Jane Doe", "jane@x.com", "Hello", "", "", "", "203.0.113.7", "UA/1.0", "{}"}
	if len(row) != len(RowColumns) {
		t.Fatalf("row has %d columns, RowColumns has %d", len(row), len(RowColumns))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d (%s): want %q, got %q", i, RowColumns[i], want[i], row[i])
		}
	}
}

func TestValidate_Required(t *testing.T) {
	cases := map[string]Input{
		"missing name":    {Email: "jane@x.com", Message: "Hello"},
		"blank name":      {FullName: "   ", Email: "jane@x.com", Message: "Hello"},
		"missing email":   {FullName: "Jane", Message: "Hello"},
		"missing message": {FullName: "Jane", Email: "jane@x.com", Message: "\t"},
	}
	for name, in := range cases {
		err := NewSubmission(in, ClientInfo{}, fixedNow).Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", name, err)
			continue
		}
		if ve.Message != MsgRequiredFields {
			t.Errorf("%s: unexpected message %q", name, ve.Message)
		}
	}
}

func TestValidate_MessageTooLong(t *testing.T) {
	in := Input{FullName: "Jane", Email: "jane@x.com", Message: strings.Repeat("a", 5001)}
	err := NewSubmission(in, ClientInfo{}, fixedNow).Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Message != "message is too long" {
		t.Errorf("unexpected message %q", ve.Message)
	}
}

func TestValidate_OK(t *testing.T) {
	in := Input{FullName: "Jane", Email: "jane@x.com", Message: strings.Repeat("あ", 5000)}
	if err := NewSubmission(in, ClientInfo{}, fixedNow).Validate(); err != nil {
		t.Errorf("expected valid submission, got %v", err)
	}
}

func TestMeta_RoundTripKeepsUnknownKeys(t *testing.T) {
	var m Meta
	raw := `{"page":"/contact","utm":{"source":"ads"},"userAgent":"UA","cid":42,"ip":"1.2.3.4"}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Page != "/contact" || m.UserAgent != "UA" || m.IP != "1.2.3.4" {
		t.Errorf("recognized keys not decoded: %+v", m)
	}
	if m.CID != "" {
		t.Errorf("non-string cid should not populate CID, got %q", m.CID)
	}
	if _, ok := m.Extra["cid"]; !ok {
		t.Error("non-string cid should be kept in Extra")
	}

	want := `{"page":"/contact","userAgent":"UA","ip":"1.2.3.4","cid":42,"utm":{"source":"ads"}}`
	if got := m.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestMeta_EmptyIsBraces(t *testing.T) {
	var m Meta
	if got := m.String(); got != "{}" {
		t.Errorf("expected {}, got %s", got)
	}
	if !m.IsEmpty() {
		t.Error("expected IsEmpty")
	}
	if err := json.Unmarshal([]byte("null"), &m); err != nil {
		t.Fatalf("null meta: %v", err)
	}
	if err := json.Unmarshal([]byte(`"text"`), &m); err == nil {
		t.Error("expected error for non-object meta")
	}
}
