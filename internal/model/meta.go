package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Meta is the browser metadata sent alongside a submission.
// Keys other than the recognized ones are kept untouched in Extra and are
// serialized back after them.
type Meta struct {
	Page      string
	Referrer  string
	UserAgent string
	IP        string
	CID       string
	Extra     map[string]json.RawMessage
}

// metaKeys lists the recognized keys in serialization order.
var metaKeys = []string{"page", "referrer", "userAgent", "ip", "cid"}

func (m *Meta) field(key string) *string {
	switch key {
	case "page":
		return &m.Page
	case "referrer":
		return &m.Referrer
	case "userAgent":
		return &m.UserAgent
	case "ip":
		return &m.IP
	case "cid":
		return &m.CID
	}
	return nil
}

// UnmarshalJSON accepts any JSON object. A recognized key holding a
// non-string value is moved to Extra rather than rejected.
func (m *Meta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Meta{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("meta: %w", err)
	}

	out := Meta{}
	for k, v := range raw {
		if dst := out.field(k); dst != nil {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				*dst = s
				continue
			}
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}
	*m = out
	return nil
}

// MarshalJSON writes recognized keys first (only when set), then Extra keys
// in lexical order.
func (m Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(v)
	}

	for _, k := range metaKeys {
		v := *m.field(k)
		if v == "" {
			continue
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		write(k, vb)
	}

	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if m.field(k) != nil && *m.field(k) != "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m.Extra[k]
		if !json.Valid(v) {
			return nil, fmt.Errorf("meta: invalid raw value for key %q", k)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return nil, err
		}
		write(k, compact.Bytes())
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IsEmpty reports whether no metadata was supplied.
func (m Meta) IsEmpty() bool {
	for _, k := range metaKeys {
		if *m.field(k) != "" {
			return false
		}
	}
	return len(m.Extra) == 0
}

// String returns the JSON form used for the meta column, "{}" when empty.
func (m Meta) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
