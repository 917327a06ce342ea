package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/munimike/contact-api/internal/model"
)

// errBodyTooLarge marks a body that exceeded MaxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

// payload gives uniform access to JSON and form bodies.
type payload interface {
	get(key string) string
	meta() (model.Meta, error)
	filled(key string) bool
}

// decodeInput reads the request body into model.Input. It also reports
// whether the honeypot field was filled in.
func decodeInput(w http.ResponseWriter, r *http.Request, maxBytes int64, honeypotField string) (model.Input, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	p, err := readPayload(r, maxBytes)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return model.Input{}, false, errBodyTooLarge
		}
		return model.Input{}, false, err
	}

	meta, err := p.meta()
	if err != nil {
		return model.Input{}, false, err
	}

	in := model.Input{
		FullName:    p.get("full_name"),
		Name:        p.get("name"),
		Email:       p.get("email"),
		Phone:       p.get("phone"),
		CountryCode: p.get("country_code"),
		Message:     p.get("message"),
		Page:        p.get("page"),
		Referrer:    p.get("referrer"),
		Meta:        meta,
	}
	return in, p.filled(honeypotField), nil
}

func readPayload(r *http.Request, maxBytes int64) (payload, error) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("content type: %w", err)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return formPayload(r.PostForm), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, err
		}
		return formPayload(r.PostForm), nil
	}

	// JSON is the default; browsers using sendBeacon or no-cors fetch often
	// send it as text/plain.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return jsonPayload{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("json body: %w", err)
	}
	return jsonPayload(fields), nil
}

type jsonPayload map[string]json.RawMessage

// get returns a string field. Numbers and booleans are kept in their JSON
// text form so a numeric phone survives; null and absent mean "".
func (p jsonPayload) get(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	t := strings.TrimSpace(string(raw))
	if t == "null" || strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
		return ""
	}
	return t
}

// filled reports a trap field a bot typed into: a non-blank string or true.
// Serialized defaults of an untouched input (false, 0, null) do not count.
func (p jsonPayload) filled(key string) bool {
	raw, ok := p[key]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s) != ""
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

func (p jsonPayload) meta() (model.Meta, error) {
	var m model.Meta
	raw, ok := p["meta"]
	if !ok {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	return m, nil
}

type formPayload map[string][]string

func (p formPayload) get(key string) string {
	if v := p[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (p formPayload) filled(key string) bool {
	return strings.TrimSpace(p.get(key)) != ""
}

// meta accepts either a JSON object in the "meta" field or bracketed keys
// such as meta[page].
func (p formPayload) meta() (model.Meta, error) {
	var m model.Meta
	if s := strings.TrimSpace(p.get("meta")); s != "" {
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return m, err
		}
		return m, nil
	}

	obj := map[string]string{}
	for k, v := range p {
		if strings.HasPrefix(k, "meta[") && strings.HasSuffix(k, "]") && len(v) > 0 {
			obj[k[len("meta["):len(k)-1]] = v[0]
		}
	}
	if len(obj) == 0 {
		return m, nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
