package sink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelaySink(t *testing.T, h http.HandlerFunc) *RelaySink {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := NewRelaySink(RelayConfig{WebhookURL: srv.URL + "/exec"}, srv.Client())
	require.NoError(t, err)
	return s
}

func TestRelaySink_Deliver_PostsReducedForm(t *testing.T) {
	var form map[string]string
	var contentType string

	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		assert.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	sub := testSubmission()
	sub.Phone = "+1 5551234"
	require.NoError(t, s.Deliver(context.Background(), sub))

	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, map[string]string{
		"name":    "Jane Doe",
		"email":   "jane@x.com",
		"phone":   "+1 5551234",
		"message": "Hello",
	}, form)
}

func TestRelaySink_Deliver_StatusSuccess(t *testing.T) {
	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","row":12}`))
	})
	require.NoError(t, s.Deliver(context.Background(), testSubmission()))
}

func TestRelaySink_Deliver_WebhookReportsFailure(t *testing.T) {
	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"sheet is locked"}`))
	})
	err := s.Deliver(context.Background(), testSubmission())
	require.Error(t, err)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "relay", de.Sink)
	assert.Contains(t, err.Error(), "sheet is locked")
}

func TestRelaySink_Deliver_HTTPError(t *testing.T) {
	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := s.Deliver(context.Background(), testSubmission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestRelaySink_Deliver_NonJSONReply(t *testing.T) {
	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>Sign in</html>`))
	})
	err := s.Deliver(context.Background(), testSubmission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
}

func TestRelaySink_Deliver_NoVerdict(t *testing.T) {
	s := newTestRelaySink(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	require.Error(t, s.Deliver(context.Background(), testSubmission()))
}

func TestNewRelaySink_Configuration(t *testing.T) {
	_, err := NewRelaySink(RelayConfig{}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewRelaySink(RelayConfig{WebhookURL: "ftp://example.com/hook"}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	s, err := NewRelaySink(RelayConfig{WebhookURL: "https://script.google.com/macros/s/abc/exec"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.httpClient)
	assert.NoError(t, s.Ping(context.Background()))
}
