package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestNew_SelectsImplementation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.IsType(t, &LogMailer{}, New("", logger))
	assert.IsType(t, &LogMailer{}, New("   ", logger))
	assert.IsType(t, &ResendMailer{}, New("re_test_key", logger))
}

func TestLogMailer_Send(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewLogMailer(testLogger(buf))

	id, err := m.Send(context.Background(), Message{
		From:    "billing@example.com",
		To:      []string{"client@example.com"},
		Subject: "Payment Receipt - INV-12345678",
		HTML:    "<p>thanks</p>",
	})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Contains(t, buf.String(), "Payment Receipt - INV-12345678")
	assert.Contains(t, buf.String(), "client@example.com")
}

func TestLogMailer_NoRecipients(t *testing.T) {
	m := NewLogMailer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := m.Send(context.Background(), Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResendMailer_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	m := NewResendMailer("re_test_key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	m.client.BaseURL = base

	id, err := m.Send(context.Background(), Message{
		From:    "billing@example.com",
		To:      []string{"client@example.com"},
		Subject: "Payment Receipt",
		HTML:    "<p>receipt</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, "Payment Receipt", got["subject"])
	assert.Equal(t, "<p>receipt</p>", got["html"])
}

func TestResendMailer_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"statusCode":500,"name":"internal_server_error","message":"boom"}`))
	}))
	defer srv.Close()

	m := NewResendMailer("re_test_key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	m.client.BaseURL = base

	_, err = m.Send(context.Background(), Message{From: "a@b.c", To: []string{"d@e.f"}, Subject: "s"})
	assert.ErrorContains(t, err, "resend send")
}
