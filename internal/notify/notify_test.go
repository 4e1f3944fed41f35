package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifierPayload(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL)
	require.NoError(t, n.Notify(context.Background(), SeverityError, "5 consecutive scrape failures"))

	require.Len(t, got.Attachments, 1)
	att := got.Attachments[0]
	assert.Equal(t, "#ff0000", att.Color)
	assert.Equal(t, "5 consecutive scrape failures", att.Text)
	assert.NotZero(t, att.Timestamp)
}

func TestSlackNotifierSeverityColors(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL)

	require.NoError(t, n.Notify(context.Background(), SeverityInfo, "saved 40 jobs"))
	assert.Equal(t, "#36a64f", got.Attachments[0].Color)

	require.NoError(t, n.Notify(context.Background(), SeverityWarning, "degraded"))
	assert.Equal(t, "#ff9500", got.Attachments[0].Color)

	// Unknown severities fall back to the info color.
	require.NoError(t, n.Notify(context.Background(), Severity("debug"), "x"))
	assert.Equal(t, "#36a64f", got.Attachments[0].Color)
}

func TestSlackNotifierErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(context.Background(), SeverityInfo, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.NoError(t, n.Notify(context.Background(), SeverityError, "x"))
	assert.NoError(t, n.Notify(context.Background(), SeverityInfo, "y"))
}
