package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipflow/pipeline/internal/retry"
)

func writeTestAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestNewClient_KeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	client, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", client.apiKey)
}

func TestHTTPClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"language": "en",
			"duration": 12.5,
			"text": "hello world",
			"segments": [{"start": 0, "end": 2.5, "text": "hello world"}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	got, err := client.Transcribe(context.Background(), writeTestAudio(t, 1024), "en")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, 12.5, got.Duration)
	assert.Equal(t, "hello world", got.Text)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, 2.5, got.Segments[0].End)
}

func TestHTTPClient_TranscribeFileTooLarge(t *testing.T) {
	client, err := NewClient("test-key")
	require.NoError(t, err)

	_, err = client.Transcribe(context.Background(), writeTestAudio(t, MaxUploadBytes+1), "")
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.False(t, retry.IsRetryable(err), "oversized upload must not be retried")
}

func TestHTTPClient_TranscribeStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, ErrServerError, true},
		{"bad gateway", http.StatusBadGateway, ErrServerError, true},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, ErrRequestFailed, false},
		{"unauthorized", http.StatusUnauthorized, ErrRequestFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, err := NewClient("test-key", WithBaseURL(server.URL))
			require.NoError(t, err)

			_, err = client.Transcribe(context.Background(), writeTestAudio(t, 64), "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
		})
	}
}

func TestHTTPClient_TranscribeNetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := NewClient("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Transcribe(context.Background(), writeTestAudio(t, 64), "")
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err), "network errors must be retryable")
}

func TestDisabled_Transcribe(t *testing.T) {
	_, err := Disabled{}.Transcribe(context.Background(), "audio.wav", "")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}
