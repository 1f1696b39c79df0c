package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpConfig(t *testing.T, serverURL string) *config.SenderConfig {
	t.Helper()
	cfg := config.NewSenderConfig(config.ProtocolHTTP, strings.TrimPrefix(serverURL, "http://"))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestHTTPSendSuccess(t *testing.T) {
	var gotMethod, gotPath, gotContentType, gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := httpConfig(t, srv.URL)
	cfg.Auth.Method = config.AuthToken
	cfg.Auth.Token = "tok123"

	tr, err := New(cfg)
	require.NoError(t, err)
	defer tr.Close() //nolint:errcheck

	payload := []byte("m v=1i\n")
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Authenticate(context.Background()))
	require.NoError(t, tr.Send(context.Background(), payload))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/write", gotPath)
	assert.Equal(t, "text/plain; charset=utf-8", gotContentType)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, payload, gotBody)
}

func TestHTTPSendBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := httpConfig(t, srv.URL)
	cfg.Auth.Method = config.AuthBasic
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	tr, err := New(cfg)
	require.NoError(t, err)
	defer tr.Close() //nolint:errcheck

	require.NoError(t, tr.Send(context.Background(), []byte("m v=1i\n")))
	assert.Equal(t, "user", gotUser)
	assert.Equal(t, "pass", gotPass)
}

func TestHTTPSendGzip(t *testing.T) {
	var gotEncoding string
	var decompressed []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		decompressed, _ = io.ReadAll(zr)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := httpConfig(t, srv.URL)
	cfg.Encoder.Compression = true

	tr, err := New(cfg)
	require.NoError(t, err)
	defer tr.Close() //nolint:errcheck

	payload := []byte("m v=1i\nm v=2i\n")

	// Two sends exercise the reused gzip writer.
	require.NoError(t, tr.Send(context.Background(), payload))
	require.NoError(t, tr.Send(context.Background(), payload))

	assert.Equal(t, "gzip", gotEncoding)
	assert.Equal(t, payload, decompressed)
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  errors.ErrorType
		retryable bool
	}{
		{"too many requests", http.StatusTooManyRequests, errors.ErrorTypeServerBusy, true},
		{"service unavailable", http.StatusServiceUnavailable, errors.ErrorTypeServerBusy, true},
		{"internal error", http.StatusInternalServerError, errors.ErrorTypeServerBusy, true},
		{"bad request", http.StatusBadRequest, errors.ErrorTypeServerRejected, false},
		{"unauthorized", http.StatusUnauthorized, errors.ErrorTypeServerRejected, false},
		{"payload too large", http.StatusRequestEntityTooLarge, errors.ErrorTypeServerRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr, err := New(httpConfig(t, srv.URL))
			require.NoError(t, err)
			defer tr.Close() //nolint:errcheck

			err = tr.Send(context.Background(), []byte("m v=1i\n"))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantKind), "got %v", err)
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestHTTPRejectionCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"failed to parse line protocol","line":2,"errorId":"abc-123"}`))
	}))
	defer srv.Close()

	tr, err := New(httpConfig(t, srv.URL))
	require.NoError(t, err)
	defer tr.Close() //nolint:errcheck

	err = tr.Send(context.Background(), []byte("garbage\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse line protocol")

	var structured *errors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, "failed to parse line protocol", structured.Details["server_message"])
	assert.Equal(t, 2, structured.Details["line"])
	assert.Equal(t, "abc-123", structured.Details["error_id"])
}

func TestHTTPConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr, err := New(httpConfig(t, addr))
	require.NoError(t, err)
	defer tr.Close() //nolint:errcheck

	err = tr.Send(context.Background(), []byte("m v=1i\n"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection), "got %v", err)
	assert.True(t, errors.IsRetryable(err))
}
