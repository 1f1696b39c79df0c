package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Response bodies are read for error reporting only; cap them so a
// misbehaving server cannot balloon memory.
const maxErrorBodyBytes = 64 * 1024

// httpTransport is the request/response transport: each Send is one POST of
// the full payload, and the response status drives the caller's retry
// decision. The underlying http.Transport keeps connections alive across
// flushes.
type httpTransport struct {
	cfg        *config.SenderConfig
	authHeader string
	endpoint   string
	logger     *zap.Logger
	client     *http.Client

	// gzip writer reused across sends when compression is on
	gzipBuf    bytes.Buffer
	gzipWriter *gzip.Writer
}

func newHTTPTransport(cfg *config.SenderConfig, authHeader string, log *zap.Logger) (*httpTransport, error) {
	scheme := "http"
	if cfg.Connection.Protocol.IsTLS() {
		scheme = "https"
	}
	endpoint := (&url.URL{
		Scheme: scheme,
		Host:   cfg.Connection.Address,
		Path:   cfg.Connection.RequestPath,
	}).String()

	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeouts.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if cfg.Connection.Protocol.IsTLS() {
		host, _, err := net.SplitHostPort(cfg.Connection.Address)
		if err != nil {
			host = cfg.Connection.Address
		}
		tlsCfg, err := tlsClientConfig(cfg, host)
		if err != nil {
			return nil, err
		}
		tr.TLSClientConfig = tlsCfg
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		log.Warn("failed to configure HTTP/2, continuing with HTTP/1.1", zap.Error(err))
	}

	t := &httpTransport{
		cfg:        cfg,
		authHeader: authHeader,
		endpoint:   endpoint,
		logger:     log,
		client: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeouts.Request,
		},
	}
	if cfg.Encoder.Compression {
		t.gzipWriter = gzip.NewWriter(&t.gzipBuf)
	}
	return t, nil
}

// Connect is a no-op: the request transport has no session to establish and
// connections are pooled per request.
func (t *httpTransport) Connect(ctx context.Context) error {
	return nil
}

// Authenticate is a no-op: request credentials are a static header computed
// at construction and attached to every request.
func (t *httpTransport) Authenticate(ctx context.Context) error {
	return nil
}

// serverError is the JSON error body the ingestion endpoint returns on
// rejected payloads.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	ErrorID string `json:"errorId"`
}

// Send POSTs the payload once. Status classification:
// 2xx success, 429 and 5xx retryable (server busy), any other 4xx a
// non-retryable rejection surfaced verbatim with the server's message.
func (t *httpTransport) Send(ctx context.Context, payload []byte) error {
	body, encoding, err := t.encodeBody(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "could not build ingestion request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if t.authHeader != "" {
		req.Header.Set("Authorization", t.authHeader)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return mapHTTPErr(ctx, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.Newf(errors.ErrorTypeServerBusy,
			"server responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	rejection := errors.Newf(errors.ErrorTypeServerRejected,
		"server rejected the payload with status %d: %s",
		resp.StatusCode, strings.TrimSpace(string(raw))).
		WithDetail("status", resp.StatusCode)

	var decoded serverError
	if gojson.Unmarshal(raw, &decoded) == nil && decoded.Message != "" {
		rejection = rejection.
			WithDetail("server_message", decoded.Message).
			WithDetail("error_id", decoded.ErrorID).
			WithDetail("line", decoded.Line)
	}
	return rejection
}

// encodeBody returns the request body reader and Content-Encoding, gzipping
// when compression is enabled.
func (t *httpTransport) encodeBody(payload []byte) (io.Reader, string, error) {
	if t.gzipWriter == nil {
		return bytes.NewReader(payload), "", nil
	}

	t.gzipBuf.Reset()
	t.gzipWriter.Reset(&t.gzipBuf)
	if _, err := t.gzipWriter.Write(payload); err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorTypeEncoding, "failed to compress payload")
	}
	if err := t.gzipWriter.Close(); err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorTypeEncoding, "failed to compress payload")
	}
	return bytes.NewReader(t.gzipBuf.Bytes()), "gzip", nil
}

// Close releases pooled connections.
func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// mapHTTPErr classifies a request error as a timeout or a connection
// failure. Both are retryable on this transport.
func mapHTTPErr(ctx context.Context, err error) *errors.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "ingestion request timed out")
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "ingestion request timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "ingestion request failed")
}
