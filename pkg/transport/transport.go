// Package transport abstracts payload delivery over the three supported
// transports: plain TCP streaming, TLS streaming, and HTTP(S) request/
// response. A Transport moves opaque byte payloads; framing, ordering, and
// retry policy belong to the sender.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/ajitpratap0/linewire/pkg/auth"
	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/ajitpratap0/linewire/pkg/logger"
	"go.uber.org/zap"
)

// Transport delivers opaque payloads to the configured endpoint.
//
// Connect establishes the connection (including the TLS handshake);
// Authenticate runs the challenge-response round-trip on streaming
// transports and is a no-op elsewhere. Send delivers one payload; on the
// streaming transports a nil return means the bytes were accepted by the OS
// socket layer, not that the server persisted them. Errors carry typed
// kinds so the sender can tell retryable failures from terminal ones.
type Transport interface {
	Connect(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// New builds the transport variant selected by the configuration, including
// its credentials. The configuration must already be validated.
func New(cfg *config.SenderConfig) (Transport, error) {
	log := logger.Get().With(
		zap.String("component", "transport"),
		zap.String("protocol", string(cfg.Connection.Protocol)),
		zap.String("address", cfg.Connection.Address),
	)

	if cfg.Connection.Protocol.IsStreaming() {
		var signer *auth.ChallengeSigner
		if cfg.Auth.Method == config.AuthKey {
			var err error
			signer, err = auth.NewChallengeSigner(
				cfg.Auth.KeyID, cfg.Auth.PrivateKey, cfg.Auth.MaxChallengeBytes)
			if err != nil {
				return nil, err
			}
		}
		return newTCPTransport(cfg, signer, log), nil
	}

	var authHeader string
	switch cfg.Auth.Method {
	case config.AuthToken:
		authHeader = auth.BearerToken(cfg.Auth.Token)
	case config.AuthBasic:
		authHeader = auth.BasicCredential(cfg.Auth.Username, cfg.Auth.Password)
	}
	return newHTTPTransport(cfg, authHeader, log)
}

// tlsClientConfig maps the configured verification mode onto a tls.Config.
// Skipping verification requires the explicitly named insecure mode.
func tlsClientConfig(cfg *config.SenderConfig, serverName string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	switch cfg.TLS.VerifyMode {
	case config.TLSVerifyFull:
	case config.TLSVerifyCustomCA:
		pem, err := os.ReadFile(cfg.TLS.CAPath) //nolint:gosec // G304: path comes from validated config
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Newf(errors.ErrorTypeConnection,
				"no certificates found in CA bundle %q", cfg.TLS.CAPath)
		}
		tlsCfg.RootCAs = pool
	case config.TLSVerifyInsecureSkip:
		tlsCfg.InsecureSkipVerify = true
	default:
		return nil, errors.Newf(errors.ErrorTypeConnection,
			"unknown tls verify mode %q", cfg.TLS.VerifyMode)
	}

	return tlsCfg, nil
}
