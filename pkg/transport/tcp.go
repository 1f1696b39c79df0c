package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/ajitpratap0/linewire/pkg/auth"
	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	"go.uber.org/zap"
)

// tcpTransport is the streaming transport: one persistent connection,
// fire-and-forget writes, no per-payload acknowledgment. The only inbound
// traffic in the protocol is the auth challenge right after connect.
type tcpTransport struct {
	cfg    *config.SenderConfig
	signer *auth.ChallengeSigner
	logger *zap.Logger
	conn   net.Conn
}

func newTCPTransport(cfg *config.SenderConfig, signer *auth.ChallengeSigner, log *zap.Logger) *tcpTransport {
	return &tcpTransport{
		cfg:    cfg,
		signer: signer,
		logger: log,
	}
}

// Connect dials the endpoint and performs the TLS handshake when
// configured. On any failure the connection is torn down, never left
// half-open.
func (t *tcpTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}

	dialCtx := ctx
	if t.cfg.Timeouts.Connect > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.Timeouts.Connect)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", t.cfg.Connection.Address)
	if err != nil {
		return mapNetErr(err, "could not connect to "+t.cfg.Connection.Address)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, errors.ErrorTypeConnection, "could not set TCP_NODELAY")
		}
	}

	if t.cfg.Connection.Protocol.IsTLS() {
		host, _, err := net.SplitHostPort(t.cfg.Connection.Address)
		if err != nil {
			host = t.cfg.Connection.Address
		}
		tlsCfg, err := tlsClientConfig(t.cfg, host)
		if err != nil {
			_ = conn.Close()
			return err
		}
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			_ = conn.Close()
			return mapNetErr(err, "TLS handshake failed")
		}
		conn = tlsConn
	}

	t.conn = conn
	t.logger.Debug("streaming connection established")
	return nil
}

// Authenticate runs the challenge-response exchange before any data is
// sent. The round-trip is bounded by the connect timeout so a silent server
// cannot hang the caller; on any failure the connection is closed, never
// left half-open.
func (t *tcpTransport) Authenticate(ctx context.Context) error {
	if t.signer == nil {
		return nil
	}
	if t.conn == nil {
		return errors.New(errors.ErrorTypeConnection, "not connected")
	}

	deadline, ok := ctx.Deadline()
	if !ok && t.cfg.Timeouts.Connect > 0 {
		deadline = time.Now().Add(t.cfg.Timeouts.Connect)
	}
	if !deadline.IsZero() {
		if err := t.conn.SetDeadline(deadline); err != nil {
			t.teardown()
			return errors.Wrap(err, errors.ErrorTypeConnection, "could not set auth deadline")
		}
		defer func() {
			if t.conn != nil {
				_ = t.conn.SetDeadline(time.Time{})
			}
		}()
	}

	if err := t.signer.Authenticate(t.conn); err != nil {
		t.teardown()
		return err
	}
	t.logger.Debug("challenge-response auth complete",
		zap.String("key_id", t.signer.KeyID()))
	return nil
}

// Send writes the whole payload. Success means accepted by the OS socket
// layer; the wire protocol has no server acknowledgment. Any write error is
// fatal for the connection: the caller cannot know how much of the
// fire-and-forget stream arrived, so the transport closes rather than
// resume mid-payload.
func (t *tcpTransport) Send(ctx context.Context, payload []byte) error {
	if t.conn == nil {
		return errors.New(errors.ErrorTypeConnection, "not connected")
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if t.cfg.Timeouts.Request > 0 {
		deadline = time.Now().Add(t.cfg.Timeouts.Request)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		t.teardown()
		return errors.Wrap(err, errors.ErrorTypeConnection, "could not set write deadline")
	}

	if _, err := t.conn.Write(payload); err != nil {
		t.teardown()
		return mapNetErr(err, "could not flush buffered rows")
	}
	return nil
}

func (t *tcpTransport) teardown() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Close closes the streaming connection.
func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// mapNetErr classifies a socket error as a timeout or a connection failure.
func mapNetErr(err error, msg string) *errors.Error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.Wrap(err, errors.ErrorTypeTimeout, msg)
	}
	if err == context.DeadlineExceeded {
		return errors.Wrap(err, errors.ErrorTypeTimeout, msg)
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, msg)
}
