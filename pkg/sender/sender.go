// Package sender orchestrates the encoder, authenticator, and transport
// into a single-connection client for the line-oriented ingestion protocol.
//
// A Sender owns exactly one outbound connection and one in-flight flush at a
// time. It is not safe for concurrent mutation; concurrent flushes on the
// same Sender are detected and rejected rather than interleaved. The
// lifecycle is:
//
//	Disconnected → Connecting → Authenticating → Ready → Flushing → Ready | Closed
//
// Streaming senders close permanently on the first transport I/O error:
// with fire-and-forget delivery there is no way to know what subset of the
// stream arrived, so the caller must construct a new Sender. The request
// transport instead retries transient failures with exponential backoff
// inside a total time budget.
//
//	cfg := config.NewSenderConfig(config.ProtocolHTTP, "localhost:9000")
//	s, err := sender.New(cfg)
//	...
//	s.Table("sensors")
//	s.Symbol("id", "sensor-1")
//	s.Float64Column("temp", 23.5)
//	s.At(ctx, time.Now())     // may auto-flush
//	err = s.Flush(ctx)        // deliver the rest
package sender

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/ajitpratap0/linewire/pkg/logger"
	"github.com/ajitpratap0/linewire/pkg/metrics"
	"github.com/ajitpratap0/linewire/pkg/protocol"
	"github.com/ajitpratap0/linewire/pkg/transport"
	"go.uber.org/zap"
)

// State is the sender lifecycle state.
type State int32

const (
	// StateDisconnected is the initial state before any connection attempt.
	StateDisconnected State = iota
	// StateConnecting covers dialing and the TLS handshake.
	StateConnecting
	// StateAuthenticating covers the streaming challenge-response exchange.
	StateAuthenticating
	// StateReady means the sender can accept a flush.
	StateReady
	// StateFlushing means a flush is in progress.
	StateFlushing
	// StateClosed is terminal; every further operation fails.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sender is a single-connection client. It owns its Transport and
// credentials for its lifetime; the Buffer passed to Flush is only
// borrowed, while the internal buffer behind the row API is owned.
type Sender struct {
	cfg    *config.SenderConfig
	tr     transport.Transport
	logger *zap.Logger

	buf         *protocol.Buffer // backs the convenience row API
	lastFlush   time.Time        // drives the interval auto-flush threshold
	state       atomic.Int32
	flushActive atomic.Bool
}

// New constructs a Sender from a validated configuration. Credentials are
// parsed here, so malformed key material fails at construction instead of
// on the first flush. With EagerConnect the connection and auth round-trip
// also happen here.
func New(cfg *config.SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sender configuration")
	}
	cfg = cfg.Clone()

	tr, err := transport.New(cfg)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		cfg: cfg,
		tr:  tr,
		logger: logger.Get().With(
			zap.String("component", "sender"),
			zap.String("protocol", string(cfg.Connection.Protocol)),
			zap.String("address", cfg.Connection.Address),
		),
		buf:       protocol.NewBufferWithOptions(encoderOptions(cfg)),
		lastFlush: time.Now(),
	}

	if cfg.Connection.EagerConnect {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Connect)
		defer cancel()
		if err := s.ensureConnected(ctx); err != nil {
			_ = tr.Close()
			return nil, err
		}
	}

	return s, nil
}

func encoderOptions(cfg *config.SenderConfig) protocol.Options {
	unit := protocol.Nanoseconds
	switch cfg.Encoder.TimestampUnit {
	case config.UnitMicros:
		unit = protocol.Microseconds
	case config.UnitMillis:
		unit = protocol.Milliseconds
	}
	return protocol.Options{
		InitBufferSize: cfg.Encoder.InitBufferSize,
		MaxNameLen:     cfg.Encoder.MaxNameLen,
		TimestampUnit:  unit,
	}
}

// State returns the current lifecycle state.
func (s *Sender) State() State {
	return State(s.state.Load())
}

// Buffer returns the sender-owned buffer behind the row API. Callers may
// inspect it, e.g. together with RetainPayload, but must not mutate it
// while a flush is in flight.
func (s *Sender) Buffer() *protocol.Buffer {
	return s.buf
}

// ensureConnected drives Disconnected → Connecting → Authenticating →
// Ready. A connect or auth failure tears the attempt down and returns to
// Disconnected: no session was established, so unlike a post-Ready error
// there is no ambiguity about delivered data and a later flush may try
// again.
func (s *Sender) ensureConnected(ctx context.Context) error {
	switch s.State() {
	case StateClosed:
		return errors.New(errors.ErrorTypeConnectionClosed,
			"sender is closed; construct a new sender to reconnect")
	case StateReady, StateFlushing:
		return nil
	}

	s.state.Store(int32(StateConnecting))
	if err := s.tr.Connect(ctx); err != nil {
		s.state.Store(int32(StateDisconnected))
		return err
	}

	s.state.Store(int32(StateAuthenticating))
	if err := s.tr.Authenticate(ctx); err != nil {
		s.state.Store(int32(StateDisconnected))
		return err
	}

	s.state.Store(int32(StateReady))
	return nil
}

// Flush delivers the complete rows buffered by the row API. See FlushBuffer
// for the delivery contract.
func (s *Sender) Flush(ctx context.Context) error {
	return s.FlushBuffer(ctx, s.buf)
}

// FlushBuffer delivers the complete rows in a caller-owned buffer.
//
// A buffer with no complete rows is a successful no-op. A buffer with an
// open row is an API misuse: close the row with At or AtNow (or CancelRow)
// first. On success the buffer is cleared unless RetainPayload is set.
//
// Streaming transports send exactly once: success means the payload was
// accepted by the OS socket layer, the only acknowledgment the wire
// protocol offers. Any I/O error closes the sender permanently. The
// request transport retries retryable failures under the configured
// backoff budget; retries may duplicate ingestion on a server that does
// not deduplicate.
func (s *Sender) FlushBuffer(ctx context.Context, buf *protocol.Buffer) error {
	if !s.flushActive.CompareAndSwap(false, true) {
		return errors.New(errors.ErrorTypeConcurrentUse,
			"another flush is in flight on this sender")
	}
	defer s.flushActive.Store(false)

	if s.State() == StateClosed {
		return errors.New(errors.ErrorTypeConnectionClosed,
			"sender is closed; construct a new sender to reconnect")
	}
	if buf.InProgress() {
		return errors.New(errors.ErrorTypeState,
			"cannot flush with an open row; close it with `at` first")
	}
	if buf.RowCount() == 0 {
		return nil
	}

	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	s.state.Store(int32(StateFlushing))
	timer := metrics.NewFlushTimer(string(s.cfg.Connection.Protocol))
	rows, length := buf.RowCount(), buf.Len()

	var err error
	if s.cfg.Connection.Protocol.IsStreaming() {
		err = s.tr.Send(ctx, buf.Bytes())
	} else {
		err = s.sendWithRetry(ctx, buf.Bytes())
	}
	elapsed := timer.Observe()

	if err != nil {
		metrics.RecordFlushFailure(string(errors.TypeOf(err)))
		if s.cfg.Connection.Protocol.IsStreaming() {
			// The fire-and-forget stream is now in an unknown position;
			// no reconnect can tell us what the server received.
			s.state.Store(int32(StateClosed))
			_ = s.tr.Close()
			s.logger.Error("streaming flush failed, sender closed", zap.Error(err))
			return err
		}
		s.state.Store(int32(StateReady))
		s.logger.Error("flush failed", zap.Error(err))
		return err
	}

	if !s.cfg.Encoder.RetainPayload {
		buf.Clear()
	}
	s.lastFlush = time.Now()
	s.state.Store(int32(StateReady))

	metrics.RecordFlushSuccess(string(s.cfg.Connection.Protocol), rows, length)
	s.logger.Debug("flush complete",
		zap.Int("rows", rows),
		zap.Int("bytes", length),
		zap.Duration("elapsed", elapsed))
	return nil
}

// Close flushes any complete rows left in the owned buffer, then releases
// the transport. The flush error, if any, is returned after the transport
// is closed. Close is idempotent.
func (s *Sender) Close(ctx context.Context) error {
	if s.State() == StateClosed {
		return nil
	}

	var flushErr error
	if s.buf.RowCount() > 0 && !s.buf.InProgress() {
		flushErr = s.FlushBuffer(ctx, s.buf)
	}

	s.state.Store(int32(StateClosed))
	if err := s.tr.Close(); err != nil && flushErr == nil {
		flushErr = errors.Wrap(err, errors.ErrorTypeConnection, "failed to close transport")
	}
	s.logger.Debug("sender closed")
	return flushErr
}

// Table begins a new row in the sender-owned buffer.
func (s *Sender) Table(name string) error {
	return s.buf.Table(name)
}

// Symbol appends a tag column to the open row.
func (s *Sender) Symbol(name, value string) error {
	return s.buf.Symbol(name, value)
}

// StringColumn appends a string field to the open row.
func (s *Sender) StringColumn(name, value string) error {
	return s.buf.StringColumn(name, value)
}

// Int64Column appends an integer field to the open row.
func (s *Sender) Int64Column(name string, value int64) error {
	return s.buf.Int64Column(name, value)
}

// Float64Column appends a float field to the open row.
func (s *Sender) Float64Column(name string, value float64) error {
	return s.buf.Float64Column(name, value)
}

// BoolColumn appends a boolean field to the open row.
func (s *Sender) BoolColumn(name string, value bool) error {
	return s.buf.BoolColumn(name, value)
}

// TimestampColumn appends a timestamp field to the open row.
func (s *Sender) TimestampColumn(name string, value time.Time) error {
	return s.buf.TimestampColumn(name, value)
}

// Float64ArrayColumn appends a float64 tensor field to the open row.
func (s *Sender) Float64ArrayColumn(name string, shape []int, values []float64) error {
	return s.buf.Float64ArrayColumn(name, shape, values)
}

// At closes the open row with an explicit timestamp, then applies the
// auto-flush thresholds. The context bounds the flush if one triggers.
func (s *Sender) At(ctx context.Context, value time.Time) error {
	if err := s.buf.At(value); err != nil {
		return err
	}
	return s.maybeAutoFlush(ctx)
}

// AtNanos closes the open row with an explicit epoch-nanosecond timestamp,
// then applies the auto-flush thresholds.
func (s *Sender) AtNanos(ctx context.Context, epochNanos int64) error {
	if err := s.buf.AtNanos(epochNanos); err != nil {
		return err
	}
	return s.maybeAutoFlush(ctx)
}

// AtNow closes the open row with a server-assigned timestamp, then applies
// the auto-flush thresholds.
func (s *Sender) AtNow(ctx context.Context) error {
	if err := s.buf.AtNow(); err != nil {
		return err
	}
	return s.maybeAutoFlush(ctx)
}

// maybeAutoFlush flushes the owned buffer when a configured threshold is
// crossed. The check is advisory and runs only on row close; no background
// timer is involved.
func (s *Sender) maybeAutoFlush(ctx context.Context) error {
	af := s.cfg.AutoFlush
	if !af.Enabled {
		return nil
	}

	threshold := ""
	switch {
	case af.MaxRows > 0 && s.buf.RowCount() >= af.MaxRows:
		threshold = "rows"
	case af.MaxBytes > 0 && s.buf.Len() >= af.MaxBytes:
		threshold = "bytes"
	case af.Interval > 0 && time.Since(s.lastFlush) >= af.Interval:
		threshold = "interval"
	default:
		return nil
	}

	metrics.AutoFlushes.WithLabelValues(threshold).Inc()
	s.logger.Debug("auto-flush triggered",
		zap.String("threshold", threshold),
		zap.Int("rows", s.buf.RowCount()),
		zap.Int("bytes", s.buf.Len()))
	return s.Flush(ctx)
}
