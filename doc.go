// Package linewire provides a high-throughput client for text line
// protocol ingestion into time-series databases, covering the encoder,
// the streaming and request transports, authentication, and delivery.
//
// The client is split into an encoder and a sender. The encoder
// (pkg/protocol) serializes rows into the line protocol text format with
// full escaping, name validation, and a state machine that rejects
// malformed call sequences before any bytes are written. The sender
// (pkg/sender) owns a single connection over one of four transports and
// delivers encoder payloads with retry and backoff on the request path.
//
// # Quick Start
//
// Build a sender over HTTP and deliver a row:
//
//	import (
//	    "context"
//	    "time"
//
//	    "github.com/ajitpratap0/linewire/pkg/config"
//	    "github.com/ajitpratap0/linewire/pkg/sender"
//	)
//
//	cfg := config.NewSenderConfig(config.ProtocolHTTP, "localhost:9000")
//	s, err := sender.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close(context.Background())
//
//	s.Table("sensors")
//	s.Symbol("id", "sensor-1")
//	s.Float64Column("temp", 23.5)
//	s.At(context.Background(), time.Now())
//	err = s.Flush(context.Background())
//
// # Transports
//
// Four transports share one configuration surface:
//
//	tcp    - fire-and-forget streaming over a plain socket
//	tcps   - streaming over TLS
//	http   - request/response with retry, backoff, and rich errors
//	https  - request/response over TLS
//
// Streaming senders authenticate once per connection with an ECDSA
// challenge-response handshake and close permanently on the first I/O
// error. Request senders attach token or basic credentials per request
// and retry transient failures inside a configurable time budget.
//
// # Key Packages
//
//	pkg/protocol  - line protocol encoder and row state machine
//	pkg/sender    - sender lifecycle, auto-flush, retry loop
//	pkg/transport - TCP, TLS, and HTTP transports
//	pkg/auth      - ECDSA challenge-response and header credentials
//	pkg/config    - unified sender configuration with YAML loading
//	pkg/errors    - typed error kinds with retryability
//	pkg/metrics   - Prometheus flush instrumentation
package linewire
