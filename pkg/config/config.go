// Package config defines the unified configuration for a linewire sender.
// A single SenderConfig structure covers every recognized option, organized
// into logical sections:
//
//   - Connection: protocol, endpoint address, HTTP path, eager connect
//   - TLS: verification mode and trust roots
//   - Auth: none, key-based streaming, bearer token, or basic credentials
//   - AutoFlush: row, byte, and interval thresholds
//   - Retry: backoff parameters for the HTTP transport
//   - Timeouts: connect and request deadlines
//   - Encoder: buffer sizing, name limits, timestamp unit, payload retention
//
// The configuration is immutable once a sender is constructed from it.
//
// Example usage:
//
//	cfg := config.NewSenderConfig(config.ProtocolHTTP, "localhost:9000")
//	cfg.AutoFlush.MaxRows = 75000
//	cfg.Auth.Method = config.AuthToken
//	cfg.Auth.Token = os.Getenv("INGEST_TOKEN")
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Protocol selects the delivery transport.
type Protocol string

const (
	// ProtocolTCP is the plain streaming transport.
	ProtocolTCP Protocol = "tcp"
	// ProtocolTCPS is the streaming transport wrapped in TLS.
	ProtocolTCPS Protocol = "tcps"
	// ProtocolHTTP is the request/response transport.
	ProtocolHTTP Protocol = "http"
	// ProtocolHTTPS is the request/response transport over TLS.
	ProtocolHTTPS Protocol = "https"
)

// IsStreaming reports whether the protocol is fire-and-forget TCP.
func (p Protocol) IsStreaming() bool {
	return p == ProtocolTCP || p == ProtocolTCPS
}

// IsTLS reports whether the protocol encrypts the connection.
func (p Protocol) IsTLS() bool {
	return p == ProtocolTCPS || p == ProtocolHTTPS
}

// TLS verification modes. Disabling verification is an explicit opt-in and
// never a default.
const (
	// TLSVerifyFull validates the server certificate against system roots.
	TLSVerifyFull = "full"
	// TLSVerifyCustomCA validates against a caller-provided CA bundle.
	TLSVerifyCustomCA = "custom_ca"
	// TLSVerifyInsecureSkip disables certificate validation. Testing only.
	TLSVerifyInsecureSkip = "insecure_skip_verify"
)

// Authentication methods.
const (
	// AuthNone disables authentication.
	AuthNone = "none"
	// AuthKey is ECDSA challenge-response on the streaming transport.
	AuthKey = "key"
	// AuthToken attaches a Bearer token on the request transport.
	AuthToken = "token"
	// AuthBasic attaches HTTP Basic credentials on the request transport.
	AuthBasic = "basic"
)

// Timestamp units for the designated row timestamp.
const (
	UnitNanos  = "nanos"
	UnitMicros = "micros"
	UnitMillis = "millis"
)

// SenderConfig is the complete, immutable configuration of one sender.
type SenderConfig struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	TLS        TLSConfig        `yaml:"tls" json:"tls"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	AutoFlush  AutoFlushConfig  `yaml:"auto_flush" json:"auto_flush"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Timeouts   TimeoutConfig    `yaml:"timeouts" json:"timeouts"`
	Encoder    EncoderConfig    `yaml:"encoder" json:"encoder"`
}

// ConnectionConfig identifies the endpoint and transport kind.
type ConnectionConfig struct {
	// Protocol selects tcp, tcps, http, or https delivery
	Protocol Protocol `yaml:"protocol" json:"protocol"`
	// Address is the endpoint host:port
	Address string `yaml:"address" json:"address"`
	// RequestPath is the HTTP ingestion path
	RequestPath string `yaml:"request_path" json:"request_path"`
	// EagerConnect dials at construction instead of on first flush
	EagerConnect bool `yaml:"eager_connect" json:"eager_connect"`
}

// TLSConfig controls certificate validation for tcps and https.
type TLSConfig struct {
	// VerifyMode is full, custom_ca, or insecure_skip_verify
	VerifyMode string `yaml:"verify_mode" json:"verify_mode"`
	// CAPath points at a PEM bundle used with custom_ca
	CAPath string `yaml:"ca_path" json:"ca_path"`
}

// AuthConfig selects and parameterizes the authentication method.
type AuthConfig struct {
	// Method is none, key, token, or basic
	Method string `yaml:"method" json:"method"`
	// KeyID identifies the ECDSA key to the server (key method)
	KeyID string `yaml:"key_id" json:"key_id"`
	// PrivateKey is the base64url-encoded P-256 scalar (key method)
	PrivateKey string `yaml:"private_key" json:"private_key"`
	// Token is the bearer token (token method)
	Token string `yaml:"token" json:"token"`
	// Username and Password carry basic credentials (basic method)
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	// MaxChallengeBytes caps the server challenge line; a hostile endpoint
	// must not be able to grow the read buffer without bound
	MaxChallengeBytes int `yaml:"max_challenge_bytes" json:"max_challenge_bytes"`
}

// AutoFlushConfig sets the advisory thresholds that trigger a flush when a
// row is closed through the sender's own row API. Zero disables a threshold.
type AutoFlushConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	MaxRows  int           `yaml:"max_rows" json:"max_rows"`
	MaxBytes int           `yaml:"max_bytes" json:"max_bytes"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// RetryConfig drives the exponential backoff loop on the request transport.
// The streaming transport never retries.
type RetryConfig struct {
	// InitialDelay is the first backoff step
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	// MaxDelay caps the doubling
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// Budget is the total retry time; zero disables retries
	Budget time.Duration `yaml:"budget" json:"budget"`
}

// TimeoutConfig bounds the blocking operations.
type TimeoutConfig struct {
	// Connect bounds dialing plus the TLS handshake and auth round-trip
	Connect time.Duration `yaml:"connect" json:"connect"`
	// Request bounds a single send attempt
	Request time.Duration `yaml:"request" json:"request"`
}

// EncoderConfig tunes the line-protocol buffer.
type EncoderConfig struct {
	// InitBufferSize is the initial backing capacity in bytes
	InitBufferSize int `yaml:"init_buffer_size" json:"init_buffer_size"`
	// MaxNameLen caps table and column name length in bytes
	MaxNameLen int `yaml:"max_name_len" json:"max_name_len"`
	// TimestampUnit fixes the designated timestamp unit (nanos/micros/millis)
	TimestampUnit string `yaml:"timestamp_unit" json:"timestamp_unit"`
	// RetainPayload keeps the buffer contents after a successful flush so
	// the caller can inspect what was sent
	RetainPayload bool `yaml:"retain_payload" json:"retain_payload"`
	// Compression gzips HTTP request bodies (request transport only)
	Compression bool `yaml:"compression" json:"compression"`
}

// NewSenderConfig returns a SenderConfig with production defaults for the
// given protocol and address. Callers override individual fields as needed.
func NewSenderConfig(protocol Protocol, address string) *SenderConfig {
	return &SenderConfig{
		Connection: ConnectionConfig{
			Protocol:    protocol,
			Address:     address,
			RequestPath: "/write",
		},
		TLS: TLSConfig{
			VerifyMode: TLSVerifyFull,
		},
		Auth: AuthConfig{
			Method:            AuthNone,
			MaxChallengeBytes: 1024,
		},
		AutoFlush: AutoFlushConfig{
			Enabled:  true,
			MaxRows:  75000,
			MaxBytes: 0,
			Interval: time.Second,
		},
		Retry: RetryConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     time.Second,
			Budget:       10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Connect: 15 * time.Second,
			Request: 10 * time.Second,
		},
		Encoder: EncoderConfig{
			InitBufferSize: 64 * 1024,
			MaxNameLen:     127,
			TimestampUnit:  UnitNanos,
		},
	}
}

// Validate checks the configuration for internal consistency. Senders call
// this once at construction so misconfiguration fails early, not mid-flush.
func (c *SenderConfig) Validate() error {
	switch c.Connection.Protocol {
	case ProtocolTCP, ProtocolTCPS, ProtocolHTTP, ProtocolHTTPS:
	default:
		return fmt.Errorf("unknown protocol %q", c.Connection.Protocol)
	}
	if c.Connection.Address == "" {
		return fmt.Errorf("address is required")
	}

	switch c.TLS.VerifyMode {
	case TLSVerifyFull, TLSVerifyInsecureSkip:
	case TLSVerifyCustomCA:
		if c.TLS.CAPath == "" {
			return fmt.Errorf("tls verify_mode %q requires ca_path", TLSVerifyCustomCA)
		}
	default:
		return fmt.Errorf("unknown tls verify_mode %q", c.TLS.VerifyMode)
	}

	switch c.Auth.Method {
	case AuthNone:
	case AuthKey:
		if !c.Connection.Protocol.IsStreaming() {
			return fmt.Errorf("auth method %q requires a streaming protocol", AuthKey)
		}
		if c.Auth.KeyID == "" || c.Auth.PrivateKey == "" {
			return fmt.Errorf("auth method %q requires key_id and private_key", AuthKey)
		}
	case AuthToken:
		if c.Connection.Protocol.IsStreaming() {
			return fmt.Errorf("auth method %q requires the request protocol", AuthToken)
		}
		if c.Auth.Token == "" {
			return fmt.Errorf("auth method %q requires token", AuthToken)
		}
	case AuthBasic:
		if c.Connection.Protocol.IsStreaming() {
			return fmt.Errorf("auth method %q requires the request protocol", AuthBasic)
		}
		if c.Auth.Username == "" {
			return fmt.Errorf("auth method %q requires username", AuthBasic)
		}
	default:
		return fmt.Errorf("unknown auth method %q", c.Auth.Method)
	}
	if c.Auth.MaxChallengeBytes <= 0 {
		return fmt.Errorf("max_challenge_bytes must be positive")
	}

	if c.AutoFlush.Enabled &&
		c.AutoFlush.MaxRows <= 0 && c.AutoFlush.MaxBytes <= 0 && c.AutoFlush.Interval <= 0 {
		return fmt.Errorf("auto_flush enabled but no threshold set")
	}

	if c.Retry.Budget > 0 {
		if c.Retry.InitialDelay <= 0 {
			return fmt.Errorf("retry initial_delay must be positive")
		}
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			return fmt.Errorf("retry max_delay must be >= initial_delay")
		}
	}

	switch c.Encoder.TimestampUnit {
	case UnitNanos, UnitMicros, UnitMillis:
	default:
		return fmt.Errorf("unknown timestamp_unit %q", c.Encoder.TimestampUnit)
	}
	if c.Encoder.InitBufferSize <= 0 {
		return fmt.Errorf("init_buffer_size must be positive")
	}
	if c.Encoder.MaxNameLen <= 0 {
		return fmt.Errorf("max_name_len must be positive")
	}
	if c.Encoder.Compression && c.Connection.Protocol.IsStreaming() {
		return fmt.Errorf("compression is only supported on the request protocol")
	}

	return nil
}

// Clone returns a deep copy so a sender can hold its own immutable snapshot.
func (c *SenderConfig) Clone() *SenderConfig {
	out := *c
	return &out
}
