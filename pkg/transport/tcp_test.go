package transport

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpConfig(t *testing.T, addr string) *config.SenderConfig {
	t.Helper()
	cfg := config.NewSenderConfig(config.ProtocolTCP, addr)
	cfg.Timeouts.Connect = 2 * time.Second
	cfg.Timeouts.Request = 2 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestTCPSendWithoutAuth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	tr, err := New(tcpConfig(t, ln.Addr().String()))
	require.NoError(t, err)

	payload := []byte("m v=1i\nm v=2i\n")
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Authenticate(context.Background()))
	require.NoError(t, tr.Send(context.Background(), payload))
	require.NoError(t, tr.Close())

	select {
	case data := <-received:
		assert.Equal(t, payload, data)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the payload")
	}
}

func TestTCPChallengeResponseAuth(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	raw := make([]byte, 32)
	key.D.FillBytes(raw)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	const challenge = "rAnD0mChAlLeNgE"

	type result struct {
		keyID    string
		verified bool
		payload  []byte
	}
	done := make(chan result, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck
		r := bufio.NewReader(conn)

		keyID, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if _, err := conn.Write([]byte(challenge + "\n")); err != nil {
			return
		}
		sigLine, err := r.ReadString('\n')
		if err != nil {
			return
		}

		der, err := base64.StdEncoding.DecodeString(sigLine[:len(sigLine)-1])
		if err != nil {
			return
		}
		var sig struct {
			R, S *big.Int
		}
		if _, err := asn1.Unmarshal(der, &sig); err != nil {
			return
		}
		digest := sha256.Sum256([]byte(challenge))

		payload, _ := io.ReadAll(r)
		done <- result{
			keyID:    keyID[:len(keyID)-1],
			verified: ecdsa.Verify(&key.PublicKey, digest[:], sig.R, sig.S),
			payload:  payload,
		}
	}()

	cfg := tcpConfig(t, ln.Addr().String())
	cfg.Auth.Method = config.AuthKey
	cfg.Auth.KeyID = "client-1"
	cfg.Auth.PrivateKey = base64.RawURLEncoding.EncodeToString(raw)
	require.NoError(t, cfg.Validate())

	tr, err := New(cfg)
	require.NoError(t, err)

	payload := []byte("m v=1i\n")
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Authenticate(context.Background()))
	require.NoError(t, tr.Send(context.Background(), payload))
	require.NoError(t, tr.Close())

	select {
	case res := <-done:
		assert.Equal(t, "client-1", res.keyID)
		assert.True(t, res.verified, "server must be able to verify the signature")
		assert.Equal(t, payload, res.payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never completed")
	}
}

func TestTCPConnectRefused(t *testing.T) {
	// Grab a port and close it again so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tr, err := New(tcpConfig(t, addr))
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection), "got %v", err)
}

func TestTCPAuthFailureClosesConnection(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	raw := make([]byte, 32)
	key.D.FillBytes(raw)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hang up before sending a challenge.
		_ = conn.Close()
	}()

	cfg := tcpConfig(t, ln.Addr().String())
	cfg.Auth.Method = config.AuthKey
	cfg.Auth.KeyID = "client-1"
	cfg.Auth.PrivateKey = base64.RawURLEncoding.EncodeToString(raw)

	tr, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, tr.Connect(context.Background()))
	err = tr.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuth), "got %v", err)

	// The transport must not be left half-open.
	err = tr.Send(context.Background(), []byte("m v=1i\n"))
	require.Error(t, err)
}

func TestTCPSendAfterServerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr, err := New(tcpConfig(t, ln.Addr().String()))
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	conn := <-accepted
	require.NoError(t, conn.Close())

	// The first write may be buffered by the kernel before the RST lands;
	// keep writing until the failure surfaces.
	var sendErr error
	payload := []byte("m v=1i\n")
	for i := 0; i < 50 && sendErr == nil; i++ {
		sendErr = tr.Send(context.Background(), payload)
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, sendErr)
	assert.True(t, errors.IsRetryable(sendErr) ||
		errors.IsType(sendErr, errors.ErrorTypeConnection), "got %v", sendErr)
}
