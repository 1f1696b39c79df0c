// Package auth produces the transport-specific credentials for a sender:
// an ECDSA challenge-response signature for streaming connections, and a
// static Authorization header value for request connections.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"io"
	"math/big"

	"github.com/ajitpratap0/linewire/pkg/errors"
)

// ChallengeSigner proves possession of an ECDSA P-256 key over a streaming
// connection. The server sends a newline-terminated random challenge right
// after connect; the signer returns base64(signature) on the same
// connection before any data rows.
//
// Key material is validated at construction, so signing itself cannot fail
// on malformed keys.
type ChallengeSigner struct {
	keyID        string
	key          *ecdsa.PrivateKey
	maxChallenge int
}

// NewChallengeSigner parses a base64url-encoded raw P-256 private scalar and
// returns a signer for it. maxChallenge caps the server challenge size in
// bytes; zero selects 1024.
func NewChallengeSigner(keyID, privateKey string, maxChallenge int) (*ChallengeSigner, error) {
	if keyID == "" {
		return nil, errors.New(errors.ErrorTypeAuth, "auth key id must not be empty")
	}
	if maxChallenge <= 0 {
		maxChallenge = 1024
	}

	raw, err := base64.RawURLEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuth, "private key is not valid base64url")
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() <= 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New(errors.ErrorTypeAuth, "private key scalar is out of range for P-256")
	}

	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(d.Bytes())

	return &ChallengeSigner{
		keyID:        keyID,
		key:          key,
		maxChallenge: maxChallenge,
	}, nil
}

// KeyID returns the identity announced to the server before the challenge.
func (s *ChallengeSigner) KeyID() string {
	return s.keyID
}

// Sign hashes the challenge with SHA-256, signs it, normalizes the signature
// to low-S form, and returns the base64-encoded DER signature.
func (s *ChallengeSigner) Sign(challenge []byte) (string, error) {
	digest := sha256.Sum256(challenge)

	r, sv, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuth, "failed to sign challenge")
	}

	// Low-S normalization: (r, s) and (r, N-s) verify identically, so emit
	// the canonical half to match strict verifiers.
	n := s.key.Params().N
	if sv.Cmp(new(big.Int).Rsh(n, 1)) > 0 {
		sv = new(big.Int).Sub(n, sv)
	}

	der, err := asn1.Marshal(struct {
		R, S *big.Int
	}{r, sv})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuth, "failed to encode signature")
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

// Authenticate runs the full handshake on rw: announce the key id, read the
// newline-terminated challenge, and write back the signature line. It must
// run before any data bytes are sent on the connection.
func (s *ChallengeSigner) Authenticate(rw io.ReadWriter) error {
	if _, err := rw.Write(append([]byte(s.keyID), '\n')); err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuth, "failed to send key id")
	}

	challenge, err := readChallenge(rw, s.maxChallenge)
	if err != nil {
		return err
	}

	signature, err := s.Sign(challenge)
	if err != nil {
		return err
	}

	if _, err := rw.Write(append([]byte(signature), '\n')); err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuth, "failed to send challenge signature")
	}
	return nil
}

// readChallenge reads the challenge line one chunk at a time, enforcing the
// size cap before buffering, so a hostile endpoint cannot force unbounded
// allocation.
func readChallenge(r io.Reader, max int) ([]byte, error) {
	challenge := make([]byte, 0, 64)
	chunk := make([]byte, 1)

	for {
		n, err := r.Read(chunk)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeAuth, "failed to read auth challenge")
		}
		if n == 0 {
			continue
		}
		if chunk[0] == '\n' {
			if len(challenge) == 0 {
				return nil, errors.New(errors.ErrorTypeAuth, "server sent an empty auth challenge")
			}
			return challenge, nil
		}
		if len(challenge) >= max {
			return nil, errors.Newf(errors.ErrorTypeAuth,
				"auth challenge exceeds the maximum size of %d bytes", max)
		}
		challenge = append(challenge, chunk[0])
	}
}

// BearerToken returns the Authorization header value for a bearer token.
func BearerToken(token string) string {
	return "Bearer " + token
}

// BasicCredential returns the Authorization header value for HTTP Basic
// credentials.
func BasicCredential(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
