// Package integrity signs and verifies event payloads so event authenticity
// can be checked independently of the transport that carried them.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Config holds signing settings.
type Config struct {
	Secret string `yaml:"secret"`
}

// Signer computes keyed digests over canonically serialized payloads.
// The same payload and secret always produce the same signature byte-for-byte;
// this is the externally verifiable compatibility surface.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with the given shared secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("integrity secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign serializes the payload with stable key ordering and returns the
// hex-encoded HMAC-SHA256 digest.
func (s *Signer) Sign(payload map[string]interface{}) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares in constant time.
func (s *Signer) Verify(payload map[string]interface{}, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalJSON produces a deterministic serialization. encoding/json sorts
// map keys at every nesting level, which is the only ordering guarantee the
// signature relies on.
func canonicalJSON(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal(payload)
}
