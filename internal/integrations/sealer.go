package integrations

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Sealer encrypts provider access tokens at rest with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer takes a hex encoded 32 byte key.  When hexKey is empty the key
// is derived from fallback, which lets development setups run without a
// dedicated secret.
func NewSealer(hexKey, fallback string) (*Sealer, error) {
	var s Sealer
	if hexKey == "" {
		if fallback == "" {
			return nil, errors.New("no connection secret configured")
		}
		s.key = sha256.Sum256([]byte("connections:" + fallback))
		return &s, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode connection secret: %w", err)
	}
	if len(raw) != len(s.key) {
		return nil, fmt.Errorf("connection secret must be %d bytes, got %d", len(s.key), len(raw))
	}
	copy(s.key[:], raw)
	return &s, nil
}

// Seal returns base64(nonce || box).
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(raw) < 24+secretbox.Overhead {
		return "", errors.New("sealed token too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed token failed authentication")
	}
	return string(out), nil
}
