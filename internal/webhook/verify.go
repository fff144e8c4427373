// Package webhook receives user lifecycle events from the auth provider.
// Deliveries are signed with the svix scheme: an HMAC-SHA256 over
// "<id>.<timestamp>.<body>" keyed with the base64 part of a whsec_ secret.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature headers.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// Tolerance is how far a delivery timestamp may be from now.
const Tolerance = 5 * time.Minute

var (
	ErrMissingHeaders = errors.New("missing svix headers")
	ErrBadSignature   = errors.New("invalid webhook signature")
	ErrStale          = errors.New("webhook timestamp outside tolerance")
)

// Verifier checks delivery signatures.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier decodes a whsec_ prefixed secret.
func NewVerifier(secret string) (*Verifier, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	if raw == "" {
		return nil, errors.New("webhook secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &Verifier{key: key, now: time.Now}, nil
}

// Sign returns the v1 signature of a delivery.
func (v *Verifier) Sign(id string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%d.", id, ts.Unix())
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the headers of a delivery against body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id, tsRaw, sigs := h.Get(HeaderID), h.Get(HeaderTimestamp), h.Get(HeaderSignature)
	if id == "" || tsRaw == "" || sigs == "" {
		return ErrMissingHeaders
	}
	sec, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	ts := time.Unix(sec, 0)
	if d := v.now().Sub(ts); d > Tolerance || d < -Tolerance {
		return ErrStale
	}
	want := v.Sign(id, ts, body)
	for _, sig := range strings.Fields(sigs) {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrBadSignature
}
