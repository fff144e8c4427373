package utils // package utils provides helpers for signing and checking tokens

import (
	"crypto/rand" // secure random number generation
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT bearer token along with its expiry.
// The subject is the auth provider's identity key for the user; the role is
// never carried in the token and is always read from the database.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for subject.  It is used by
// the CLI to mint development tokens and by tests.
func NewAccessToken(secret, subject string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseSubject validates an HS256 token and returns its subject.
func ParseSubject(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, hmacKey(secret), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// StateClaims bind an OAuth authorization round trip to the user that
// started it.
type StateClaims struct {
	UserID   uint64 `json:"uid"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// NewStateToken signs a short-lived OAuth state for userID and provider.
func NewStateToken(secret string, userID uint64, provider string, ttl time.Duration) (string, error) {
	nonce, err := randomHex(16)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := StateClaims{
		UserID:   userID,
		Provider: provider,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseStateToken validates a state token and checks it was issued for
// provider.
func ParseStateToken(secret, raw, provider string) (StateClaims, error) {
	var claims StateClaims
	_, err := jwt.ParseWithClaims(raw, &claims, hmacKey(secret), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return StateClaims{}, err
	}
	if claims.Provider != provider || claims.UserID == 0 {
		return StateClaims{}, errors.New("state was issued for another flow")
	}
	return claims, nil
}

func hmacKey(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
