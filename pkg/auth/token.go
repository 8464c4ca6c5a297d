// Package auth verifies bearer tokens minted by the external auth provider
// and carries the resulting identity. Provider integration itself (login,
// signup, email verification) is out of scope; the service only trusts
// tokens signed with the shared secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenPrefix identifies Memory Vista tokens.
const TokenPrefix = "vista_"

// ErrInvalidToken is returned for malformed, tampered, or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

type tokenPayload struct {
	Identity
	ExpiresAt int64 `json:"exp"`
}

// TokenCodec signs and verifies identity tokens with an HMAC-SHA256 shared
// secret. Format: vista_<base64url(payload)>.<hex hmac>.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec creates a codec over the shared secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes")
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// Sign mints a token for the identity, valid for ttl.
func (c *TokenCodec) Sign(identity Identity, ttl time.Duration) (string, error) {
	payload := tokenPayload{
		Identity:  identity,
		ExpiresAt: c.now().Add(ttl).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return TokenPrefix + encoded + "." + c.signature(encoded), nil
}

// Verify checks the signature and expiry and returns the embedded identity.
func (c *TokenCodec) Verify(token string) (*Identity, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}
	body := token[len(TokenPrefix):]
	dot := strings.LastIndexByte(body, '.')
	if dot < 0 {
		return nil, ErrInvalidToken
	}
	encoded, sig := body[:dot], body[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(c.signature(encoded))) {
		return nil, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if payload.ExpiresAt < c.now().Unix() {
		return nil, ErrInvalidToken
	}
	if payload.UserID == "" {
		return nil, ErrInvalidToken
	}
	identity := payload.Identity
	return &identity, nil
}

func (c *TokenCodec) signature(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
