// Package captoken mints and verifies macaroon-style capability tokens.
//
// A token is base64url(payload JSON) + "." + hex(HMAC-SHA256(payload JSON)).
// Validity is stateless: the signature covers the full payload, and the payload
// carries its own expiry. Tampering with any byte of the payload invalidates
// the signature.
package captoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by Verify. All verification failures map to one of these;
// Verify never panics on malformed input.
var (
	// ErrMalformed indicates the token does not have the payload.signature shape.
	ErrMalformed = errors.New("captoken: malformed token")
	// ErrBadSignature indicates the HMAC tag does not match the payload.
	ErrBadSignature = errors.New("captoken: signature mismatch")
	// ErrExpired indicates the token is past its expiry.
	ErrExpired = errors.New("captoken: token expired")
	// ErrRevoked indicates the token id is on the revocation list.
	ErrRevoked = errors.New("captoken: token revoked")
)

// Payload is the signed content of a capability token.
type Payload struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Caveats   Caveats `json:"caveats"`
	IssuedAt  int64   `json:"issued_at"`
	ExpiresAt int64   `json:"expires_at"`
}

// Authority mints and verifies capability tokens with a shared HMAC secret.
type Authority struct {
	secret []byte
	now    func() time.Time

	// revoked is an optional id-revocation check. Token validity is otherwise
	// fully stateless.
	revoked func(id string) bool
}

// NewAuthority creates an Authority with the given HMAC secret.
func NewAuthority(secret []byte) *Authority {
	return &Authority{secret: secret, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// WithRevocationCheck installs an id-revocation predicate consulted by Verify
// after the signature and expiry checks pass.
func (a *Authority) WithRevocationCheck(revoked func(id string) bool) *Authority {
	a.revoked = revoked
	return a
}

// Mint builds a signed token binding projectID to the given caveats for ttl.
// It fails only on invalid input.
func (a *Authority) Mint(projectID string, caveats Caveats, ttl time.Duration) (string, *Payload, error) {
	if projectID == "" {
		return "", nil, fmt.Errorf("captoken: project id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := a.now()
	payload := &Payload{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Caveats:   caveats.normalized(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("captoken: encode payload: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(raw) + "." + hex.EncodeToString(a.tag(raw))
	return token, payload, nil
}

// Verify checks the token's signature and expiry and returns its payload.
// Any malformed structure, signature mismatch, or expiry yields an error;
// it never panics on hostile input.
func (a *Authority) Verify(token string) (*Payload, error) {
	dot := strings.LastIndex(token, ".")
	if dot <= 0 || dot == len(token)-1 {
		return nil, ErrMalformed
	}

	// Strict decoding rejects non-canonical trailing bits, so exactly one
	// token string encodes a given payload.
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token[:dot])
	if err != nil {
		return nil, ErrMalformed
	}

	// Compare against the canonical hex form of the expected tag rather than
	// decoding the supplied tag: hex decoding accepts both letter cases, which
	// would let a case-flipped tag verify.
	want := hex.EncodeToString(a.tag(raw))
	if subtle.ConstantTimeCompare([]byte(token[dot+1:]), []byte(want)) != 1 {
		return nil, ErrBadSignature
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrMalformed
	}

	if a.now().Unix() > payload.ExpiresAt {
		return nil, ErrExpired
	}

	if a.revoked != nil && a.revoked(payload.ID) {
		return nil, ErrRevoked
	}

	return &payload, nil
}

func (a *Authority) tag(payload []byte) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
