package sigv4

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Query parameters of the presigned transport.
const (
	queryAlgorithm     = "X-Amz-Algorithm"
	queryCredential    = "X-Amz-Credential"
	queryDate          = "X-Amz-Date"
	queryExpires       = "X-Amz-Expires"
	querySignedHeaders = "X-Amz-SignedHeaders"
	querySignature     = "X-Amz-Signature"

	headerDate       = "X-Amz-Date"
	headerContentSHA = "X-Amz-Content-Sha256"

	// maxPresignExpirySeconds bounds X-Amz-Expires (7 days).
	maxPresignExpirySeconds = 604800
)

// Verification failures. The messages are stable, machine-readable reason
// strings: callers log and alert on them without leaking secret material.
var (
	ErrMissingAuth       = errors.New("missing authorization")
	ErrMalformedAuth     = errors.New("malformed authorization header")
	ErrUnsupportedAlg    = errors.New("unsupported signing algorithm")
	ErrMalformedScope    = errors.New("malformed credential scope")
	ErrMalformedDate     = errors.New("malformed x-amz-date")
	ErrScopeDateMismatch = errors.New("credential scope date mismatch")
	ErrDateSkew          = errors.New("x-amz-date outside allowed clock skew")
	ErrBadExpires        = errors.New("invalid x-amz-expires")
	ErrPresignExpired    = errors.New("presigned request expired")
	ErrCredentialRevoked = errors.New("credential revoked")
	ErrCredentialExpired = errors.New("credential expired")
	ErrRegionMismatch    = errors.New("credential scope region mismatch")
	ErrServiceMismatch   = errors.New("credential scope service mismatch")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Scope is a parsed credential scope:
// accessKey/dateStamp/region/service/aws4_request.
type Scope struct {
	AccessKey string
	DateStamp string
	Region    string
	Service   string
}

// String renders the scope without the access key, as used in the
// string-to-sign.
func (s Scope) String() string {
	return strings.Join([]string{s.DateStamp, s.Region, s.Service, scopeTerminator}, "/")
}

// ParseScope parses and validates a credential scope string.
func ParseScope(credential string) (Scope, error) {
	parts := strings.Split(credential, "/")
	if len(parts) != 5 || parts[4] != scopeTerminator {
		return Scope{}, ErrMalformedScope
	}
	scope := Scope{AccessKey: parts[0], DateStamp: parts[1], Region: parts[2], Service: parts[3]}
	if scope.AccessKey == "" || scope.Region == "" || scope.Service == "" {
		return Scope{}, ErrMalformedScope
	}
	if len(scope.DateStamp) != 8 {
		return Scope{}, ErrMalformedScope
	}
	for _, c := range scope.DateStamp {
		if c < '0' || c > '9' {
			return Scope{}, ErrMalformedScope
		}
	}
	return scope, nil
}

// Verifier validates signed requests against credentials from a resolver.
type Verifier struct {
	resolver CredentialResolver
	maxSkew  time.Duration
	now      func() time.Time
}

// NewVerifier creates a Verifier with the given resolver and clock-skew
// tolerance.
func NewVerifier(resolver CredentialResolver, maxSkew time.Duration) *Verifier {
	return &Verifier{resolver: resolver, maxSkew: maxSkew, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// VerifyRequest validates the signature on r and returns the resolved
// credential on success. Both transports are supported: the presigned
// query form when X-Amz-Signature is present in the query, the
// Authorization-header form otherwise. The request body is never read;
// the payload hash is taken from x-amz-content-sha256 when declared.
//
// All failures are returned as errors with stable reasons; malformed
// signature material is an ordinary mismatch, never a panic.
func (v *Verifier) VerifyRequest(ctx context.Context, r *http.Request) (*Credential, error) {
	if r.URL.Query().Get(querySignature) != "" {
		return v.verifyQuery(ctx, r)
	}
	return v.verifyHeader(ctx, r)
}

func (v *Verifier) verifyHeader(ctx context.Context, r *http.Request) (*Credential, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return nil, ErrMissingAuth
	}

	alg, rest, ok := strings.Cut(authz, " ")
	if !ok {
		return nil, ErrMalformedAuth
	}
	if alg != Algorithm {
		return nil, ErrUnsupportedAlg
	}

	var credential, signedHeadersRaw, signature string
	for _, field := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return nil, ErrMalformedAuth
		}
		switch key {
		case "Credential":
			credential = value
		case "SignedHeaders":
			signedHeadersRaw = value
		case "Signature":
			signature = value
		}
	}
	if credential == "" || signedHeadersRaw == "" || signature == "" {
		return nil, ErrMalformedAuth
	}

	scope, err := ParseScope(credential)
	if err != nil {
		return nil, err
	}

	amzDate := r.Header.Get(headerDate)
	requestTime, err := time.Parse(timeFormat, amzDate)
	if err != nil {
		return nil, ErrMalformedDate
	}
	if requestTime.Format(dateFormat) != scope.DateStamp {
		return nil, ErrScopeDateMismatch
	}

	now := v.now()
	if skew := now.Sub(requestTime); skew > v.maxSkew || skew < -v.maxSkew {
		return nil, ErrDateSkew
	}

	cred, err := v.resolveAndCheck(ctx, scope, now)
	if err != nil {
		return nil, err
	}

	payloadHash := r.Header.Get(headerContentSHA)
	if payloadHash == "" {
		payloadHash = emptyPayloadHash
	}

	signedHeaders := splitSignedHeaders(signedHeadersRaw)
	canonical := canonicalRequest(r, signedHeaders, payloadHash, false)
	toSign := stringToSign(amzDate, scope.String(), canonical)
	expected := computeSignature(deriveSigningKey(cred.SecretKey, scope.DateStamp, scope.Region, scope.Service), toSign)

	if !equalSignatures(expected, signature) {
		return nil, ErrSignatureMismatch
	}
	return cred, nil
}

func (v *Verifier) verifyQuery(ctx context.Context, r *http.Request) (*Credential, error) {
	q := r.URL.Query()

	if q.Get(queryAlgorithm) != Algorithm {
		return nil, ErrUnsupportedAlg
	}

	scope, err := ParseScope(q.Get(queryCredential))
	if err != nil {
		return nil, err
	}

	amzDate := q.Get(queryDate)
	requestTime, err := time.Parse(timeFormat, amzDate)
	if err != nil {
		return nil, ErrMalformedDate
	}
	if requestTime.Format(dateFormat) != scope.DateStamp {
		return nil, ErrScopeDateMismatch
	}

	expiresSeconds, err := strconv.Atoi(q.Get(queryExpires))
	if err != nil || expiresSeconds < 1 || expiresSeconds > maxPresignExpirySeconds {
		return nil, ErrBadExpires
	}

	now := v.now()
	if now.After(requestTime.Add(time.Duration(expiresSeconds) * time.Second)) {
		return nil, ErrPresignExpired
	}
	// Reject URLs dated too far in the future.
	if requestTime.Sub(now) > v.maxSkew {
		return nil, ErrDateSkew
	}

	cred, err := v.resolveAndCheck(ctx, scope, now)
	if err != nil {
		return nil, err
	}

	payloadHash := r.Header.Get(headerContentSHA)
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}

	signedHeaders := splitSignedHeaders(q.Get(querySignedHeaders))
	canonical := canonicalRequest(r, signedHeaders, payloadHash, true)
	toSign := stringToSign(amzDate, scope.String(), canonical)
	expected := computeSignature(deriveSigningKey(cred.SecretKey, scope.DateStamp, scope.Region, scope.Service), toSign)

	if !equalSignatures(expected, q.Get(querySignature)) {
		return nil, ErrSignatureMismatch
	}
	return cred, nil
}

// resolveAndCheck resolves the access key and enforces per-credential
// constraints: status, expiry, and declared region/service unless wildcarded.
func (v *Verifier) resolveAndCheck(ctx context.Context, scope Scope, now time.Time) (*Credential, error) {
	cred, err := v.resolver.Resolve(ctx, scope.AccessKey)
	if err != nil {
		return nil, err
	}
	if cred.Status == StatusRevoked {
		return nil, ErrCredentialRevoked
	}
	if cred.expired(now) {
		return nil, ErrCredentialExpired
	}
	if cred.Region != "" && cred.Region != Wildcard && cred.Region != scope.Region {
		return nil, ErrRegionMismatch
	}
	if cred.Service != "" && cred.Service != Wildcard && cred.Service != scope.Service {
		return nil, ErrServiceMismatch
	}
	return cred, nil
}

func splitSignedHeaders(raw string) []string {
	parts := strings.Split(strings.ToLower(raw), ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// equalSignatures compares two hex signatures in constant time. Unequal
// lengths or non-hex input are an immediate mismatch, never an error.
func equalSignatures(expected, supplied string) bool {
	supplied = strings.ToLower(supplied)
	if len(expected) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
