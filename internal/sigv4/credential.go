// Package sigv4 verifies gateway requests signed with the four-part
// HMAC chain (date, region, service, request) in both the Authorization-header
// and presigned query-string transports.
package sigv4

import (
	"errors"
	"time"

	"github.com/shardgate/controlplane/internal/captoken"
)

// Credential statuses.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// Wildcard matches any bucket, prefix, region, or service in a credential scope.
const Wildcard = "*"

// ErrPolicyViolation is returned when a verified signature's credential does
// not permit the requested operation.
var ErrPolicyViolation = errors.New("operation not permitted by credential scope")

// Credential is a signed-request credential resolved by access key. It may
// come from static configuration or be resolved dynamically from the token
// authority and cached with a TTL.
type Credential struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	ProjectID string `json:"project_id,omitempty"`

	// Token optionally embeds a capability token that must also verify and
	// whose caveats must also pass for any operation under this credential.
	Token string `json:"token,omitempty"`

	Bucket  string   `json:"bucket"`  // "*" or bucket name
	Prefix  string   `json:"prefix"`  // "*" or key prefix
	Ops     []string `json:"ops"`     // empty = all operations
	Region  string   `json:"region"`  // "*" or region the scope must carry
	Service string   `json:"service"` // "*" or service the scope must carry

	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero = no expiry
}

// Caveats converts the credential's scoping fields into caveat form so the
// post-signature policy check applies the same matching rules as capability
// token caveat evaluation.
func (c *Credential) Caveats() captoken.Caveats {
	return captoken.Caveats{
		Bucket: c.Bucket,
		Prefix: c.Prefix,
		Ops:    c.Ops,
	}
}

// CheckPolicy re-applies the op/bucket/prefix matching rules using the
// credential's own scoping fields. It is called after signature verification
// succeeds and returns ErrPolicyViolation when the operation is out of scope.
func (c *Credential) CheckPolicy(op captoken.Op, bucket, key string) error {
	if !c.Caveats().Allows(op, bucket, key) {
		return ErrPolicyViolation
	}
	return nil
}

// expired reports whether the credential itself is past its expiry at now.
func (c *Credential) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// clone returns a copy so cached credentials cannot be mutated by callers.
func (c *Credential) clone() *Credential {
	out := *c
	out.Ops = append([]string(nil), c.Ops...)
	return &out
}
