package sigv4

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnknownAccessKey is returned when no credential exists for an access key.
var ErrUnknownAccessKey = errors.New("unknown access key")

// CredentialResolver resolves a credential for an access key. Implementations
// include a static table, the control-plane state store, and a caching layer
// over a remote resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, accessKey string) (*Credential, error)
}

// StaticResolver serves credentials from a fixed in-memory table.
type StaticResolver struct {
	creds map[string]*Credential
}

// NewStaticResolver builds a resolver over the given credentials.
func NewStaticResolver(creds ...*Credential) *StaticResolver {
	m := make(map[string]*Credential, len(creds))
	for _, c := range creds {
		m[c.AccessKey] = c
	}
	return &StaticResolver{creds: m}
}

// Resolve returns the credential for accessKey or ErrUnknownAccessKey.
func (r *StaticResolver) Resolve(_ context.Context, accessKey string) (*Credential, error) {
	c, ok := r.creds[accessKey]
	if !ok {
		return nil, ErrUnknownAccessKey
	}
	return c.clone(), nil
}

// ResolverFunc adapts a function to the CredentialResolver interface.
type ResolverFunc func(ctx context.Context, accessKey string) (*Credential, error)

// Resolve implements CredentialResolver.
func (f ResolverFunc) Resolve(ctx context.Context, accessKey string) (*Credential, error) {
	return f(ctx, accessKey)
}

type cacheEntry struct {
	cred      *Credential
	fetchedAt time.Time
}

// CachingResolver wraps an upstream resolver with an in-process cache keyed by
// access key and a fixed TTL. A cache miss triggers an upstream lookup; a hit
// avoids it. Concurrent refreshes for the same key are allowed and resolve
// last-writer-wins: both writers compute the same answer from the same
// upstream source.
type CachingResolver struct {
	upstream CredentialResolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachingResolver wraps upstream with a TTL cache.
func NewCachingResolver(upstream CredentialResolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cacheEntry),
	}
}

// WithClock overrides the time source. Used by tests.
func (r *CachingResolver) WithClock(now func() time.Time) *CachingResolver {
	r.now = now
	return r
}

// Resolve returns a cached credential when fresh, otherwise consults the
// upstream resolver and populates the cache. Upstream failures are not cached.
func (r *CachingResolver) Resolve(ctx context.Context, accessKey string) (*Credential, error) {
	now := r.now()

	r.mu.Lock()
	if entry, ok := r.entries[accessKey]; ok && now.Sub(entry.fetchedAt) < r.ttl {
		cred := entry.cred.clone()
		r.mu.Unlock()
		return cred, nil
	}
	r.mu.Unlock()

	cred, err := r.upstream.Resolve(ctx, accessKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[accessKey] = cacheEntry{cred: cred.clone(), fetchedAt: now}
	r.mu.Unlock()

	return cred, nil
}

// Invalidate drops the cache entry for accessKey, forcing the next Resolve to
// hit the upstream. Called on credential revocation.
func (r *CachingResolver) Invalidate(accessKey string) {
	r.mu.Lock()
	delete(r.entries, accessKey)
	r.mu.Unlock()
}
