package sigv4

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shardgate/controlplane/internal/captoken"
)

var testTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func testCredential() *Credential {
	return &Credential{
		AccessKey: "SGKEXAMPLE0001",
		SecretKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYtestkey",
		ProjectID: "proj-1",
		Bucket:    "*",
		Prefix:    "*",
		Region:    "*",
		Service:   "*",
		Status:    StatusActive,
	}
}

func testVerifier(cred *Credential) *Verifier {
	return NewVerifier(NewStaticResolver(cred), 15*time.Minute).
		WithClock(func() time.Time { return testTime })
}

func signedTestRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	SignRequest(r, testCredential(), "us-east-1", "s3", testTime, "", nil)
	return r
}

// TestVerifyHeader_RoundTrip signs a request and verifies it against the same
// inputs.
func TestVerifyHeader_RoundTrip(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	r := signedTestRequest(t, http.MethodGet, "https://gw.example.com/photos/2026/jan.jpg?versionId=3")

	cred, err := v.VerifyRequest(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if cred.ProjectID != "proj-1" {
		t.Errorf("expected resolved credential for proj-1, got %q", cred.ProjectID)
	}
}

// TestVerifyHeader_AlteredRequest alters one component at a time and requires
// a signature mismatch for each.
func TestVerifyHeader_AlteredRequest(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	alterations := []struct {
		name  string
		alter func(r *http.Request)
	}{
		{"method", func(r *http.Request) { r.Method = http.MethodPut }},
		{"path", func(r *http.Request) { r.URL.Path = "/photos/2026/feb.jpg" }},
		{"query", func(r *http.Request) { r.URL.RawQuery = "versionId=4" }},
		{"signed header value", func(r *http.Request) { r.Host = "evil.example.com" }},
	}

	for _, tc := range alterations {
		t.Run(tc.name, func(t *testing.T) {
			r := signedTestRequest(t, http.MethodGet, "https://gw.example.com/photos/2026/jan.jpg?versionId=3")
			tc.alter(r)
			if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrSignatureMismatch) {
				t.Errorf("expected signature mismatch, got %v", err)
			}
		})
	}
}

// Altering the date header changes the string-to-sign and the scope check;
// either way verification must fail.
func TestVerifyHeader_AlteredDate(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	r := signedTestRequest(t, http.MethodGet, "https://gw.example.com/photos/a.jpg")
	r.Header.Set(headerDate, testTime.Add(time.Minute).Format(timeFormat))

	if _, err := v.VerifyRequest(context.Background(), r); err == nil {
		t.Fatal("expected verification failure for altered date")
	}
}

func TestVerifyHeader_EncodedPathSegments(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	// Path with characters requiring strict re-encoding.
	r := signedTestRequest(t, http.MethodGet, "https://gw.example.com/photos/summer%202026/img%2B1.jpg")

	if _, err := v.VerifyRequest(context.Background(), r); err != nil {
		t.Fatalf("VerifyRequest failed on encoded path: %v", err)
	}
}

func TestVerifyHeader_ClockSkew(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"in tolerance past", -10 * time.Minute, true},
		{"in tolerance future", 10 * time.Minute, true},
		{"too old", -16 * time.Minute, false},
		{"too far future", 16 * time.Minute, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := testVerifier(testCredential())
			r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
			SignRequest(r, testCredential(), "us-east-1", "s3", testTime.Add(tc.offset), "", nil)

			_, err := v.VerifyRequest(context.Background(), r)
			if tc.ok && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrDateSkew) {
				t.Errorf("expected ErrDateSkew, got %v", err)
			}
		})
	}
}

func TestVerifyHeader_Failures(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	t.Run("missing authorization", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrMissingAuth) {
			t.Errorf("expected ErrMissingAuth, got %v", err)
		}
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		r.Header.Set("Authorization", "AWS3-HMAC-SHA1 Credential=x/20260830/r/s/aws4_request, SignedHeaders=host, Signature=00")
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrUnsupportedAlg) {
			t.Errorf("expected ErrUnsupportedAlg, got %v", err)
		}
	})

	t.Run("malformed scope", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		r.Header.Set(headerDate, testTime.Format(timeFormat))
		r.Header.Set("Authorization", Algorithm+" Credential=onlykey, SignedHeaders=host, Signature=00")
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrMalformedScope) {
			t.Errorf("expected ErrMalformedScope, got %v", err)
		}
	})

	t.Run("unknown access key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		other := testCredential()
		other.AccessKey = "SGKUNKNOWNKEY"
		SignRequest(r, other, "us-east-1", "s3", testTime, "", nil)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrUnknownAccessKey) {
			t.Errorf("expected ErrUnknownAccessKey, got %v", err)
		}
	})

	t.Run("revoked credential", func(t *testing.T) {
		cred := testCredential()
		cred.Status = StatusRevoked
		revokedVerifier := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		SignRequest(r, cred, "us-east-1", "s3", testTime, "", nil)
		if _, err := revokedVerifier.VerifyRequest(context.Background(), r); !errors.Is(err, ErrCredentialRevoked) {
			t.Errorf("expected ErrCredentialRevoked, got %v", err)
		}
	})

	t.Run("expired credential", func(t *testing.T) {
		cred := testCredential()
		cred.ExpiresAt = testTime.Add(-time.Hour)
		expiredVerifier := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		SignRequest(r, cred, "us-east-1", "s3", testTime, "", nil)
		if _, err := expiredVerifier.VerifyRequest(context.Background(), r); !errors.Is(err, ErrCredentialExpired) {
			t.Errorf("expected ErrCredentialExpired, got %v", err)
		}
	})
}

// TestVerifyHeader_ScopeConstraints checks declared region/service enforcement.
func TestVerifyHeader_ScopeConstraints(t *testing.T) {
	t.Parallel()

	t.Run("region mismatch", func(t *testing.T) {
		cred := testCredential()
		cred.Region = "eu-west-2"
		v := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		SignRequest(r, cred, "us-east-1", "s3", testTime, "", nil)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrRegionMismatch) {
			t.Errorf("expected ErrRegionMismatch, got %v", err)
		}
	})

	t.Run("service mismatch", func(t *testing.T) {
		cred := testCredential()
		cred.Service = "sts"
		v := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		SignRequest(r, cred, "us-east-1", "s3", testTime, "", nil)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrServiceMismatch) {
			t.Errorf("expected ErrServiceMismatch, got %v", err)
		}
	})

	t.Run("wildcard matches anything", func(t *testing.T) {
		cred := testCredential()
		v := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		SignRequest(r, cred, "ap-south-1", "s3", testTime, "", nil)
		if _, err := v.VerifyRequest(context.Background(), r); err != nil {
			t.Errorf("expected wildcard scope to verify, got %v", err)
		}
	})
}

// TestVerifyQuery_RoundTrip covers the presigned-URL transport.
func TestVerifyQuery_RoundTrip(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/photos/jan.jpg", nil)
	PresignRequest(r, testCredential(), "us-east-1", "s3", testTime, time.Hour)

	if _, err := v.VerifyRequest(context.Background(), r); err != nil {
		t.Fatalf("presigned VerifyRequest failed: %v", err)
	}
}

func TestVerifyQuery_TamperedQuery(t *testing.T) {
	t.Parallel()
	v := testVerifier(testCredential())

	r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/photos/jan.jpg", nil)
	PresignRequest(r, testCredential(), "us-east-1", "s3", testTime, time.Hour)
	r.URL.RawQuery += "&extra=1"

	if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestVerifyQuery_Expiry(t *testing.T) {
	t.Parallel()

	t.Run("expired", func(t *testing.T) {
		cred := testCredential()
		v := NewVerifier(NewStaticResolver(cred), 15*time.Minute).
			WithClock(func() time.Time { return testTime.Add(2 * time.Hour) })
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		PresignRequest(r, cred, "us-east-1", "s3", testTime, time.Hour)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrPresignExpired) {
			t.Errorf("expected ErrPresignExpired, got %v", err)
		}
	})

	t.Run("dated too far in the future", func(t *testing.T) {
		cred := testCredential()
		v := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		PresignRequest(r, cred, "us-east-1", "s3", testTime.Add(time.Hour), time.Hour)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrDateSkew) {
			t.Errorf("expected ErrDateSkew, got %v", err)
		}
	})

	t.Run("expires out of range", func(t *testing.T) {
		cred := testCredential()
		v := testVerifier(cred)
		r := httptest.NewRequest(http.MethodGet, "https://gw.example.com/b/k", nil)
		PresignRequest(r, cred, "us-east-1", "s3", testTime, 8*24*time.Hour)
		if _, err := v.VerifyRequest(context.Background(), r); !errors.Is(err, ErrBadExpires) {
			t.Errorf("expected ErrBadExpires, got %v", err)
		}
	})
}

func TestCheckPolicy(t *testing.T) {
	t.Parallel()
	cred := &Credential{
		AccessKey: "k",
		Bucket:    "photos",
		Prefix:    "2026/",
		Ops:       []string{"GET", "LIST"},
	}

	if err := cred.CheckPolicy(captoken.OpGet, "photos", "2026/jan.jpg"); err != nil {
		t.Errorf("expected in-scope op to pass, got %v", err)
	}
	if err := cred.CheckPolicy(captoken.OpPut, "photos", "2026/jan.jpg"); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("expected policy violation for PUT, got %v", err)
	}
	if err := cred.CheckPolicy(captoken.OpGet, "videos", "2026/jan.jpg"); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("expected policy violation for wrong bucket, got %v", err)
	}
	if err := cred.CheckPolicy(captoken.OpGet, "photos", "2025/dec.jpg"); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("expected policy violation for wrong prefix, got %v", err)
	}
}

// TestCachingResolver_TTL verifies hit/miss/expiry behavior against a counting
// upstream.
func TestCachingResolver_TTL(t *testing.T) {
	t.Parallel()
	calls := 0
	upstream := ResolverFunc(func(_ context.Context, accessKey string) (*Credential, error) {
		calls++
		if accessKey != "k1" {
			return nil, ErrUnknownAccessKey
		}
		return testCredential(), nil
	})

	now := testTime
	r := NewCachingResolver(upstream, 5*time.Minute).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := r.Resolve(ctx, "k1"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, err := r.Resolve(ctx, "k1"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call for a warm cache, got %d", calls)
	}

	now = now.Add(6 * time.Minute)
	if _, err := r.Resolve(ctx, "k1"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected expired entry to trigger an upstream call, got %d calls", calls)
	}

	// Errors are not cached.
	if _, err := r.Resolve(ctx, "nope"); !errors.Is(err, ErrUnknownAccessKey) {
		t.Fatalf("expected ErrUnknownAccessKey, got %v", err)
	}
	if _, err := r.Resolve(ctx, "nope"); !errors.Is(err, ErrUnknownAccessKey) {
		t.Fatalf("expected ErrUnknownAccessKey, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected unknown keys to bypass the cache, got %d calls", calls)
	}
}

func TestCachingResolver_Invalidate(t *testing.T) {
	t.Parallel()
	calls := 0
	upstream := ResolverFunc(func(context.Context, string) (*Credential, error) {
		calls++
		return testCredential(), nil
	})

	r := NewCachingResolver(upstream, time.Hour)
	ctx := context.Background()

	_, _ = r.Resolve(ctx, "k1")
	r.Invalidate("k1")
	_, _ = r.Resolve(ctx, "k1")

	if calls != 2 {
		t.Errorf("expected invalidation to force an upstream call, got %d calls", calls)
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		scope string
		ok    bool
	}{
		{"valid", "AKID/20260830/us-east-1/s3/aws4_request", true},
		{"wrong terminator", "AKID/20260830/us-east-1/s3/aws4_token", false},
		{"too few parts", "AKID/20260830/us-east-1/aws4_request", false},
		{"bad date stamp", "AKID/2026083X/us-east-1/s3/aws4_request", false},
		{"empty region", "AKID/20260830//s3/aws4_request", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScope(tc.scope)
			if tc.ok && err != nil {
				t.Errorf("expected valid scope, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrMalformedScope) {
				t.Errorf("expected ErrMalformedScope, got %v", err)
			}
		})
	}
}
