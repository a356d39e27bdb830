package sigv4_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/shardgate/controlplane/internal/sigv4"
)

// These tests pin our verifier to the ecosystem reference: requests signed by
// the AWS SDK v4 signer must verify, so canonicalization and key derivation
// cannot drift into a self-consistent but incompatible dialect.

const (
	refAccessKey = "SGKREFERENCE01"
	refSecretKey = "reference-secret-key-for-sdk-compat"
	refRegion    = "us-east-1"
	refService   = "s3"
)

func refCredential() *sigv4.Credential {
	return &sigv4.Credential{
		AccessKey: refAccessKey,
		SecretKey: refSecretKey,
		Bucket:    "*",
		Prefix:    "*",
		Region:    "*",
		Service:   "*",
		Status:    sigv4.StatusActive,
	}
}

func refVerifier(signTime time.Time) *sigv4.Verifier {
	return sigv4.NewVerifier(sigv4.NewStaticResolver(refCredential()), 15*time.Minute).
		WithClock(func() time.Time { return signTime })
}

func sdkSign(t *testing.T, r *http.Request, payloadHash string, signTime time.Time) {
	t.Helper()
	signer := v4.NewSigner()
	creds := aws.Credentials{AccessKeyID: refAccessKey, SecretAccessKey: refSecretKey}
	if err := signer.SignHTTP(context.Background(), creds, r, payloadHash, refService, refRegion, signTime); err != nil {
		t.Fatalf("SDK signer failed: %v", err)
	}
}

func TestVerify_SDKSignedGet(t *testing.T) {
	t.Parallel()
	signTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	r, err := http.NewRequest(http.MethodGet, "https://gw.example.com/photos/january.jpg?versionId=7", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	emptyHash := sha256.Sum256(nil)
	sdkSign(t, r, hex.EncodeToString(emptyHash[:]), signTime)

	cred, verr := refVerifier(signTime).VerifyRequest(context.Background(), r)
	if verr != nil {
		t.Fatalf("SDK-signed request failed verification: %v", verr)
	}
	if cred.AccessKey != refAccessKey {
		t.Errorf("expected credential %q, got %q", refAccessKey, cred.AccessKey)
	}
}

func TestVerify_SDKSignedPutWithPayload(t *testing.T) {
	t.Parallel()
	signTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	body := "shard payload bytes"
	r, err := http.NewRequest(http.MethodPut, "https://gw.example.com/photos/upload.bin", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	sum := sha256.Sum256([]byte(body))
	payloadHash := hex.EncodeToString(sum[:])
	// Declare the payload hash so the verifier binds it; the SDK then signs
	// the header too.
	r.Header.Set("X-Amz-Content-Sha256", payloadHash)
	sdkSign(t, r, payloadHash, signTime)

	if _, verr := refVerifier(signTime).VerifyRequest(context.Background(), r); verr != nil {
		t.Fatalf("SDK-signed PUT failed verification: %v", verr)
	}
}

func TestVerify_SDKSignedWithExtraHeaders(t *testing.T) {
	t.Parallel()
	signTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	r, err := http.NewRequest(http.MethodGet, "https://gw.example.com/photos/", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	r.Header.Set("X-Amz-Meta-Owner", "proj-1")

	emptyHash := sha256.Sum256(nil)
	sdkSign(t, r, hex.EncodeToString(emptyHash[:]), signTime)

	if _, verr := refVerifier(signTime).VerifyRequest(context.Background(), r); verr != nil {
		t.Fatalf("SDK-signed request with metadata header failed verification: %v", verr)
	}
}

func TestVerify_SDKSignedTamperRejected(t *testing.T) {
	t.Parallel()
	signTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	r, err := http.NewRequest(http.MethodGet, "https://gw.example.com/photos/january.jpg", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	emptyHash := sha256.Sum256(nil)
	sdkSign(t, r, hex.EncodeToString(emptyHash[:]), signTime)
	r.URL.Path = "/photos/february.jpg"

	if _, verr := refVerifier(signTime).VerifyRequest(context.Background(), r); verr == nil {
		t.Fatal("tampered SDK-signed request verified")
	}
}
