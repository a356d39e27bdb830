package sigv4

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignRequest signs r in the header transport with the credential's secret.
// The x-amz-date and optional x-amz-content-sha256 headers are set on the
// request; the Authorization header carries the scope, signed-header list,
// and signature. signedHeaders must include every header the verifier should
// bind; host is always included.
func SignRequest(r *http.Request, cred *Credential, region, service string, signTime time.Time, payloadHash string, signedHeaders []string) {
	amzDate := signTime.UTC().Format(timeFormat)
	r.Header.Set(headerDate, amzDate)

	required := []string{"host", "x-amz-date"}
	if payloadHash != "" && payloadHash != emptyPayloadHash {
		r.Header.Set(headerContentSHA, payloadHash)
		required = append(required, "x-amz-content-sha256")
	}
	if payloadHash == "" {
		payloadHash = emptyPayloadHash
	}

	headers := normalizeSignedHeaders(signedHeaders, required...)

	scope := Scope{
		AccessKey: cred.AccessKey,
		DateStamp: signTime.UTC().Format(dateFormat),
		Region:    region,
		Service:   service,
	}

	canonical := canonicalRequest(r, headers, payloadHash, false)
	toSign := stringToSign(amzDate, scope.String(), canonical)
	signature := computeSignature(deriveSigningKey(cred.SecretKey, scope.DateStamp, region, service), toSign)

	r.Header.Set("Authorization", Algorithm+
		" Credential="+cred.AccessKey+"/"+scope.String()+
		", SignedHeaders="+strings.Join(headers, ";")+
		", Signature="+signature)
}

// PresignRequest signs r in the query transport, valid for expires from
// signTime. The signing parameters are appended to the request URL.
func PresignRequest(r *http.Request, cred *Credential, region, service string, signTime time.Time, expires time.Duration) {
	amzDate := signTime.UTC().Format(timeFormat)
	scope := Scope{
		AccessKey: cred.AccessKey,
		DateStamp: signTime.UTC().Format(dateFormat),
		Region:    region,
		Service:   service,
	}

	headers := []string{"host"}

	q := r.URL.Query()
	q.Set(queryAlgorithm, Algorithm)
	q.Set(queryCredential, cred.AccessKey+"/"+scope.String())
	q.Set(queryDate, amzDate)
	q.Set(queryExpires, strconv.Itoa(int(expires.Seconds())))
	q.Set(querySignedHeaders, strings.Join(headers, ";"))
	r.URL.RawQuery = q.Encode()

	canonical := canonicalRequest(r, headers, UnsignedPayload, true)
	toSign := stringToSign(amzDate, scope.String(), canonical)
	signature := computeSignature(deriveSigningKey(cred.SecretKey, scope.DateStamp, region, service), toSign)

	q.Set(querySignature, signature)
	r.URL.RawQuery = q.Encode()
}

// normalizeSignedHeaders lower-cases, deduplicates, and sorts the header list,
// always folding in the required names.
func normalizeSignedHeaders(headers []string, required ...string) []string {
	seen := make(map[string]bool)
	for _, h := range headers {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			seen[h] = true
		}
	}
	for _, h := range required {
		seen[h] = true
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
