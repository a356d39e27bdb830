package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Wire constants of the signing scheme.
const (
	// Algorithm names the signing scheme in Authorization headers and
	// X-Amz-Algorithm parameters.
	Algorithm = "AWS4-HMAC-SHA256"

	// secretPrefix seeds the signing-key derivation chain.
	secretPrefix = "AWS4"

	// scopeTerminator ends every credential scope.
	scopeTerminator = "aws4_request"

	// timeFormat is the compact request timestamp, e.g. 20260830T120000Z.
	timeFormat = "20060102T150405Z"

	// dateFormat is the date stamp used in the credential scope.
	dateFormat = "20060102"

	// UnsignedPayload is the payload-hash placeholder for presigned requests.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// emptyPayloadHash is hex(SHA-256("")), the payload hash of a bodyless
	// header-signed request that does not declare x-amz-content-sha256.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// canonicalURI re-percent-encodes each path segment: decode, then strictly
// re-encode, preserving "/" separators. An empty path canonicalizes to "/".
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			// Undecodable segments are encoded as-is rather than rejected;
			// the signature check will fail if the signer saw them differently.
			decoded = seg
		}
		segments[i] = uriEncode(decoded, true)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery sorts parameter pairs by encoded key then encoded value.
// The signature parameter itself is excluded for the query transport.
func canonicalQuery(query url.Values, excludeSignature bool) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(query))
	for key, values := range query {
		if excludeSignature && key == querySignature {
			continue
		}
		for _, value := range values {
			pairs = append(pairs, pair{uriEncode(key, true), uriEncode(value, true)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.Join(parts, "&")
}

// canonicalHeaders builds the lower-cased, whitespace-collapsed "name:value\n"
// block for exactly the signed-header list. The host header is read from the
// request host when not otherwise present.
func canonicalHeaders(r *http.Request, signedHeaders []string) string {
	var b strings.Builder
	for _, name := range signedHeaders {
		b.WriteString(name)
		b.WriteByte(':')
		switch {
		case name == "host":
			host := r.Header.Get("Host")
			if host == "" {
				host = r.Host
			}
			b.WriteString(collapseWS(host))
		case name == "content-length" && len(r.Header.Values("Content-Length")) == 0:
			// Both Go's server and the common signers carry the length on
			// the request rather than the header map.
			if r.ContentLength > 0 {
				b.WriteString(strconv.FormatInt(r.ContentLength, 10))
			}
		default:
			values := r.Header.Values(name)
			for i, v := range values {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(collapseWS(v))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// canonicalRequest assembles the six-line canonical request:
// METHOD, URI, QUERY, HEADERS, SIGNED_HEADERS, PAYLOAD_HASH.
func canonicalRequest(r *http.Request, signedHeaders []string, payloadHash string, excludeSignature bool) string {
	return strings.Join([]string{
		r.Method,
		canonicalURI(r.URL.Path),
		canonicalQuery(r.URL.Query(), excludeSignature),
		canonicalHeaders(r, signedHeaders),
		strings.Join(signedHeaders, ";"),
		payloadHash,
	}, "\n")
}

// stringToSign chains the algorithm name, timestamp, scope, and canonical
// request hash.
func stringToSign(amzDate, scope, canonicalReq string) string {
	sum := sha256.Sum256([]byte(canonicalReq))
	return strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

// deriveSigningKey runs the four-step HMAC chain seeded with the
// literal-prefixed secret key.
func deriveSigningKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte(secretPrefix+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, scopeTerminator)
}

// computeSignature signs stringToSign with the derived key and returns hex.
func computeSignature(signingKey []byte, toSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, toSign))
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

// uriEncode strictly percent-encodes per RFC 3986: unreserved characters pass
// through, "/" passes through only when encodeSlash is false elsewhere in the
// path pipeline, everything else becomes uppercase %XX.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// collapseWS trims and collapses internal runs of whitespace to single spaces.
func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
