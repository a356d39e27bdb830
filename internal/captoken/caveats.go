package captoken

import "strings"

// Op is an object operation a token or credential may allow.
type Op string

const (
	// OpGet reads an object.
	OpGet Op = "GET"
	// OpPut writes an object.
	OpPut Op = "PUT"
	// OpDelete removes an object.
	OpDelete Op = "DELETE"
	// OpList enumerates objects under a prefix.
	OpList Op = "LIST"
	// OpHead reads object metadata.
	OpHead Op = "HEAD"
)

// Wildcard matches any bucket or prefix in a caveat.
const Wildcard = "*"

// Caveats narrow what a token holder may do. Zero values are permissive:
// an empty Ops list allows every operation, and bucket/prefix default to
// the wildcard when normalized.
type Caveats struct {
	Bucket string   `json:"bucket,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
	Ops    []string `json:"ops,omitempty"`
}

// normalized fills empty bucket/prefix with the wildcard and upper-cases ops
// so caveat evaluation is case-insensitive on operation names.
func (c Caveats) normalized() Caveats {
	out := Caveats{Bucket: c.Bucket, Prefix: c.Prefix}
	if out.Bucket == "" {
		out.Bucket = Wildcard
	}
	if out.Prefix == "" {
		out.Prefix = Wildcard
	}
	for _, op := range c.Ops {
		out.Ops = append(out.Ops, strings.ToUpper(strings.TrimSpace(op)))
	}
	return out
}

// Allows reports whether op on (bucket, key) is permitted by these caveats.
//
// An operation is permitted iff the allowed-ops set is empty or contains op,
// AND the bucket caveat is the wildcard or equals bucket, AND the prefix
// caveat is the wildcard or key starts with it. For LIST without an explicit
// key, callers pass the query-supplied prefix as the key.
func (c Caveats) Allows(op Op, bucket, key string) bool {
	if len(c.Ops) > 0 {
		allowed := false
		want := strings.ToUpper(string(op))
		for _, have := range c.Ops {
			if strings.ToUpper(have) == want {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if c.Bucket != "" && c.Bucket != Wildcard && c.Bucket != bucket {
		return false
	}

	if c.Prefix != "" && c.Prefix != Wildcard && !strings.HasPrefix(key, c.Prefix) {
		return false
	}

	return true
}
