// Package logging provides utilities for secure logging with data masking.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaskHeader redacts sensitive header values based on header name.
// Returns the redacted value suitable for logging.
//
// Rules:
// - Secret-bearing headers: "[REDACTED]" (no partial reveal)
// - Token/credential headers: "****" + last4chars (e.g., "****ab3f")
// - Other headers: returned unchanged
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	// Secret material - full redaction.
	if strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "password") ||
		lowerName == "x-amz-security-token" {
		return "[REDACTED]"
	}

	// Tokens and signatures - show last 4 chars for correlation.
	if lowerName == "authorization" ||
		lowerName == "x-internal-token" ||
		lowerName == "x-capability-token" {
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// MaskQueryParam redacts sensitive presigned-URL query parameters so request
// logging can never leak a reusable signature.
func MaskQueryParam(name, value string) string {
	switch strings.ToLower(name) {
	case "x-amz-signature":
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	case "x-amz-security-token":
		return "[REDACTED]"
	}
	return value
}

// sensitiveJSONFields are body fields that are always redacted, whatever the
// payload shape: credential secrets and freshly minted tokens.
var sensitiveJSONFields = map[string]bool{
	"secret_key":     true,
	"token":          true,
	"token_secret":   true,
	"signing_secret": true,
}

// MaskJSONBody redacts secret-bearing fields in a JSON body, recursing
// through nested objects and arrays. Bodies that fail to parse are returned
// unchanged; masking is best-effort for logs, not a validation layer.
func MaskJSONBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	masked := maskJSONValue(data)

	result, err := json.Marshal(masked)
	if err != nil {
		return body
	}
	return result
}

// maskJSONValue recursively redacts sensitive fields.
func maskJSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		for key, val := range v {
			if sensitiveJSONFields[strings.ToLower(key)] {
				result[key] = "[REDACTED]"
				continue
			}
			result[key] = maskJSONValue(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = maskJSONValue(item)
		}
		return result
	default:
		return value
	}
}

// FormatBinaryData formats binary data for logging.
// Returns a human-readable size indicator.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
