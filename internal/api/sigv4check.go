package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/shardgate/controlplane/internal/captoken"
	"github.com/shardgate/controlplane/internal/metrics"
)

// CheckSignatureRequest is a gateway request envelope replayed for
// verification: the method, path, raw query, and headers exactly as the
// client sent them. The body is never forwarded; the payload hash rides in
// the x-amz-content-sha256 header like any other signed header.
type CheckSignatureRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query"`
	Headers map[string]string `json:"headers"`

	// Optional operation evaluated against the credential's scope after the
	// signature verifies.
	Op     string `json:"op"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CheckSignatureResponse reports the verification verdict. Failures get
// ok=false with a stable reason, never an error status.
type CheckSignatureResponse struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// HandleCheckSignature verifies a signed gateway request. Both transports
// are covered: the Authorization-header form and the presigned query form.
// After the signature verifies, the credential's own scope is re-checked
// against the requested operation, and a credential that embeds a capability
// token additionally requires that token to verify and its caveats to pass.
// POST /v1/sigv4/check (internal)
func (h *Handler) HandleCheckSignature(w http.ResponseWriter, r *http.Request) {
	var req CheckSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}

	replay := &http.Request{
		Method: req.Method,
		URL:    &url.URL{Path: req.Path, RawQuery: req.Query},
		Header: make(http.Header, len(req.Headers)),
	}
	for k, v := range req.Headers {
		replay.Header.Set(k, v)
	}

	cred, err := h.verifier.VerifyRequest(r.Context(), replay)
	if err != nil {
		metrics.RecordAuthFailure(err.Error())
		WriteJSON(w, http.StatusOK, CheckSignatureResponse{OK: false, Reason: err.Error()})
		return
	}

	if req.Op != "" {
		if err := cred.CheckPolicy(captoken.Op(req.Op), req.Bucket, req.Key); err != nil {
			metrics.RecordAuthFailure("policy_violation")
			WriteJSON(w, http.StatusOK, CheckSignatureResponse{OK: false, Reason: err.Error()})
			return
		}
	}

	if cred.Token != "" {
		payload, tokErr := h.authority.Verify(cred.Token)
		if tokErr != nil {
			metrics.RecordAuthFailure("embedded_token_invalid")
			WriteJSON(w, http.StatusOK, CheckSignatureResponse{OK: false, Reason: "embedded token: " + tokErr.Error()})
			return
		}
		if req.Op != "" && !payload.Caveats.Allows(captoken.Op(req.Op), req.Bucket, req.Key) {
			metrics.RecordAuthFailure("embedded_token_caveats")
			WriteJSON(w, http.StatusOK, CheckSignatureResponse{OK: false, Reason: "operation not permitted by embedded token caveats"})
			return
		}
	}

	WriteJSON(w, http.StatusOK, CheckSignatureResponse{
		OK:        true,
		AccessKey: cred.AccessKey,
		ProjectID: cred.ProjectID,
	})
}
