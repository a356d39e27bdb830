package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/sigv4"
)

// CreateKeyRequest is the request body for POST /v1/sigv4/keys.
type CreateKeyRequest struct {
	ProjectID        string   `json:"project_id"`
	Token            string   `json:"token"`
	Bucket           string   `json:"bucket"`
	Prefix           string   `json:"prefix"`
	Ops              []string `json:"ops"`
	Region           string   `json:"region"`
	Service          string   `json:"service"`
	ExpiresInSeconds int64    `json:"expires_in_seconds"`
}

// KeySummary is a credential without its secret, for listings.
type KeySummary struct {
	AccessKey string    `json:"access_key"`
	ProjectID string    `json:"project_id,omitempty"`
	Bucket    string    `json:"bucket"`
	Prefix    string    `json:"prefix"`
	Ops       []string  `json:"ops"`
	Region    string    `json:"region"`
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func summarize(c *sigv4.Credential) KeySummary {
	return KeySummary{
		AccessKey: c.AccessKey,
		ProjectID: c.ProjectID,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		Ops:       c.Ops,
		Region:    c.Region,
		Service:   c.Service,
		Status:    c.Status,
		ExpiresAt: c.ExpiresAt,
	}
}

// HandleCreateKey creates a signed-request credential. A derivation token may
// be supplied instead of a project id; the credential then inherits the
// token's project and caveats.
// POST /v1/sigv4/keys
func (h *Handler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	projectID := req.ProjectID
	bucket, prefix, ops := req.Bucket, req.Prefix, req.Ops

	if req.Token != "" {
		payload, err := h.authority.Verify(req.Token)
		if err != nil {
			metrics.RecordAuthFailure(err.Error())
			WriteError(w, authStatus(err), ErrCodeAuthFailed, err.Error())
			return
		}
		projectID = payload.ProjectID
		bucket, prefix, ops = payload.Caveats.Bucket, payload.Caveats.Prefix, payload.Caveats.Ops
	}
	if projectID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project_id or token is required")
		return
	}

	h.mu.Lock()
	_, known := h.st.Projects[projectID]
	h.mu.Unlock()
	if !known {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown project")
		return
	}

	var ttl time.Duration
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}
	cred, err := h.buildCredential(projectID, bucket, prefix, ops, ttl)
	if err != nil {
		h.logger.Error("credential generation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "credential generation failed")
		return
	}
	if req.Region != "" {
		cred.Region = req.Region
	}
	if req.Service != "" {
		cred.Service = req.Service
	}
	cred.Token = req.Token

	h.mu.Lock()
	h.st.Credentials[cred.AccessKey] = cred
	h.mu.Unlock()

	if err := h.persist(r.Context()); err != nil {
		h.logger.Error("key create persist failed", "access_key", cred.AccessKey, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodePersistence, "state store rejected the write")
		return
	}

	h.audit(r.Context(), "credential_created", projectID, map[string]string{"access_key": cred.AccessKey})
	h.logger.Info("credential created", "access_key", cred.AccessKey, "project_id", projectID)

	// The secret is shown once, in this response.
	WriteJSON(w, http.StatusCreated, cred)
}

// HandleListKeys lists credentials without secrets.
// GET /v1/sigv4/keys
func (h *Handler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	out := make([]KeySummary, 0, len(h.st.Credentials))
	for _, c := range h.st.Credentials {
		out = append(out, summarize(c))
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccessKey < out[j].AccessKey })
	WriteJSON(w, http.StatusOK, out)
}

// RevokeKeyRequest is the request body for POST /v1/sigv4/keys/revoke.
type RevokeKeyRequest struct {
	AccessKey string `json:"access_key"`
}

// HandleRevokeKey marks a credential revoked. The record is kept so resolve
// reports a specific revocation failure rather than an unknown key.
// POST /v1/sigv4/keys/revoke
func (h *Handler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	h.mu.Lock()
	cred, ok := h.st.Credentials[req.AccessKey]
	if ok {
		cred.Status = sigv4.StatusRevoked
	}
	h.mu.Unlock()
	if !ok {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown access key")
		return
	}

	// Drop any cached copy so in-flight verification sees the revocation.
	h.resolver.Invalidate(req.AccessKey)

	if err := h.persist(r.Context()); err != nil {
		h.logger.Error("key revoke persist failed", "access_key", req.AccessKey, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodePersistence, "state store rejected the write")
		return
	}

	h.audit(r.Context(), "credential_revoked", "", map[string]string{"access_key": req.AccessKey})
	WriteJSON(w, http.StatusOK, map[string]any{"access_key": req.AccessKey, "status": sigv4.StatusRevoked})
}

// ResolveKeyRequest is the request body for POST /v1/sigv4/resolve.
type ResolveKeyRequest struct {
	AccessKey string `json:"access_key"`
}

// HandleResolveKey resolves an access key to its full credential, secret
// included. Internal-only: the gateway calls this to verify signatures at
// its edge, and the route sits behind the shared internal token.
// POST /v1/sigv4/resolve
func (h *Handler) HandleResolveKey(w http.ResponseWriter, r *http.Request) {
	var req ResolveKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	cred, err := h.resolver.Resolve(r.Context(), req.AccessKey)
	if err != nil {
		metrics.RecordAuthFailure(err.Error())
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	if cred.Status == sigv4.StatusRevoked {
		metrics.RecordAuthFailure(sigv4.ErrCredentialRevoked.Error())
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, sigv4.ErrCredentialRevoked.Error())
		return
	}

	WriteJSON(w, http.StatusOK, cred)
}
