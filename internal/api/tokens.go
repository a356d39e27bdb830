package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shardgate/controlplane/internal/captoken"
	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/state"
)

// MintTokenRequest is the request body for POST /v1/tokens/macaroon.
type MintTokenRequest struct {
	ProjectID  string `json:"project_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Caveats    struct {
		Bucket string   `json:"bucket"`
		Prefix string   `json:"prefix"`
		Ops    []string `json:"ops"`
	} `json:"caveats"`
}

// MintTokenResponse returns the minted token and its decoded payload.
type MintTokenResponse struct {
	Token   string            `json:"token"`
	Payload *captoken.Payload `json:"payload"`
}

// HandleMintToken mints a caveat-scoped capability token for a project.
// POST /v1/tokens/macaroon
func (h *Handler) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	var req MintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project_id is required")
		return
	}

	h.mu.Lock()
	_, known := h.st.Projects[req.ProjectID]
	h.mu.Unlock()
	if !known {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown project")
		return
	}

	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	caveats := captoken.Caveats{
		Bucket: req.Caveats.Bucket,
		Prefix: req.Caveats.Prefix,
		Ops:    req.Caveats.Ops,
	}
	token, payload, err := h.authority.Mint(req.ProjectID, caveats, ttl)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	h.mu.Lock()
	h.st.Tokens[payload.ID] = &state.TokenRecord{
		ID:        payload.ID,
		ProjectID: req.ProjectID,
		IssuedAt:  time.Unix(payload.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(payload.ExpiresAt, 0).UTC(),
	}
	h.mu.Unlock()
	h.persistBestEffort(r.Context())

	h.audit(r.Context(), "token_minted", req.ProjectID, map[string]string{"token_id": payload.ID})

	WriteJSON(w, http.StatusCreated, MintTokenResponse{Token: token, Payload: payload})
}

// VerifyTokenRequest is the request body for POST /v1/tokens/verify.
type VerifyTokenRequest struct {
	Token string `json:"token"`

	// Optional operation check evaluated against the token's caveats.
	Op     string `json:"op"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// VerifyTokenResponse reports the verification outcome. Invalid tokens get
// ok=false with a stable reason, never an error status.
type VerifyTokenResponse struct {
	OK      bool              `json:"ok"`
	Reason  string            `json:"reason,omitempty"`
	Payload *captoken.Payload `json:"payload,omitempty"`
}

// HandleVerifyToken verifies a capability token and optionally evaluates an
// operation against its caveats.
// POST /v1/tokens/verify
func (h *Handler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	payload, err := h.authority.Verify(req.Token)
	if err != nil {
		metrics.RecordAuthFailure(err.Error())
		WriteJSON(w, http.StatusOK, VerifyTokenResponse{OK: false, Reason: err.Error()})
		return
	}

	if req.Op != "" && !payload.Caveats.Allows(captoken.Op(req.Op), req.Bucket, req.Key) {
		metrics.RecordAuthFailure("caveat_violation")
		WriteJSON(w, http.StatusOK, VerifyTokenResponse{OK: false, Reason: "operation not permitted by caveats"})
		return
	}

	WriteJSON(w, http.StatusOK, VerifyTokenResponse{OK: true, Payload: payload})
}

// RevokeTokenRequest is the request body for POST /v1/tokens/revoke.
type RevokeTokenRequest struct {
	TokenID string `json:"token_id"`
}

// HandleRevokeToken marks an issued token id revoked. Verification of that
// token fails from here on.
// POST /v1/tokens/revoke
func (h *Handler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	h.mu.Lock()
	rec, ok := h.st.Tokens[req.TokenID]
	if ok {
		rec.Revoked = true
	}
	h.mu.Unlock()
	if !ok {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown token id")
		return
	}

	if err := h.persist(r.Context()); err != nil {
		h.logger.Error("token revoke persist failed", "token_id", req.TokenID, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodePersistence, "state store rejected the write")
		return
	}

	h.audit(r.Context(), "token_revoked", "", map[string]string{"token_id": req.TokenID})
	WriteJSON(w, http.StatusOK, map[string]any{"token_id": req.TokenID, "revoked": true})
}
