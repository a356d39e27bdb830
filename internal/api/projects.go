package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shardgate/controlplane/internal/billing"
	"github.com/shardgate/controlplane/internal/captoken"
	"github.com/shardgate/controlplane/internal/sigv4"
	"github.com/shardgate/controlplane/internal/state"
)

// CreateProjectRequest is the request body for POST /v1/projects.
type CreateProjectRequest struct {
	Name            string   `json:"name"`
	Owner           string   `json:"owner"`
	Tier            string   `json:"tier"`
	Bucket          string   `json:"bucket"`
	Prefix          string   `json:"prefix"`
	Ops             []string `json:"ops"`
	TokenTTLSeconds int64    `json:"token_ttl_seconds"`
}

// CreateProjectResponse bundles the project with its bootstrap capability
// token and signed-request credential. The secret key is shown only here.
type CreateProjectResponse struct {
	Project    *state.Project    `json:"project"`
	Token      string            `json:"token"`
	TokenID    string            `json:"token_id"`
	Credential *sigv4.Credential `json:"credential"`
}

const defaultTokenTTL = time.Hour

// HandleCreateProject creates a project and issues its first capability
// token and signing credential.
// POST /v1/projects
func (h *Handler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}
	tier, err := billing.ParseTier(req.Tier)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	ttl := defaultTokenTTL
	if req.TokenTTLSeconds > 0 {
		ttl = time.Duration(req.TokenTTLSeconds) * time.Second
	}

	project := &state.Project{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Owner:     req.Owner,
		Tier:      tier,
		CreatedAt: h.now().UTC(),
	}

	caveats := captoken.Caveats{Bucket: req.Bucket, Prefix: req.Prefix, Ops: req.Ops}
	token, payload, err := h.authority.Mint(project.ID, caveats, ttl)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "token mint failed")
		return
	}

	cred, err := h.buildCredential(project.ID, req.Bucket, req.Prefix, req.Ops, 0)
	if err != nil {
		h.logger.Error("credential generation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "credential generation failed")
		return
	}

	h.mu.Lock()
	h.st.Projects[project.ID] = project
	h.st.Credentials[cred.AccessKey] = cred
	h.st.Tokens[payload.ID] = &state.TokenRecord{
		ID:        payload.ID,
		ProjectID: project.ID,
		IssuedAt:  time.Unix(payload.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(payload.ExpiresAt, 0).UTC(),
	}
	h.mu.Unlock()

	if err := h.persist(r.Context()); err != nil {
		h.logger.Error("project create persist failed", "project_id", project.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodePersistence, "state store rejected the write")
		return
	}

	h.audit(r.Context(), "project_created", req.Owner, map[string]string{
		"project_id": project.ID,
		"name":       project.Name,
		"tier":       string(tier),
	})
	h.logger.Info("project created", "project_id", project.ID, "name", project.Name, "tier", tier)

	WriteJSON(w, http.StatusCreated, CreateProjectResponse{
		Project:    project,
		Token:      token,
		TokenID:    payload.ID,
		Credential: cred,
	})
}

// buildCredential assembles a fresh signed-request credential scoped to the
// given caveat fields. Empty bucket/prefix default to the wildcard.
func (h *Handler) buildCredential(projectID, bucket, prefix string, ops []string, ttl time.Duration) (*sigv4.Credential, error) {
	accessKey, err := newAccessKey()
	if err != nil {
		return nil, err
	}
	secretKey, err := h.newSecretKey(accessKey)
	if err != nil {
		return nil, err
	}

	if bucket == "" {
		bucket = sigv4.Wildcard
	}
	if prefix == "" {
		prefix = sigv4.Wildcard
	}

	cred := &sigv4.Credential{
		AccessKey: accessKey,
		SecretKey: secretKey,
		ProjectID: projectID,
		Bucket:    bucket,
		Prefix:    prefix,
		Ops:       ops,
		Region:    sigv4.Wildcard,
		Service:   sigv4.Wildcard,
		Status:    sigv4.StatusActive,
	}
	if ttl > 0 {
		cred.ExpiresAt = h.now().Add(ttl).UTC()
	}
	return cred, nil
}
