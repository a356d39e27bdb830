// Package api exposes the control-plane HTTP surface: project and token
// lifecycle, signed-request credential management, node health ingestion,
// placement planning, and billing previews.
package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shardgate/controlplane/internal/captoken"
	"github.com/shardgate/controlplane/internal/config"
	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/reliability"
	"github.com/shardgate/controlplane/internal/sigv4"
	"github.com/shardgate/controlplane/internal/state"
)

// Handler carries the wired control-plane services. It owns the in-memory
// working state; the state store is its durable tier.
type Handler struct {
	cfg      *config.Config
	logger   *slog.Logger
	logLevel *slog.LevelVar

	store     state.Store
	authority *captoken.Authority
	verifier  *sigv4.Verifier
	resolver  *sigv4.CachingResolver
	registry  *reliability.Registry
	now       func() time.Time

	mu sync.Mutex
	st *state.State
}

// NewHandler loads persisted state and wires the token authority, signature
// verifier, and node registry against it.
func NewHandler(cfg *config.Config, store state.Store, logLevel *slog.LevelVar, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	h := &Handler{
		cfg:      cfg,
		logger:   logger,
		logLevel: logLevel,
		store:    store,
		now:      time.Now,
	}

	st, err := store.Load(context.Background())
	if errors.Is(err, state.ErrNoState) {
		st = state.NewState()
	} else if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	h.st = st

	policy := reliability.DefaultPolicy()
	policy.Risk.StalenessThreshold = cfg.StalenessThreshold
	policy.QuarantineAnomaly = cfg.AnomalyQuarantine
	policy.OfflineTimeout = cfg.OfflineTimeout
	h.registry = reliability.NewRegistry(policy)
	h.registry.Load(st.Nodes)

	h.authority = captoken.NewAuthority([]byte(cfg.TokenSecret)).
		WithRevocationCheck(h.tokenRevoked)

	h.resolver = sigv4.NewCachingResolver(
		sigv4.ResolverFunc(h.resolveCredential), cfg.CredentialCacheTTL)
	h.verifier = sigv4.NewVerifier(h.resolver, cfg.ClockSkew)

	return h, nil
}

// tokenRevoked reports whether a minted token id has been revoked. Unknown
// ids are not revoked: tokens stay stateless unless explicitly tracked.
func (h *Handler) tokenRevoked(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.st.Tokens[id]
	return ok && rec.Revoked
}

// resolveCredential is the upstream for the credential cache: access keys
// resolve against the working state.
func (h *Handler) resolveCredential(_ context.Context, accessKey string) (*sigv4.Credential, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cred, ok := h.st.Credentials[accessKey]
	if !ok {
		return nil, sigv4.ErrUnknownAccessKey
	}
	// Hand out a copy; the caller and the cache must not share the live record.
	out := *cred
	out.Ops = append([]string(nil), cred.Ops...)
	return &out, nil
}

// persist folds the live registry back into the working state and saves it.
// Callers hold no h.mu lock.
func (h *Handler) persist(ctx context.Context) error {
	h.mu.Lock()
	h.st.Nodes = h.registry.Export()
	snapshot := h.st.Clone()
	h.mu.Unlock()

	if err := h.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// persistBestEffort saves without failing the caller; hot-path telemetry
// writes land here.
func (h *Handler) persistBestEffort(ctx context.Context) {
	if err := h.persist(ctx); err != nil {
		h.logger.Warn("best-effort state save failed", "error", err)
	}
}

// audit appends a record to the audit trail, best-effort.
func (h *Handler) audit(ctx context.Context, kind, actor string, detail any) {
	rec := state.NewAuditRecord(kind, actor, detail)
	if err := h.store.AppendAudit(ctx, rec); err != nil {
		h.logger.Debug("audit append failed", "kind", kind, "error", err)
	}
}

// updateNodeGauges refreshes the per-status node gauge from the registry.
func (h *Handler) updateNodeGauges() {
	counts := map[reliability.Status]int{
		reliability.StatusActive:      0,
		reliability.StatusProbation:   0,
		reliability.StatusQuarantined: 0,
		reliability.StatusOffline:     0,
	}
	for _, n := range h.registry.List("", "") {
		counts[n.Status]++
	}
	for status, count := range counts {
		metrics.SetNodeStatusCount(string(status), count)
	}
}

// newAccessKey generates a fresh access-key id.
func newAccessKey() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	return "SGK" + hex.EncodeToString(raw), nil
}

// newSecretKey derives a signing secret from fresh randomness mixed with the
// configured salt and the access key.
func (h *Handler) newSecretKey(accessKey string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	mac := sha256.New()
	mac.Write([]byte(h.cfg.SigningSalt))
	mac.Write([]byte(accessKey))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
