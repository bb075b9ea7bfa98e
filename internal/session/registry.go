package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// State is the persisted form of one open assessment session. Payloads
// are kept raw so a finalize can re-resolve them deterministically;
// per-domain outcomes are cached from submission time.
type State struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// CatalogueVersion pins the snapshot the cached outcomes were
	// evaluated against. Finalize re-evaluates when it has drifted.
	CatalogueVersion string `json:"catalogueVersion"`

	Payloads map[string]*domain.Payload  `json:"payloads"`
	Outcomes map[string][]domain.Outcome `json:"outcomes"`

	// Per-domain ingest and evaluate time, accumulated across submissions.
	IngestMs   int64 `json:"ingestMs"`
	EvaluateMs int64 `json:"evaluateMs"`
}

func newState(id string) *State {
	return &State{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Payloads:  make(map[string]*domain.Payload),
		Outcomes:  make(map[string][]domain.Outcome),
	}
}

// Registry persists session state in a SessionStore with a TTL, so an
// abandoned session expires instead of leaking.
type Registry struct {
	store domain.SessionStore
	ttl   time.Duration
}

// NewRegistry wraps a session store.
func NewRegistry(store domain.SessionStore, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{store: store, ttl: ttl}
}

// Get loads one session, or ErrNotFound when it is absent or expired.
func (r *Registry) Get(ctx context.Context, id string) (*State, error) {
	raw, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &st, nil
}

// Save writes the session back, refreshing its TTL.
func (r *Registry) Save(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.store.Set(ctx, st.ID, raw, r.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a finalized or abandoned session.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}
