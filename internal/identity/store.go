package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"agrispy.dev/agrispy/internal/storage"
	"agrispy.dev/agrispy/pkg/metrics"
)

// StorageKey is the storage entry holding the JSON snapshot.
const StorageKey = "agrispy_user"

// Store holds the current Identity and mirrors it to durable storage.
type Store struct {
	backend storage.Store
	logger  *slog.Logger
	metrics *metrics.SessionMetrics

	mu      sync.RWMutex
	current *Identity
}

// NewStore returns an empty store over backend. Call Load to restore a
// previous session.
func NewStore(backend storage.Store, logger *slog.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage backend cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{backend: backend, logger: logger}, nil
}

// SetMetrics attaches snapshot failure counters. Optional.
func (s *Store) SetMetrics(m *metrics.SessionMetrics) {
	s.metrics = m
}

func (s *Store) countError(reason string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(reason).Inc()
	}
}

// Load restores the persisted snapshot. A snapshot that does not parse or
// validate is deleted; read failures leave the store signed out. Load never
// fails.
func (s *Store) Load(ctx context.Context) {
	raw, err := s.backend.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.set(nil)
		return
	}
	if err != nil {
		s.logger.Error("failed to read persisted identity", "error", err)
		s.countError("read")
		s.set(nil)
		return
	}

	// Parse and validate the snapshot
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.discard(ctx, err)
		return
	}
	if err := id.Validate(); err != nil {
		s.discard(ctx, err)
		return
	}

	s.set(&id)
	s.logger.Info("restored identity", "id", id.ID, "role", id.Role)
}

func (s *Store) discard(ctx context.Context, cause error) {
	s.logger.Warn("discarding malformed identity snapshot", "error", cause)
	s.countError("corrupt")
	s.set(nil)
	if err := s.backend.Delete(ctx, StorageKey); err != nil {
		s.logger.Error("failed to delete malformed identity snapshot", "error", err)
		s.countError("delete")
	}
}

// Set persists id and makes it current. On error the previous identity stays
// in place.
func (s *Store) Set(ctx context.Context, id Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	// Encode snapshot
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Persist first, then commit in memory
	if err := s.backend.Set(ctx, StorageKey, string(data)); err != nil {
		s.countError("write")
		return fmt.Errorf("identity: persist: %w", err)
	}
	s.current = &id
	return nil
}

// Clear signs out. Memory is always cleared; a storage failure is returned.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.backend.Delete(ctx, StorageKey); err != nil {
		s.countError("delete")
		return fmt.Errorf("identity: remove snapshot: %w", err)
	}
	return nil
}

// Current returns a copy of the identity and whether one is set.
func (s *Store) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Identity{}, false
	}
	return *s.current, true
}

func (s *Store) set(id *Identity) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}
