// Package conversation implements the Conversation Store from spec.md
// §4.13: a rolling, per-(user, agent) message log held in kv.Store with a
// refreshed TTL and a fixed retention cap.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/kv"
	"github.com/relaycore/orchestrator/types"
)

const (
	keyTTL     = 3600 * time.Second
	historyCap = 50
)

// Store implements append/history/clear over a single kv.Store key per
// (user_id, agent_id) pair: conversation:{user_id}:{agent_id}.
type Store struct {
	kv     kv.Store
	locks  keyedMutex
	logger *zap.Logger
}

// NewStore builds a Store over an existing kv.Store.
func NewStore(store kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: store, logger: logger.With(zap.String("component", "conversation.store"))}
}

func conversationKey(userID, agentID string) string {
	return fmt.Sprintf("conversation:%s:%s", userID, agentID)
}

// Append adds msg to the (user_id, agent_id) history, evicting the oldest
// entry once the cap is exceeded and refreshing the key's TTL. System
// messages are never stored — they are rebuilt per turn from the agent
// definition, per spec.md §4.13 — so Append silently no-ops for them.
// Concurrent appends to the same key are serialized by a per-key lock
// rather than a KV-level CAS, since kv.Store exposes no compare-and-swap
// primitive.
func (s *Store) Append(ctx context.Context, userID, agentID string, msg types.Message) error {
	if msg.Role == types.RoleSystem {
		return nil
	}

	key := conversationKey(userID, agentID)
	unlock := s.locks.Lock(key)
	defer unlock()

	history, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	history = append(history, msg)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("conversation store: marshal history: %w", err)
	}
	return s.kv.SetEx(ctx, key, string(data), keyTTL)
}

// History returns the stored messages for (user_id, agent_id), oldest first.
// An absent key returns an empty, non-nil slice.
func (s *Store) History(ctx context.Context, userID, agentID string) ([]types.Message, error) {
	key := conversationKey(userID, agentID)
	unlock := s.locks.Lock(key)
	defer unlock()
	return s.load(ctx, key)
}

// Clear removes all stored history for (user_id, agent_id).
func (s *Store) Clear(ctx context.Context, userID, agentID string) error {
	key := conversationKey(userID, agentID)
	unlock := s.locks.Lock(key)
	defer unlock()
	return s.kv.Del(ctx, key)
}

func (s *Store) load(ctx context.Context, key string) ([]types.Message, error) {
	raw, err := s.kv.Get(ctx, key)
	if err == kv.ErrNotFound {
		return []types.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation store: read history: %w", err)
	}

	var history []types.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("conversation store: unmarshal history: %w", err)
	}
	return history, nil
}

// keyedMutex serializes operations on the same string key while letting
// distinct keys proceed concurrently. Per-key *sync.Mutex entries are never
// evicted — acceptable given the bounded, slowly-changing (user_id,
// agent_id) key space a single orchestrator process actually serves.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the lock for key and returns a function that releases it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
