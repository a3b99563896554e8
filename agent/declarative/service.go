package declarative

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/kv"
	"github.com/relaycore/orchestrator/types"
)

const cacheKeyPrefix = "agent:"

// Service is the Agent Loader (spec.md §4.12): it reads definition files
// from a configured directory at startup, parses each into an
// AgentDefinition, caches the structured form in KV under agent:{id} with a
// configured TTL, and serves get/list from an in-memory index that a file
// watcher keeps current.
type Service struct {
	mu    sync.RWMutex
	byID  map[string]*AgentDefinition
	order []string // insertion order, for List()

	dir      string
	loader   AgentLoader
	store    kv.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewService creates a Loader over dir, backed by store for the agent:{id}
// cache. store may be nil to disable caching (in-memory index only).
func NewService(dir string, store kv.Store, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		byID:     make(map[string]*AgentDefinition),
		dir:      dir,
		loader:   NewYAMLLoader(),
		store:    store,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// LoadAll scans dir for .yaml/.yml/.json files, parses each into an
// AgentDefinition, and populates both the in-memory index and the KV
// cache. A parse failure on one file is logged and skipped; it does not
// abort the scan of the remaining files.
func (s *Service) LoadAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read agent definitions dir: %w", err)
	}

	loaded := make(map[string]*AgentDefinition)
	var order []string

	for _, entry := range entries {
		if entry.IsDir() || detectFormat(entry.Name()) == "" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		def, err := s.loader.LoadFile(path)
		if err != nil {
			s.logger.Warn("skipping unparsable agent definition",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if def.ID == "" {
			s.logger.Warn("skipping agent definition with empty id", zap.String("path", path))
			continue
		}
		if _, dup := loaded[def.ID]; dup {
			return fmt.Errorf("duplicate agent id %q in %s", def.ID, path)
		}

		loaded[def.ID] = def
		order = append(order, def.ID)

		if s.store != nil {
			if err := s.cache(ctx, def); err != nil {
				s.logger.Warn("failed to cache agent definition",
					zap.String("id", def.ID), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.byID = loaded
	s.order = order
	s.mu.Unlock()

	return nil
}

// cache stores def's JSON encoding under agent:{id} with s.cacheTTL. A
// non-positive TTL caches with no expiry.
func (s *Service) cache(ctx context.Context, def *AgentDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	key := cacheKeyPrefix + def.ID
	if s.cacheTTL <= 0 {
		return s.store.Set(ctx, key, string(data))
	}
	return s.store.SetEx(ctx, key, string(data), s.cacheTTL)
}

// Get resolves an agent by id from the in-memory index, returning
// ErrAgentNotFound if unknown.
func (s *Service) Get(id string) (*AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.byID[id]
	if !ok {
		available := make([]string, len(s.order))
		copy(available, s.order)
		return nil, types.NewError(types.ErrAgentNotFound, fmt.Sprintf("agent %q not found", id)).WithAvailableAgents(available)
	}
	return def, nil
}

// List returns every loaded agent definition, in load order.
func (s *Service) List() []*AgentDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AgentDefinition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Reload re-parses a single definition file and replaces its cached entry
// atomically. A parse failure leaves the previously cached entry intact.
func (s *Service) Reload(ctx context.Context, path string) error {
	def, err := s.loader.LoadFile(path)
	if err != nil {
		s.logger.Warn("agent definition reload failed, keeping previous entry",
			zap.String("path", path), zap.Error(err))
		return err
	}
	if def.ID == "" {
		return fmt.Errorf("agent definition at %s has empty id", path)
	}

	s.mu.Lock()
	if _, existed := s.byID[def.ID]; !existed {
		s.order = append(s.order, def.ID)
	}
	s.byID[def.ID] = def
	s.mu.Unlock()

	if s.store != nil {
		if err := s.cache(ctx, def); err != nil {
			s.logger.Warn("failed to refresh agent cache entry",
				zap.String("id", def.ID), zap.Error(err))
		}
	}

	s.logger.Info("reloaded agent definition", zap.String("id", def.ID), zap.String("path", path))
	return nil
}

// WatchFunc returns a callback suitable for config.FileWatcher.OnChange: it
// reloads the changed path and logs (rather than propagates) any failure, so
// one bad file never stops the watcher's dispatch loop.
func (s *Service) WatchFunc() func(path string) {
	return func(path string) {
		_ = s.Reload(context.Background(), path)
	}
}
