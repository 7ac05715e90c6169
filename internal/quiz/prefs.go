package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/dsc-prep/internal/platform/cache"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// PrefsKey versions the stored configuration schema. Bump it when Config
// changes incompatibly so old entries fall back to defaults.
const PrefsKey = "ap_dsc_quiz_config_v2"

// ErrNoPrefs is returned when nothing is stored for a client.
var ErrNoPrefs = errors.New("no stored configuration")

// PrefsStore keeps each client's last submitted configuration.
type PrefsStore interface {
	LoadConfig(ctx context.Context, clientID string) (Config, error)
	SaveConfig(ctx context.Context, clientID string, cfg Config) error
}

// LoadPrefs returns the client's stored configuration, or the defaults when
// nothing valid is stored.
func LoadPrefs(ctx context.Context, store PrefsStore, clientID string, table *syllabus.Table) Config {
	cfg, err := store.LoadConfig(ctx, clientID)
	if err != nil {
		if !errors.Is(err, ErrNoPrefs) {
			slog.Warn("loading stored quiz configuration", "client_id", clientID, "error", err)
		}
		return DefaultConfig(table)
	}
	if err := cfg.Validate(table); err != nil {
		slog.Warn("stored quiz configuration is invalid, using defaults", "client_id", clientID, "error", err)
		return DefaultConfig(table)
	}
	return cfg
}

func prefsKey(clientID string) string {
	return PrefsKey + ":" + clientID
}

// MemoryPrefsStore keeps configurations in memory as JSON.
type MemoryPrefsStore struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryPrefsStore creates an empty in-memory prefs store.
func NewMemoryPrefsStore() *MemoryPrefsStore {
	return &MemoryPrefsStore{data: make(map[string][]byte)}
}

func (s *MemoryPrefsStore) LoadConfig(_ context.Context, clientID string) (Config, error) {
	s.mu.RLock()
	raw, ok := s.data[prefsKey(clientID)]
	s.mu.RUnlock()
	if !ok {
		return Config{}, ErrNoPrefs
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode stored configuration: %w", err)
	}
	return cfg, nil
}

func (s *MemoryPrefsStore) SaveConfig(_ context.Context, clientID string, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	s.mu.Lock()
	s.data[prefsKey(clientID)] = raw
	s.mu.Unlock()
	return nil
}

// RedisPrefsStore keeps configurations in Redis/Dragonfly.
type RedisPrefsStore struct {
	cache *cache.Cache
}

// NewRedisPrefsStore creates a prefs store on an existing cache client.
func NewRedisPrefsStore(c *cache.Cache) *RedisPrefsStore {
	return &RedisPrefsStore{cache: c}
}

func (s *RedisPrefsStore) LoadConfig(ctx context.Context, clientID string) (Config, error) {
	var cfg Config
	err := s.cache.GetJSON(ctx, prefsKey(clientID), &cfg)
	if errors.Is(err, cache.ErrMiss) {
		return Config{}, ErrNoPrefs
	}
	return cfg, err
}

func (s *RedisPrefsStore) SaveConfig(ctx context.Context, clientID string, cfg Config) error {
	return s.cache.SetJSON(ctx, prefsKey(clientID), cfg, 0)
}
