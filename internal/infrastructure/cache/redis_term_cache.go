package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces term keys in a shared redis
const DefaultKeyPrefix = "catalogsync:term:"

// evictScript deletes the key only while it still stores the expected external ID
var evictScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local ok, term = pcall(cjson.decode, v)
if ok and term["external_id"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTermCache implements integration.TermCache using Redis so concurrent runs on
// different hosts share resolved terms
type RedisTermCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisTermCache connects to Redis and verifies the connection
func NewRedisTermCache(ctx context.Context, cfg RedisConfig) (*RedisTermCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTermCacheWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisTermCacheWithClient creates a cache over an existing client
func NewRedisTermCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisTermCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisTermCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// cachedTerm is the stored JSON form of a term
type cachedTerm struct {
	Channel     string    `json:"channel"`
	Kind        string    `json:"kind"`
	ParentID    string    `json:"parent_id,omitempty"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	Key         string    `json:"key"`
	Sequence    int64     `json:"sequence,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitzero"`
}

func encodeTerm(t integration.TaxonomyTerm) ([]byte, error) {
	return json.Marshal(cachedTerm{
		Channel:     string(t.Channel),
		Kind:        string(t.Kind),
		ParentID:    t.ParentID,
		ExternalID:  t.ExternalID,
		DisplayName: t.DisplayName,
		Key:         t.Key,
		Sequence:    t.Sequence,
		ModifiedAt:  t.ModifiedAt,
	})
}

func decodeTerm(data []byte) (integration.TaxonomyTerm, error) {
	var c cachedTerm
	if err := json.Unmarshal(data, &c); err != nil {
		return integration.TaxonomyTerm{}, err
	}
	return integration.TaxonomyTerm{
		Channel:     integration.ChannelKey(c.Channel),
		Kind:        integration.TaxonomyKind(c.Kind),
		ParentID:    c.ParentID,
		ExternalID:  c.ExternalID,
		DisplayName: c.DisplayName,
		Key:         c.Key,
		Sequence:    c.Sequence,
		ModifiedAt:  c.ModifiedAt,
	}, nil
}

func (s *RedisTermCache) key(scope integration.TermScope) string {
	return s.keyPrefix + scope.String()
}

// Get returns the cached term of a scope. A corrupt entry reads as a miss.
func (s *RedisTermCache) Get(ctx context.Context, scope integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	data, err := s.client.Get(ctx, s.key(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return integration.TaxonomyTerm{}, false, nil
	}
	if err != nil {
		return integration.TaxonomyTerm{}, false, fmt.Errorf("failed to read cached term: %w", err)
	}
	term, err := decodeTerm(data)
	if err != nil {
		return integration.TaxonomyTerm{}, false, nil
	}
	return term, true, nil
}

// Put stores a term under its scope with the configured TTL
func (s *RedisTermCache) Put(ctx context.Context, term integration.TaxonomyTerm) error {
	if term.ExternalID == "" {
		return integration.ErrInvalidExternalID
	}
	data, err := encodeTerm(term)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(term.Scope()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache term: %w", err)
	}
	return nil
}

// Evict atomically deletes the scope entry if it still holds the term's external ID
func (s *RedisTermCache) Evict(ctx context.Context, term integration.TaxonomyTerm) error {
	if err := evictScript.Run(ctx, s.client, []string{s.key(term.Scope())}, term.ExternalID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to evict cached term: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisTermCache) Close() error {
	return s.client.Close()
}

// Ensure RedisTermCache implements TermCache
var _ integration.TermCache = (*RedisTermCache)(nil)
