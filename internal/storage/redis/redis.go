// Package redis stores the agent's memory, projects and conversations in
// Redis so several agent processes can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client *goredis.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

// Open connects to Redis and checks the connection with PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dwy"
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) Close() error { return s.client.Close() }

// putRetries bounds how often PutEntry retries after a concurrent write to
// the key set.
const putRetries = 5

func (s *Store) PutEntry(ctx context.Context, e domain.MemoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	keys := s.key("entry_keys")
	put := func(tx *goredis.Tx) error {
		exists, err := tx.SIsMember(ctx, keys, e.Key).Result()
		if err != nil {
			return fmt.Errorf("failed to check entry key: %w", err)
		}
		if exists {
			return fmt.Errorf("entry %s already exists", e.Key)
		}
		// The key and the entry land together or not at all.
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SAdd(ctx, keys, e.Key)
			pipe.RPush(ctx, s.key("entries"), data)
			return nil
		})
		return err
	}

	for i := 0; i < putRetries; i++ {
		err = s.client.Watch(ctx, put, keys)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (s *Store) RecentEntries(ctx context.Context, limit int) ([]domain.MemoryEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.key("entries"), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return decodeEntries(raw)
}

func (s *Store) SearchEntries(ctx context.Context, query string, limit int) ([]domain.MemoryEntry, error) {
	all, err := s.RecentEntries(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []domain.MemoryEntry
	for _, e := range all {
		if storage.Matches(e, query) {
			out = append(out, e)
		}
	}
	return storage.Tail(out, limit), nil
}

func decodeEntries(raw []string) ([]domain.MemoryEntry, error) {
	out := make([]domain.MemoryEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.MemoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) CountEntries(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key("entries")).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

func (s *Store) SaveProject(ctx context.Context, p *domain.Project) error {
	return s.put(ctx, s.key("project", p.ID), p)
}

func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	if err := s.get(ctx, s.key("project", id), &p); err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	return s.put(ctx, s.key("conversation", c.ID), c)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := s.get(ctx, s.key("conversation", id), &c); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// Flush deletes every key under the store's prefix. Used by tests.
func (s *Store) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
