package ledger

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// RedisStore keeps the ledger in Redis.
// Each Open dials a fresh client and each Close releases it, so no connection
// outlives the operation that needed it.
type RedisStore struct {
	opts      *redis.Options
	namespace string
}

// NewRedisStore creates a ledger store for the given namespace.
// Returns an error if namespace is empty.
func NewRedisStore(opts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}

	return &RedisStore{opts: opts, namespace: namespace}, nil
}

// NewRedisStoreFromURL parses a redis:// URL and creates a store.
func NewRedisStoreFromURL(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStore(opts, namespace)
}

// Namespace returns the namespace all keys are scoped to.
func (s *RedisStore) Namespace() string {
	return s.namespace
}

// Open connects to Redis and verifies the connection before returning.
func (s *RedisStore) Open(ctx context.Context, mode Mode) (Session, error) {
	rdb := redis.NewClient(s.opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis not reachable: %w", err)
	}

	return &redisSession{rdb: rdb, namespace: s.namespace, mode: mode}, nil
}

type redisSession struct {
	rdb       *redis.Client
	namespace string
	mode      Mode
	closed    bool
}

func (s *redisSession) usable(write bool) error {
	if s.closed {
		return ErrClosed
	}
	if write && s.mode == ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *redisSession) Has(ctx context.Context, key string) (bool, error) {
	if err := s.usable(false); err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}

	n, err := s.rdb.Exists(ctx, JobKey(s.namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return n > 0, nil
}

func (s *redisSession) Get(ctx context.Context, key string) (*Job, error) {
	if err := s.usable(false); err != nil {
		return nil, err
	}

	hash, err := s.rdb.HGetAll(ctx, JobKey(s.namespace, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hash) == 0 {
		return nil, ErrNotFound
	}

	job, err := HashToJob(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize job %s: %w", key, err)
	}
	return job, nil
}

func (s *redisSession) Put(ctx context.Context, job *Job) error {
	if err := s.usable(true); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	if err := s.rdb.HSet(ctx, JobKey(s.namespace, job.Key), JobToHash(job)).Err(); err != nil {
		return fmt.Errorf("failed to write job to Redis: %w", err)
	}
	return nil
}

func (s *redisSession) Remove(ctx context.Context, job *Job) error {
	if err := s.usable(true); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, JobKey(s.namespace, job.Key)).Err(); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", job.Key, err)
	}
	return nil
}

func (s *redisSession) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := s.usable(false); err != nil {
			yield("", err)
			return
		}

		prefix := JobKeyPrefix(s.namespace)
		// SCAN may return a key more than once while the keyspace is rehashing
		seen := make(map[string]struct{})

		it := s.rdb.Scan(ctx, 0, JobKeyPattern(s.namespace), scanBatch).Iterator()
		for it.Next(ctx) {
			key := strings.TrimPrefix(it.Val(), prefix)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !yield(key, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", fmt.Errorf("failed to scan job keys: %w", err))
		}
	}
}

func (s *redisSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rdb.Close()
}
