package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
)

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Store wraps Redis with degradable semantics: 백엔드가 없거나 죽어 있으면
// 읽기는 miss, 쓰기는 no-op이 된다. 호출자에게 에러를 던지지 않는다.
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New connects to Redis. redisURL이 비어 있으면 캐시 없이 동작하는 Store를 반환한다.
func New(redisURL string, timeout time.Duration) *Store {
	s := &Store{
		prefix:  "hotly:",
		timeout: timeout,
		log:     logger.GetLogger("cache"),
	}
	if timeout <= 0 {
		s.timeout = time.Second
	}

	if redisURL == "" {
		s.log.Warn("REDIS_URL not set, cache store disabled")
		return s
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		s.log.Warnw("invalid redis URL, cache store disabled", "error", err)
		return s
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// 연결 실패해도 클라이언트는 유지. 이후 재연결되면 자동 복구된다.
		s.log.Warnw("redis ping failed, operating in degraded mode", "error", err)
	}

	s.client = client
	return s
}

// Available reports whether a cache backend is configured.
func (s *Store) Available() bool {
	return s.client != nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns (value, true) on hit, ("", false) on miss or backend failure.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if s.client == nil {
		return "", false
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Debugw("cache get failed", "key", key, "error", err)
		return "", false
	}
	return val, true
}

// Set writes a value with TTL. Failures are logged, not returned.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if s.client == nil {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.log.Debugw("cache set failed", "key", key, "error", err)
	}
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if s.client == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		s.log.Debugw("cache delete failed", "keys", keys, "error", err)
	}
}

// IncrSortedSet increments member's score in a sorted set and keeps the set alive for ttl.
func (s *Store) IncrSortedSet(ctx context.Context, setKey, member string, delta float64, ttl time.Duration) {
	if s.client == nil {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.ZIncrBy(ctx, s.prefix+setKey, delta, member)
	if ttl > 0 {
		pipe.Expire(ctx, s.prefix+setKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debugw("sorted set incr failed", "key", setKey, "error", err)
	}
}

// TopSortedSet returns the n highest-scored members, descending.
func (s *Store) TopSortedSet(ctx context.Context, setKey string, n int64) []ScoredMember {
	if s.client == nil || n <= 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	zs, err := s.client.ZRevRangeWithScores(ctx, s.prefix+setKey, 0, n-1).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Debugw("sorted set read failed", "key", setKey, "error", err)
		}
		return nil
	}

	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members
}

// PushCappedList prepends a value to a list and trims it to maxLen.
func (s *Store) PushCappedList(ctx context.Context, listKey, value string, maxLen int64, ttl time.Duration) {
	if s.client == nil {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.prefix+listKey, value)
	if maxLen > 0 {
		pipe.LTrim(ctx, s.prefix+listKey, 0, maxLen-1)
	}
	if ttl > 0 {
		pipe.Expire(ctx, s.prefix+listKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debugw("capped list push failed", "key", listKey, "error", err)
	}
}

// GetList returns all values of a list, head first.
func (s *Store) GetList(ctx context.Context, listKey string) []string {
	if s.client == nil {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	values, err := s.client.LRange(ctx, s.prefix+listKey, 0, -1).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Debugw("list read failed", "key", listKey, "error", err)
		}
		return nil
	}
	return values
}

// SetList replaces a list wholesale, trimmed to maxLen. 히스토리 병합처럼
// 읽고-고쳐-쓰는 경로에서 사용한다.
func (s *Store) SetList(ctx context.Context, listKey string, values []string, maxLen int64, ttl time.Duration) {
	if s.client == nil {
		return
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.prefix+listKey)
	if len(values) > 0 {
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		pipe.RPush(ctx, s.prefix+listKey, args...)
		if maxLen > 0 {
			pipe.LTrim(ctx, s.prefix+listKey, 0, maxLen-1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, s.prefix+listKey, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debugw("list write failed", "key", listKey, "error", err)
	}
}

// Scan returns keys matching pattern (prefix is applied internally and stripped).
func (s *Store) Scan(ctx context.Context, pattern string) []string {
	if s.client == nil {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+pattern, 100).Result()
		if err != nil {
			s.log.Debugw("scan failed", "pattern", pattern, "error", err)
			return keys
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}
