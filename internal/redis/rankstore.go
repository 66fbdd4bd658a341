package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sprintboard/internal/config"
	"github.com/sprintboard/internal/domain"
)

// globalBoard is the pseudo country code for the worldwide board.
const globalBoard = "global"

// RankStore provides Redis-based rank operations over sprint times.
// Scores are time in seconds, ascending: a lower score is a better rank.
type RankStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankStore creates a new Redis rank store
func NewRankStore(cfg *config.RedisConfig, logger *slog.Logger) (*RankStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RankStore{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RankStore) Close() error {
	return s.client.Close()
}

// boardKey returns the Redis key for a country's sorted set. The member
// is the result id, the score its time in seconds.
func (s *RankStore) boardKey(country string) string {
	if country == "" {
		country = globalBoard
	}
	return fmt.Sprintf("results:%s:times", country)
}

// globalKey returns the Redis key for the worldwide sorted set
func (s *RankStore) globalKey() string {
	return s.boardKey(globalBoard)
}

// AddResult records a finished sprint in both the country and the global set
func (s *RankStore) AddResult(ctx context.Context, country string, resultID int64, timeSec float64) error {
	member := strconv.FormatInt(resultID, 10)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.boardKey(country), redis.Z{Score: timeSec, Member: member})
	pipe.ZAdd(ctx, s.globalKey(), redis.Z{Score: timeSec, Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("adding result: %w", err)
	}
	return nil
}

// Remove drops a result from both sets
func (s *RankStore) Remove(ctx context.Context, country string, resultID int64) error {
	member := strconv.FormatInt(resultID, 10)
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, s.boardKey(country), member)
	pipe.ZRem(ctx, s.globalKey(), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing result: %w", err)
	}
	return nil
}

// CountryRank returns a result's 1-based rank within its country
func (s *RankStore) CountryRank(ctx context.Context, country string, resultID int64) (int64, error) {
	return s.rank(ctx, s.boardKey(country), resultID)
}

// GlobalRank returns a result's 1-based worldwide rank
func (s *RankStore) GlobalRank(ctx context.Context, resultID int64) (int64, error) {
	return s.rank(ctx, s.globalKey(), resultID)
}

func (s *RankStore) rank(ctx context.Context, key string, resultID int64) (int64, error) {
	member := strconv.FormatInt(resultID, 10)
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, domain.ErrResultNotFound
		}
		return 0, fmt.Errorf("getting rank: %w", err)
	}
	return rank + 1, nil // 0-indexed to 1-indexed
}

// PreviewRank estimates the rank a time would land at in a country:
// one more than the number of strictly better (lower) recorded times.
func (s *RankStore) PreviewRank(ctx context.Context, country string, timeSec float64) (int64, error) {
	max := "(" + strconv.FormatFloat(timeSec, 'f', -1, 64)
	better, err := s.client.ZCount(ctx, s.boardKey(country), "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("counting better times: %w", err)
	}
	return better + 1, nil
}

// TopIDs returns the ids of the best n results for a country, best first
func (s *RankStore) TopIDs(ctx context.Context, country string, n int) ([]int64, error) {
	return s.topIDs(ctx, s.boardKey(country), n)
}

// TopGlobalIDs returns the ids of the best n results worldwide, best first
func (s *RankStore) TopGlobalIDs(ctx context.Context, n int) ([]int64, error) {
	return s.topIDs(ctx, s.globalKey(), n)
}

func (s *RankStore) topIDs(ctx context.Context, key string, n int) ([]int64, error) {
	// ZRange(0, -1) would return the whole set, so a non-positive n must
	// short-circuit instead of turning into an unbounded read.
	if n <= 0 {
		return nil, nil
	}

	members, err := s.client.ZRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top ids: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			s.logger.Warn("skipping non-numeric board member", "member", member)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of recorded results for a country
func (s *RankStore) Count(ctx context.Context, country string) (int64, error) {
	count, err := s.client.ZCard(ctx, s.boardKey(country)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// RebuildBoard replaces a country's sorted set with the given results.
// Used by the rebuild worker to restore Redis from PostgreSQL.
func (s *RankStore) RebuildBoard(ctx context.Context, country string, times map[int64]float64) error {
	key := s.boardKey(country)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	for id, timeSec := range times {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  timeSec,
			Member: strconv.FormatInt(id, 10),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding board: %w", err)
	}
	return nil
}
