package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"telegram-quiz-bot/internal/domain"
)

// ResultsStore keeps session liveness markers and final leaderboards in
// Redis. Leaderboards are sorted sets scored by points, so an operator (or
// a future cross-instance reader) can fetch rankings without the process
// that ran the quiz.
type ResultsStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultsStore(client *redis.Client, ttl time.Duration) *ResultsStore {
	return &ResultsStore{client: client, ttl: ttl}
}

func (s *ResultsStore) MarkActive(ctx context.Context, chatID int64) error {
	return s.client.Set(ctx, s.activeKey(chatID), "1", s.ttl).Err()
}

func (s *ResultsStore) ClearActive(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, s.activeKey(chatID)).Err()
}

func (s *ResultsStore) SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	key := s.resultsKey(lb.ChatID)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	for _, entry := range lb.Entries {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(entry.Score),
			Member: strconv.FormatInt(entry.UserID, 10),
		})
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *ResultsStore) activeKey(chatID int64) string {
	return "quiz:active:" + strconv.FormatInt(chatID, 10)
}

func (s *ResultsStore) resultsKey(chatID int64) string {
	return "quiz:results:" + strconv.FormatInt(chatID, 10)
}
