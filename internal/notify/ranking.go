package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RankingKey is the sorted set counting seats reserved per concert date.
const RankingKey = "ranking:soldout"

// RedisRanking feeds the sold-out leaderboard.
type RedisRanking struct {
	client redis.Cmdable
	key    string
}

// NewRedisRanking returns a collector writing to RankingKey.
func NewRedisRanking(client redis.Cmdable) *RedisRanking {
	return &RedisRanking{client: client, key: RankingKey}
}

// OnSeatReserved implements booking.RankingCollector.
func (r *RedisRanking) OnSeatReserved(ctx context.Context, date string) error {
	return r.client.ZIncrBy(ctx, r.key, 1, date).Err()
}

// RankingEntry is one row of the leaderboard.  Rank starts at 1.
type RankingEntry struct {
	Date         string `json:"date"`
	Reservations int64  `json:"reservations"`
	Rank         int    `json:"rank"`
}

// Top returns the n dates with the most reserved seats, busiest first.
func (r *RedisRanking) Top(ctx context.Context, n int) ([]RankingEntry, error) {
	if n <= 0 {
		return []RankingEntry{}, nil
	}
	zs, err := r.client.ZRevRangeWithScores(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RankingEntry, 0, len(zs))
	for i, z := range zs {
		date, _ := z.Member.(string)
		out = append(out, RankingEntry{Date: date, Reservations: int64(z.Score), Rank: i + 1})
	}
	return out, nil
}
