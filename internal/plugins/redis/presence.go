package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore keeps one ZSET per room, scored by last-seen unix
// time. Members older than the liveness window are trimmed on read.
type RedisPresenceStore struct {
	rdb *redis.Client
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{rdb: rdb}
}

func presenceKey(roomID string) string {
	return "presence:" + roomID
}

func (p *RedisPresenceStore) UpdateOnlineStatus(
	ctx context.Context,
	roomID, userID string,
	ttl time.Duration,
) error {
	key := presenceKey(roomID)
	now := time.Now().Unix()

	err := p.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: userID,
	}).Err()
	if err != nil {
		return err
	}
	// Expire the whole set so an inactive room doesn't leak memory.
	return p.rdb.Expire(ctx, key, ttl*2).Err()
}

func (p *RedisPresenceStore) GetOnlineUsers(
	ctx context.Context,
	roomID string,
) ([]string, error) {
	key := presenceKey(roomID)
	threshold := time.Now().Add(-2 * time.Minute).Unix()

	// Trim stale members first, then read what's left.
	p.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10))
	return p.rdb.ZRange(ctx, key, 0, -1).Result()
}

func (p *RedisPresenceStore) RemoveUser(ctx context.Context, roomID, userID string) error {
	return p.rdb.ZRem(ctx, presenceKey(roomID), userID).Err()
}

func (p *RedisPresenceStore) ClearRoom(ctx context.Context, roomID string) error {
	return p.rdb.Del(ctx, presenceKey(roomID)).Err()
}
