// Package redispresence implements the presence store on Redis sets.
package redispresence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// presenceTTL is the sliding expiry of presence records. A process that dies
// without a clean disconnect disappears from presence once it lapses.
const presenceTTL = time.Hour

// RedisPresenceStore keeps two set indexes in lockstep:
//
//	{prefix}online:rooms:{roomID} -> set of online user ids
//	{prefix}online:users:{userID} -> set of rooms the user is online in
//
// It also carries the fixed-window rate-limit counter so the middleware can
// share the same connection pool.
type RedisPresenceStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPresenceStore creates a RedisPresenceStore.
func NewRedisPresenceStore(client *redis.Client, keyPrefix string) *RedisPresenceStore {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceStore")
	}
	return &RedisPresenceStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisPresenceStore) roomKey(roomID string) string {
	return fmt.Sprintf("%sonline:rooms:%s", s.keyPrefix, roomID)
}

func (s *RedisPresenceStore) userKey(userID string) string {
	return fmt.Sprintf("%sonline:users:%s", s.keyPrefix, userID)
}

// Add marks the user online in the room. Both indexes are written and both
// expiries refreshed in one pipeline round trip.
func (s *RedisPresenceStore) Add(ctx context.Context, roomID, userID string) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.roomKey(roomID), userID)
	pipe.SAdd(ctx, s.userKey(userID), roomID)
	pipe.Expire(ctx, s.roomKey(roomID), presenceTTL)
	pipe.Expire(ctx, s.userKey(userID), presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: add presence (room %s, user %s): %w", roomID, userID, err)
	}
	return nil
}

// Remove deletes the user from the room index and the room from the user
// index.
func (s *RedisPresenceStore) Remove(ctx context.Context, roomID, userID string) error {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, s.roomKey(roomID), userID)
	pipe.SRem(ctx, s.userKey(userID), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove presence (room %s, user %s): %w", roomID, userID, err)
	}
	return nil
}

// MembersOfRoom returns the set of user ids online in the room.
func (s *RedisPresenceStore) MembersOfRoom(ctx context.Context, roomID string) (map[string]struct{}, error) {
	ids, err := s.client.SMembers(ctx, s.roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: members of room %s: %w", roomID, err)
	}
	online := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		online[id] = struct{}{}
	}
	return online, nil
}

// RoomsOfUser returns the rooms the user is currently online in.
func (s *RedisPresenceStore) RoomsOfUser(ctx context.Context, userID string) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: rooms of user %s: %w", userID, err)
	}
	return rooms, nil
}

// OnlineUserIDs walks the user index with SCAN so large keyspaces never block
// the store the way KEYS would.
func (s *RedisPresenceStore) OnlineUserIDs(ctx context.Context) ([]string, error) {
	pattern := s.userKey("*")
	keyPrefix := s.userKey("")
	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan online users: %w", err)
	}
	return ids, nil
}

// CheckRateLimit increments the fixed-window counter for key and reports
// whether the caller is still under limit.
func (s *RedisPresenceStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	counterKey := s.keyPrefix + "ratelimit:" + key

	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis: rate limit pipeline for key %s: %w", key, err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit counter for key %s: %w", key, err)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, nil
}
