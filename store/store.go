// Package store is the shared key/value/set/hash/list store the game state
// lives in. Every key may carry an expiry.
package store

import (
	"context"
	"fmt"
	"time"
)

// Store is the subset of Redis semantics the directory and session state
// rely on. A ttl of zero means "no expiry", for Set and Expire alike.
// Missing keys behave as empty collections.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd reports how many members were not already present.
	SAdd(ctx context.Context, key string, members ...string) (int, error)
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SPop(ctx context.Context, key string) (string, bool, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string) ([]string, error)

	Close() error
}

// Per-room key suffixes.
const (
	SuffixMetadata  = "metadata"
	SuffixPlayers   = "players"
	SuffixGame      = "game"
	SuffixTurnOrder = "turn_order"
	SuffixScores    = "scores"
	SuffixWordPool  = "wordpool"
	SuffixHearts    = "hearts"
	SuffixGuessed   = "guessed"
)

// RoomKey builds "room:{roomID}:{suffix}".
func RoomKey(roomID, suffix string) string {
	return fmt.Sprintf("room:%s:%s", roomID, suffix)
}

// RoomKeys lists every key a room owns.
func RoomKeys(roomID string) []string {
	suffixes := []string{
		SuffixMetadata, SuffixPlayers, SuffixGame, SuffixTurnOrder,
		SuffixScores, SuffixWordPool, SuffixHearts, SuffixGuessed,
	}
	keys := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		keys = append(keys, RoomKey(roomID, s))
	}
	return keys
}
