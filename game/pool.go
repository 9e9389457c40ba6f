package game

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wfunc/drawguess/store"
)

// InitializeWordPool seeds exactly count distinct words from the supplier.
func (s *Sessions) InitializeWordPool(ctx context.Context, roomID string, count int) error {
	supplied, err := s.supplier.Words(ctx, count)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWordSupply, err)
	}
	seen := make(map[string]struct{}, len(supplied))
	pool := make([]string, 0, count)
	for _, w := range supplied {
		if _, dup := seen[w]; dup || w == "" {
			continue
		}
		seen[w] = struct{}{}
		pool = append(pool, w)
		if len(pool) == count {
			break
		}
	}
	if len(pool) < count {
		return fmt.Errorf("%w: wanted %d, got %d", ErrWordSupply, count, len(pool))
	}
	return s.ResetWordPool(ctx, roomID, pool)
}

// ResetWordPool replaces the whole pool.
func (s *Sessions) ResetWordPool(ctx context.Context, roomID string, pool []string) error {
	k := key(roomID, store.SuffixWordPool)
	if err := s.store.Del(ctx, k); err != nil {
		return err
	}
	if _, err := s.store.SAdd(ctx, k, pool...); err != nil {
		return err
	}
	return s.touch(ctx, k)
}

// ConsumeRandomWord removes and returns one word. An empty pool is a
// caller error.
func (s *Sessions) ConsumeRandomWord(ctx context.Context, roomID string) (string, error) {
	w, ok, err := s.store.SPop(ctx, key(roomID, store.SuffixWordPool))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrWordPoolExhausted
	}
	return w, nil
}

func (s *Sessions) WordPoolSize(ctx context.Context, roomID string) (int, error) {
	return s.store.SCard(ctx, key(roomID, store.SuffixWordPool))
}

// --- scores ---

func (s *Sessions) GetScore(ctx context.Context, roomID, playerID string) (int, error) {
	raw, ok, err := s.store.HGet(ctx, key(roomID, store.SuffixScores), playerID)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.Atoi(raw)
}

func (s *Sessions) SetScore(ctx context.Context, roomID, playerID string, score int) error {
	k := key(roomID, store.SuffixScores)
	if err := s.store.HSet(ctx, k, map[string]string{playerID: strconv.Itoa(score)}); err != nil {
		return err
	}
	return s.touch(ctx, k)
}

// IncrementScore is a single HINCRBY, safe under concurrent correct guesses.
func (s *Sessions) IncrementScore(ctx context.Context, roomID, playerID string, delta int) (int, error) {
	if delta < 0 {
		return 0, fmt.Errorf("game: score increments must be non-negative, got %d", delta)
	}
	k := key(roomID, store.SuffixScores)
	n, err := s.store.HIncrBy(ctx, k, playerID, int64(delta))
	if err != nil {
		return 0, err
	}
	return int(n), s.touch(ctx, k)
}

func (s *Sessions) GetScores(ctx context.Context, roomID string) (map[string]int, error) {
	return s.intHash(ctx, key(roomID, store.SuffixScores))
}

func (s *Sessions) ResetScores(ctx context.Context, roomID string) error {
	return s.store.Del(ctx, key(roomID, store.SuffixScores))
}

// --- hearts ---

func (s *Sessions) InitializeHearts(ctx context.Context, roomID string, playerIDs []string) error {
	k := key(roomID, store.SuffixHearts)
	if err := s.store.Del(ctx, k); err != nil {
		return err
	}
	if len(playerIDs) == 0 {
		return nil
	}
	fields := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		fields[id] = strconv.Itoa(s.opts.StartingHearts)
	}
	if err := s.store.HSet(ctx, k, fields); err != nil {
		return err
	}
	return s.touch(ctx, k)
}

func (s *Sessions) GetHearts(ctx context.Context, roomID, playerID string) (int, error) {
	raw, ok, err := s.store.HGet(ctx, key(roomID, store.SuffixHearts), playerID)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// DecrementHeart takes one heart and returns what is left, never going
// below zero. Two concurrent decrements of a player's last heart can both
// see 1; the clamp fixes the result afterwards.
func (s *Sessions) DecrementHeart(ctx context.Context, roomID, playerID string) (int, error) {
	current, err := s.GetHearts(ctx, roomID, playerID)
	if err != nil || current <= 0 {
		return 0, err
	}
	k := key(roomID, store.SuffixHearts)
	n, err := s.store.HIncrBy(ctx, k, playerID, -1)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, s.store.HSet(ctx, k, map[string]string{playerID: "0"})
	}
	return int(n), nil
}

func (s *Sessions) intHash(ctx context.Context, k string) (map[string]int, error) {
	raw, err := s.store.HGetAll(ctx, k)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("game: bad integer %q for %s in %s: %w", v, id, k, err)
		}
		out[id] = n
	}
	return out, nil
}
