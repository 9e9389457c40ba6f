// Package game keeps the per-room state of a game in progress: the session
// record, turn order, word pool, scores, hearts and who has already guessed
// the current word.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/store"
	"github.com/wfunc/drawguess/words"
)

var (
	ErrSessionNotFound   = fmt.Errorf("game session %w", apperr.ErrNotFound)
	ErrNoRoundsLeft      = fmt.Errorf("%w: all rounds have been played", apperr.ErrConflict)
	ErrWordPoolExhausted = errors.New("game: word pool exhausted")
	ErrWordSupply        = errors.New("game: word supplier returned too few distinct words")
	ErrEmptyTurnOrder    = fmt.Errorf("%w: turn order needs at least one player", apperr.ErrInvalidArgument)
)

// TurnOrder decides how PlayerTurnOrder is fixed at session start.
type TurnOrder int

const (
	// TurnOrderJoin keeps the order the player ids were given in.
	TurnOrderJoin TurnOrder = iota
	// TurnOrderShuffle permutes the ids once.
	TurnOrderShuffle
)

type Options struct {
	TurnOrder      TurnOrder
	StartingHearts int
	// TTL applies to every game key; zero keeps them until the room is
	// deleted.
	TTL time.Duration
}

// Session 对局进度
type Session struct {
	CurrentRound     int         `json:"currentRound"`
	TotalRounds      int         `json:"totalRounds"`
	CurrentDrawerID  string      `json:"currentDrawerId"`
	CurrentWord      string      `json:"-"`
	CurrentTurnIndex int         `json:"currentTurnIndex"`
	Phase            state.Phase `json:"phase"`
	SessionStartTime time.Time   `json:"sessionStartTime"`
	RoundStartTime   time.Time   `json:"roundStartTime"`
}

// RoundStart is what StartNextRound hands back to the caller.
type RoundStart struct {
	DrawerID    string
	Word        string
	Round       int
	TotalRounds int
}

const (
	fieldCurrentRound = "currentRound"
	fieldTotalRounds  = "totalRounds"
	fieldDrawer       = "currentDrawerId"
	fieldWord         = "currentWord"
	fieldTurnIndex    = "currentTurnIndex"
	fieldPhase        = "phase"
	fieldSessionStart = "sessionStartTime"
	fieldRoundStart   = "roundStartTime"
)

type Sessions struct {
	store    store.Store
	supplier words.Supplier
	opts     Options
	now      func() time.Time
	rng      *rand.Rand
	rngMutex sync.Mutex
}

func NewSessions(s store.Store, supplier words.Supplier, opts Options) *Sessions {
	return &Sessions{
		store:    s,
		supplier: supplier,
		opts:     opts,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func key(roomID, suffix string) string { return store.RoomKey(roomID, suffix) }

func (s *Sessions) touch(ctx context.Context, keys ...string) error {
	if s.opts.TTL <= 0 {
		return nil
	}
	for _, k := range keys {
		if err := s.store.Expire(ctx, k, s.opts.TTL); err != nil {
			return err
		}
	}
	return nil
}

// InitializeGameSession fixes the turn order and resets progress.
func (s *Sessions) InitializeGameSession(ctx context.Context, roomID string, playerIDs []string, totalRounds int) error {
	if len(playerIDs) == 0 {
		return ErrEmptyTurnOrder
	}
	order := make([]string, len(playerIDs))
	copy(order, playerIDs)
	if s.opts.TurnOrder == TurnOrderShuffle {
		s.rngMutex.Lock()
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		s.rngMutex.Unlock()
	}

	gameKey := key(roomID, store.SuffixGame)
	orderKey := key(roomID, store.SuffixTurnOrder)
	if err := s.store.Del(ctx, gameKey, orderKey, key(roomID, store.SuffixGuessed)); err != nil {
		return err
	}
	if err := s.store.RPush(ctx, orderKey, order...); err != nil {
		return err
	}
	err := s.store.HSet(ctx, gameKey, map[string]string{
		fieldCurrentRound: "0",
		fieldTotalRounds:  strconv.Itoa(totalRounds),
		fieldDrawer:       "",
		fieldWord:         "",
		fieldTurnIndex:    "0",
		fieldPhase:        state.PhaseWaiting.String(),
		fieldSessionStart: s.now().UTC().Format(time.RFC3339Nano),
		fieldRoundStart:   "",
	})
	if err != nil {
		return err
	}
	return s.touch(ctx, gameKey, orderKey)
}

func (s *Sessions) GetSession(ctx context.Context, roomID string) (Session, error) {
	fields, err := s.store.HGetAll(ctx, key(roomID, store.SuffixGame))
	if err != nil {
		return Session{}, err
	}
	if len(fields) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return decodeSession(fields)
}

func decodeSession(fields map[string]string) (Session, error) {
	var (
		sess Session
		err  error
	)
	atoi := func(name string) int {
		if err != nil {
			return 0
		}
		var v int
		v, err = strconv.Atoi(fields[name])
		return v
	}
	parseTime := func(name string) time.Time {
		if err != nil || fields[name] == "" {
			return time.Time{}
		}
		var v time.Time
		v, err = time.Parse(time.RFC3339Nano, fields[name])
		return v
	}

	sess.CurrentRound = atoi(fieldCurrentRound)
	sess.TotalRounds = atoi(fieldTotalRounds)
	sess.CurrentTurnIndex = atoi(fieldTurnIndex)
	sess.SessionStartTime = parseTime(fieldSessionStart)
	sess.RoundStartTime = parseTime(fieldRoundStart)
	sess.CurrentDrawerID = fields[fieldDrawer]
	sess.CurrentWord = fields[fieldWord]
	if err == nil {
		sess.Phase, err = state.ParsePhase(fields[fieldPhase])
	}
	if err != nil {
		return Session{}, apperr.Unavailable(fmt.Errorf("decode game session: %w", err))
	}
	return sess, nil
}

func (s *Sessions) GetTurnOrder(ctx context.Context, roomID string) ([]string, error) {
	return s.store.LRange(ctx, key(roomID, store.SuffixTurnOrder))
}

func (s *Sessions) SetPhase(ctx context.Context, roomID string, p state.Phase) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", state.ErrUnknownPhase, int(p))
	}
	exists, err := s.store.Exists(ctx, key(roomID, store.SuffixGame))
	if err != nil {
		return err
	}
	if !exists {
		return ErrSessionNotFound
	}
	return s.store.HSet(ctx, key(roomID, store.SuffixGame), map[string]string{fieldPhase: p.String()})
}

// StartNextRound draws a word, moves the turn to the next player and enters
// the Drawing phase. The first round uses turn index 0; each later round
// advances it by one, wrapping over the turn order.
func (s *Sessions) StartNextRound(ctx context.Context, roomID string) (RoundStart, error) {
	sess, err := s.GetSession(ctx, roomID)
	if err != nil {
		return RoundStart{}, err
	}
	if sess.CurrentRound >= sess.TotalRounds {
		return RoundStart{}, ErrNoRoundsLeft
	}
	order, err := s.GetTurnOrder(ctx, roomID)
	if err != nil {
		return RoundStart{}, err
	}
	if len(order) == 0 {
		return RoundStart{}, ErrEmptyTurnOrder
	}

	word, err := s.ConsumeRandomWord(ctx, roomID)
	if err != nil {
		return RoundStart{}, err
	}

	index := 0
	if sess.CurrentRound > 0 {
		index = (sess.CurrentTurnIndex + 1) % len(order)
	}
	start := RoundStart{
		DrawerID:    order[index],
		Word:        word,
		Round:       sess.CurrentRound + 1,
		TotalRounds: sess.TotalRounds,
	}

	if err := s.store.Del(ctx, key(roomID, store.SuffixGuessed)); err != nil {
		return RoundStart{}, err
	}
	err = s.store.HSet(ctx, key(roomID, store.SuffixGame), map[string]string{
		fieldCurrentRound: strconv.Itoa(start.Round),
		fieldDrawer:       start.DrawerID,
		fieldWord:         word,
		fieldTurnIndex:    strconv.Itoa(index),
		fieldPhase:        state.PhaseDrawing.String(),
		fieldRoundStart:   s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return RoundStart{}, err
	}
	return start, nil
}

// MarkGuessed records that playerID found the current word. first is false
// when they already had.
func (s *Sessions) MarkGuessed(ctx context.Context, roomID, playerID string) (first bool, err error) {
	k := key(roomID, store.SuffixGuessed)
	added, err := s.store.SAdd(ctx, k, playerID)
	if err != nil || added == 0 {
		return false, err
	}
	return true, s.touch(ctx, k)
}

// HasGuessed reports whether playerID already found the current word.
func (s *Sessions) HasGuessed(ctx context.Context, roomID, playerID string) (bool, error) {
	return s.store.SIsMember(ctx, key(roomID, store.SuffixGuessed), playerID)
}
