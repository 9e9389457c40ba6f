package game

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/store"
	"github.com/wfunc/drawguess/words"
)

type stubSupplier struct {
	words []string
	err   error
}

func (s stubSupplier) Words(_ context.Context, n int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n < len(s.words) {
		return s.words[:n], nil
	}
	return s.words, nil
}

func wordList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("word-%d", i)
	}
	return out
}

func newTestSessions(supplier words.Supplier) *Sessions {
	return NewSessions(store.NewMemoryStore(), supplier, Options{StartingHearts: 3})
}

func startGame(t *testing.T, s *Sessions, roomID string, players []string, rounds int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InitializeWordPool(ctx, roomID, rounds))
	require.NoError(t, s.InitializeGameSession(ctx, roomID, players, rounds))
}

func TestInitializeGameSession(t *testing.T) {
	s := newTestSessions(stubSupplier{words: wordList(8)})
	ctx := context.Background()
	players := []string{"a", "b", "c", "d"}

	startGame(t, s, "r1", players, 8)

	sess, err := s.GetSession(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.CurrentRound)
	assert.Equal(t, 8, sess.TotalRounds)
	assert.Equal(t, 0, sess.CurrentTurnIndex)
	assert.Equal(t, state.PhaseWaiting, sess.Phase)
	assert.False(t, sess.SessionStartTime.IsZero())

	order, err := s.GetTurnOrder(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, players, order, "join order is kept")
}

func TestInitializeGameSession_Shuffle(t *testing.T) {
	s := NewSessions(store.NewMemoryStore(), stubSupplier{words: wordList(4)}, Options{TurnOrder: TurnOrderShuffle})
	players := []string{"a", "b", "c", "d"}
	require.NoError(t, s.InitializeGameSession(context.Background(), "r1", players, 4))

	order, _ := s.GetTurnOrder(context.Background(), "r1")
	assert.ElementsMatch(t, players, order)
}

func TestInitializeGameSession_Empty(t *testing.T) {
	s := newTestSessions(stubSupplier{})
	err := s.InitializeGameSession(context.Background(), "r1", nil, 2)
	assert.ErrorIs(t, err, ErrEmptyTurnOrder)
}

func TestGetSession_Missing(t *testing.T) {
	s := newTestSessions(stubSupplier{})
	_, err := s.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartNextRound_Rotation(t *testing.T) {
	const rounds = 2
	players := []string{"a", "b", "c", "d"}
	total := rounds * len(players)
	s := newTestSessions(stubSupplier{words: wordList(total)})
	ctx := context.Background()
	startGame(t, s, "r1", players, total)

	drawCount := map[string]int{}
	seenWords := map[string]bool{}
	for i := 0; i < total; i++ {
		start, err := s.StartNextRound(ctx, "r1")
		require.NoError(t, err)

		assert.Equal(t, i+1, start.Round)
		assert.Equal(t, total, start.TotalRounds)
		assert.Equal(t, players[i%len(players)], start.DrawerID)
		assert.False(t, seenWords[start.Word], "word %q drawn twice", start.Word)
		seenWords[start.Word] = true
		drawCount[start.DrawerID]++

		sess, _ := s.GetSession(ctx, "r1")
		assert.Equal(t, state.PhaseDrawing, sess.Phase)
		assert.Equal(t, start.Word, sess.CurrentWord)
		order, _ := s.GetTurnOrder(ctx, "r1")
		assert.Equal(t, order[sess.CurrentTurnIndex%len(order)], sess.CurrentDrawerID)
	}
	for _, p := range players {
		assert.Equal(t, rounds, drawCount[p], "player %s", p)
	}

	_, err := s.StartNextRound(ctx, "r1")
	assert.ErrorIs(t, err, ErrNoRoundsLeft)
}

func TestStartNextRound_ClearsGuessed(t *testing.T) {
	s := newTestSessions(stubSupplier{words: wordList(2)})
	ctx := context.Background()
	startGame(t, s, "r1", []string{"a", "b"}, 2)

	_, err := s.StartNextRound(ctx, "r1")
	require.NoError(t, err)

	first, err := s.MarkGuessed(ctx, "r1", "b")
	require.NoError(t, err)
	assert.True(t, first)
	first, _ = s.MarkGuessed(ctx, "r1", "b")
	assert.False(t, first)

	_, err = s.StartNextRound(ctx, "r1")
	require.NoError(t, err)
	guessed, _ := s.HasGuessed(ctx, "r1", "b")
	assert.False(t, guessed)
}

func TestWordPool(t *testing.T) {
	s := newTestSessions(stubSupplier{words: []string{"cat", "dog", "cat", "owl", "bee"}})
	ctx := context.Background()

	require.NoError(t, s.InitializeWordPool(ctx, "r1", 3))
	n, _ := s.WordPoolSize(ctx, "r1")
	assert.Equal(t, 3, n)

	drawn := map[string]bool{}
	for i := 0; i < 3; i++ {
		w, err := s.ConsumeRandomWord(ctx, "r1")
		require.NoError(t, err)
		assert.False(t, drawn[w])
		drawn[w] = true
	}
	_, err := s.ConsumeRandomWord(ctx, "r1")
	assert.ErrorIs(t, err, ErrWordPoolExhausted)

	require.NoError(t, s.ResetWordPool(ctx, "r1", []string{"x", "y"}))
	n, _ = s.WordPoolSize(ctx, "r1")
	assert.Equal(t, 2, n)
}

func TestResetWordPool_Empty(t *testing.T) {
	s := newTestSessions(stubSupplier{})
	ctx := context.Background()

	require.NoError(t, s.ResetWordPool(ctx, "r1", nil))
	n, err := s.WordPoolSize(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.ConsumeRandomWord(ctx, "r1")
	assert.ErrorIs(t, err, ErrWordPoolExhausted)
}

func TestMarkGuessed_ConcurrentSinglePlayer(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := store.NewRedisStore(store.RedisOptions{Address: mr.Addr(), MaxIdle: 4})
	t.Cleanup(func() { rs.Close() })

	for name, st := range map[string]store.Store{"memory": store.NewMemoryStore(), "redis": rs} {
		t.Run(name, func(t *testing.T) {
			s := NewSessions(st, stubSupplier{}, Options{StartingHearts: 3})
			ctx := context.Background()

			var (
				wg    sync.WaitGroup
				mutex sync.Mutex
				wins  int
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					first, err := s.MarkGuessed(ctx, "r1", "b")
					assert.NoError(t, err)
					if first {
						mutex.Lock()
						wins++
						mutex.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestWordPool_TooFewDistinct(t *testing.T) {
	s := newTestSessions(stubSupplier{words: []string{"cat", "cat", "cat"}})
	err := s.InitializeWordPool(context.Background(), "r1", 3)
	assert.ErrorIs(t, err, ErrWordSupply)
}

func TestScores(t *testing.T) {
	s := newTestSessions(stubSupplier{})
	ctx := context.Background()

	score, err := s.GetScore(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, score)

	require.NoError(t, s.SetScore(ctx, "r1", "a", 50))
	score, err = s.IncrementScore(ctx, "r1", "a", 100)
	require.NoError(t, err)
	assert.Equal(t, 150, score)

	_, err = s.IncrementScore(ctx, "r1", "a", -1)
	assert.Error(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrementScore(ctx, "r1", "b", 10)
		}()
	}
	wg.Wait()

	scores, err := s.GetScores(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 150, "b": 200}, scores)

	require.NoError(t, s.ResetScores(ctx, "r1"))
	scores, _ = s.GetScores(ctx, "r1")
	assert.Empty(t, scores)
}

func TestHearts(t *testing.T) {
	s := newTestSessions(stubSupplier{})
	ctx := context.Background()
	require.NoError(t, s.InitializeHearts(ctx, "r1", []string{"a", "b"}))

	h, _ := s.GetHearts(ctx, "r1", "a")
	assert.Equal(t, 3, h)

	for want := 2; want >= 0; want-- {
		left, err := s.DecrementHeart(ctx, "r1", "a")
		require.NoError(t, err)
		assert.Equal(t, want, left)
	}
	left, err := s.DecrementHeart(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, left, "hearts never go below zero")

	h, _ = s.GetHearts(ctx, "r1", "b")
	assert.Equal(t, 3, h, "other players are untouched")

	h, _ = s.GetHearts(ctx, "r1", "latecomer")
	assert.Equal(t, 0, h)
}

func TestSetPhase(t *testing.T) {
	s := newTestSessions(stubSupplier{words: wordList(2)})
	ctx := context.Background()

	assert.ErrorIs(t, s.SetPhase(ctx, "r1", state.PhaseGuessing), ErrSessionNotFound)

	startGame(t, s, "r1", []string{"a", "b"}, 2)
	require.NoError(t, s.SetPhase(ctx, "r1", state.PhaseFinished))
	sess, _ := s.GetSession(ctx, "r1")
	assert.Equal(t, state.PhaseFinished, sess.Phase)

	assert.ErrorIs(t, s.SetPhase(ctx, "r1", state.Phase(99)), state.ErrUnknownPhase)
}
