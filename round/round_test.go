package round

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/timer"
)

var testConfig = room.Config{
	MaxPlayers:              4,
	MaxRoundsPerPlayer:      2,
	DrawingDurationSeconds:  60,
	GuessingDurationSeconds: 30,
	RevealDurationSeconds:   5,
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService() (*Service, *timer.ManualScheduler, *recorder) {
	sched := timer.NewManualScheduler(time.Unix(1_700_000_000, 0))
	svc := NewService(sched)
	rec := &recorder{}
	svc.Subscribe(rec.listen)
	return svc, sched, rec
}

func TestStartRound_PublishesRoundStarted(t *testing.T) {
	svc, sched, rec := newTestService()

	require.NoError(t, svc.StartRound("r1", 1, 8, testConfig))

	started := rec.ofType(EventRoundStarted)
	require.Len(t, started, 1)
	assert.Equal(t, Event{
		Type:        EventRoundStarted,
		RoomID:      "r1",
		Round:       1,
		TotalRounds: 8,
		Phase:       state.PhaseDrawing,
		Duration:    60 * time.Second,
		StartTime:   sched.Now(),
	}, started[0])

	assert.True(t, svc.IsRoundActive("r1"))
	phase, ok := svc.CurrentPhase("r1")
	assert.True(t, ok)
	assert.Equal(t, state.PhaseDrawing, phase)
	assert.Equal(t, 1, svc.ActiveRounds())
}

func TestStartRound_InvalidArguments(t *testing.T) {
	svc, _, _ := newTestService()

	assert.ErrorIs(t, svc.StartRound("r1", 0, 8, testConfig), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.StartRound("r1", 9, 8, testConfig), apperr.ErrInvalidArgument)
	assert.False(t, svc.IsRoundActive("r1"))
}

func TestPhaseChanged_CarriesGuessingDuration(t *testing.T) {
	svc, sched, rec := newTestService()
	require.NoError(t, svc.StartRound("r1", 1, 8, testConfig))

	sched.Advance(59 * time.Second)
	assert.Empty(t, rec.ofType(EventPhaseChanged), "drawing lasts the full configured duration")

	sched.Advance(time.Second)
	changed := rec.ofType(EventPhaseChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, state.PhaseGuessing, changed[0].Phase)
	assert.Equal(t, 30*time.Second, changed[0].Duration)
	assert.Equal(t, 1, changed[0].Round)
	assert.Equal(t, sched.Now(), changed[0].StartTime)

	sched.Advance(30 * time.Second)
	changed = rec.ofType(EventPhaseChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, state.PhaseReveal, changed[1].Phase)
	assert.Equal(t, 5*time.Second, changed[1].Duration)
}

func TestRoundEnded_NotFinal(t *testing.T) {
	svc, sched, rec := newTestService()
	require.NoError(t, svc.StartRound("r1", 3, 8, testConfig))

	sched.Advance(95 * time.Second)

	ended := rec.ofType(EventRoundEnded)
	require.Len(t, ended, 1)
	assert.False(t, ended[0].GameFinished)
	assert.Equal(t, state.PhaseReveal, ended[0].Phase)
	assert.False(t, svc.IsRoundActive("r1"), "the timer is removed once reveal elapses")
	assert.Equal(t, 0, sched.Pending())
}

func TestFullGame_EndsAfterTotalRounds(t *testing.T) {
	svc, sched, rec := newTestService()
	players, perPlayer := 4, 2
	total := players * perPlayer

	// stand-in for the dispatcher: start the next round when one ends
	svc.Subscribe(func(e Event) {
		if e.Type == EventRoundEnded && !e.GameFinished {
			require.NoError(t, svc.StartRound(e.RoomID, e.Round+1, e.TotalRounds, testConfig))
		}
	})
	require.NoError(t, svc.StartRound("r1", 1, total, testConfig))

	cycle := 95 * time.Second
	for i := 0; i < total; i++ {
		sched.Advance(cycle)
	}

	assert.Len(t, rec.ofType(EventRoundStarted), total)
	assert.Len(t, rec.ofType(EventPhaseChanged), 2*total)
	ended := rec.ofType(EventRoundEnded)
	require.Len(t, ended, total)
	for i, e := range ended[:total-1] {
		assert.False(t, e.GameFinished, "round %d", i+1)
	}
	last := ended[total-1]
	assert.True(t, last.GameFinished)
	assert.Equal(t, total, last.Round)

	assert.False(t, svc.IsRoundActive("r1"))
	assert.Equal(t, 0, sched.Pending(), "no new round auto-starts")
	sched.Advance(time.Hour)
	assert.Len(t, rec.ofType(EventRoundStarted), total)
}

func TestRemainingSeconds(t *testing.T) {
	svc, sched, _ := newTestService()

	assert.Equal(t, 0, svc.RemainingSeconds("r1"), "no round, nothing remaining")

	require.NoError(t, svc.StartRound("r1", 1, 2, testConfig))
	assert.Equal(t, 60, svc.RemainingSeconds("r1"))

	sched.Advance(500 * time.Millisecond)
	assert.Equal(t, 60, svc.RemainingSeconds("r1"), "rounded up, never above the duration")

	prev := svc.RemainingSeconds("r1")
	for i := 0; i < 58; i++ {
		sched.Advance(time.Second)
		cur := svc.RemainingSeconds("r1")
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0)
		prev = cur
	}
	assert.Equal(t, 2, prev)

	sched.Advance(1500 * time.Millisecond)
	assert.Equal(t, 30, svc.RemainingSeconds("r1"), "guessing just began")

	status, ok := svc.Status("r1")
	require.True(t, ok)
	assert.Equal(t, state.PhaseGuessing, status.Phase)
	assert.Equal(t, 30, status.DurationSeconds)
	assert.Equal(t, 30, status.RemainingSeconds)
}

func TestRemaining_Clamp(t *testing.T) {
	start := time.Unix(0, 0)
	snap := &phaseSnapshot{phase: state.PhaseDrawing, start: start, duration: 10 * time.Second}

	assert.Equal(t, 10, remaining(snap, start))
	assert.Equal(t, 10, remaining(snap, start.Add(-time.Second)), "a clock behind the start never exceeds the duration")
	assert.Equal(t, 1, remaining(snap, start.Add(9500*time.Millisecond)))
	assert.Equal(t, 0, remaining(snap, start.Add(10*time.Second)))
	assert.Equal(t, 0, remaining(snap, start.Add(time.Minute)))
}

func TestStartRound_RestartDisposesOldTimer(t *testing.T) {
	svc, sched, rec := newTestService()
	require.NoError(t, svc.StartRound("r1", 1, 8, testConfig))
	sched.Advance(30 * time.Second)

	require.NoError(t, svc.StartRound("r1", 2, 8, testConfig))
	assert.Equal(t, 1, sched.Pending(), "old pending callback is cancelled")
	assert.Equal(t, 1, svc.ActiveRounds())

	sched.Advance(30 * time.Second)
	assert.Empty(t, rec.ofType(EventPhaseChanged), "old timer never fires")

	sched.Advance(30 * time.Second)
	changed := rec.ofType(EventPhaseChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, 2, changed[0].Round)
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	svc, _, rec := newTestService()
	require.NoError(t, svc.StartRound("r1", 1, 8, testConfig))

	stale := svc.lookup("r1")
	require.True(t, svc.StopRound("r1"))

	// a callback already in flight when the timer was disposed
	svc.advance(stale)
	assert.Empty(t, rec.ofType(EventPhaseChanged))
	assert.Empty(t, rec.ofType(EventRoundEnded))
}

func TestStopRound(t *testing.T) {
	svc, sched, rec := newTestService()

	assert.False(t, svc.StopRound("nobody"), "safe without a timer")

	require.NoError(t, svc.StartRound("r1", 1, 8, testConfig))
	require.NoError(t, svc.StartRound("r2", 1, 8, testConfig))
	assert.True(t, svc.StopRound("r1"))
	assert.False(t, svc.IsRoundActive("r1"))
	assert.True(t, svc.IsRoundActive("r2"))

	sched.Advance(95 * time.Second)
	for _, e := range rec.ofType(EventRoundEnded) {
		assert.Equal(t, "r2", e.RoomID)
	}

	svc.StopAll()
	assert.Equal(t, 0, svc.ActiveRounds())
}

func TestListenerPanicDoesNotStopTimer(t *testing.T) {
	sched := timer.NewManualScheduler(time.Unix(0, 0))
	svc := NewService(sched)
	svc.Subscribe(func(Event) { panic("boom") })
	rec := &recorder{}
	svc.Subscribe(rec.listen)

	require.NoError(t, svc.StartRound("r1", 1, 1, testConfig))
	sched.Advance(95 * time.Second)

	ended := rec.ofType(EventRoundEnded)
	require.Len(t, ended, 1)
	assert.True(t, ended[0].GameFinished)
}

func TestAdvance_UnknownPhasePanics(t *testing.T) {
	svc, _, _ := newTestService()
	tm := &roundTimer{roomID: "r1", round: 1, total: 1, cfg: testConfig}
	tm.snap.Store(&phaseSnapshot{phase: state.PhaseWaiting})

	assert.Panics(t, func() { svc.advance(tm) })
}
