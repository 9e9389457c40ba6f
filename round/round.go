// Package round runs the per-room phase timer: Drawing, then Guessing, then
// Reveal, then an end-of-round signal. It keeps nothing in the shared store;
// listeners registered with Subscribe turn its events into broadcasts and
// persisted phases.
package round

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/timer"
)

type EventType int

const (
	EventRoundStarted EventType = iota + 1
	EventPhaseChanged
	EventRoundEnded
)

func (t EventType) String() string {
	switch t {
	case EventRoundStarted:
		return "round_started"
	case EventPhaseChanged:
		return "phase_changed"
	case EventRoundEnded:
		return "round_ended"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is published on every timer transition. For EventRoundEnded, Phase
// is the phase that just elapsed and GameFinished reports whether that was
// the last round.
type Event struct {
	Type         EventType
	RoomID       string
	Round        int
	TotalRounds  int
	Phase        state.Phase
	Duration     time.Duration
	StartTime    time.Time
	GameFinished bool
}

type Listener func(Event)

// Status is a point-in-time view of a room's timer.
type Status struct {
	RoomID           string      `json:"roomId"`
	Round            int         `json:"round"`
	TotalRounds      int         `json:"totalRounds"`
	Phase            state.Phase `json:"phase"`
	PhaseStartTime   time.Time   `json:"phaseStartTime"`
	DurationSeconds  int         `json:"durationSeconds"`
	RemainingSeconds int         `json:"remainingSeconds"`
}

type phaseSnapshot struct {
	phase    state.Phase
	start    time.Time
	duration time.Duration
}

// roundTimer is only ever advanced by its own callback chain: the next
// callback is scheduled after the previous one has published its event, so
// two callbacks for one room never run at once. Other goroutines only read
// snap and flip disposed.
type roundTimer struct {
	roomID string
	round  int
	total  int
	cfg    room.Config

	disposed atomic.Bool
	cancel   atomic.Pointer[func()]
	snap     atomic.Pointer[phaseSnapshot]
}

func (t *roundTimer) dispose() bool {
	if !t.disposed.CompareAndSwap(false, true) {
		return false
	}
	if c := t.cancel.Load(); c != nil {
		(*c)()
	}
	return true
}

type Service struct {
	sched timer.Scheduler

	mu     sync.Mutex
	timers map[string]*roundTimer

	listenersMu sync.RWMutex
	listeners   []Listener
}

func NewService(sched timer.Scheduler) *Service {
	return &Service{
		sched:  sched,
		timers: make(map[string]*roundTimer),
	}
}

// Subscribe registers l for every event. Call it during startup, before the
// first round starts.
func (s *Service) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) publish(e Event) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Errorw("round listener panicked", "room", e.RoomID, "event", e.Type.String(), "panic", r)
				}
			}()
			l(e)
		}()
	}
}

// StartRound replaces any timer the room already has and enters Drawing.
func (s *Service) StartRound(roomID string, roundNumber, totalRounds int, cfg room.Config) error {
	if roundNumber < 1 || totalRounds < roundNumber {
		return fmt.Errorf("%w: round %d of %d", apperr.ErrInvalidArgument, roundNumber, totalRounds)
	}
	d, err := cfg.PhaseDuration(state.PhaseDrawing)
	if err != nil {
		return err
	}

	t := &roundTimer{roomID: roomID, round: roundNumber, total: totalRounds, cfg: cfg}
	start := s.sched.Now()
	t.snap.Store(&phaseSnapshot{phase: state.PhaseDrawing, start: start, duration: d})

	s.mu.Lock()
	old := s.timers[roomID]
	s.timers[roomID] = t
	s.mu.Unlock()
	if old != nil {
		old.dispose()
	}

	s.publish(Event{
		Type:        EventRoundStarted,
		RoomID:      roomID,
		Round:       roundNumber,
		TotalRounds: totalRounds,
		Phase:       state.PhaseDrawing,
		Duration:    d,
		StartTime:   start,
	})
	s.schedule(t, d)
	return nil
}

func (s *Service) schedule(t *roundTimer, d time.Duration) {
	if t.disposed.Load() {
		return
	}
	cancel := s.sched.AfterFunc(d, func() { s.advance(t) })
	t.cancel.Store(&cancel)
	// disposed between the check above and the store
	if t.disposed.Load() {
		cancel()
	}
}

func (s *Service) advance(t *roundTimer) {
	if t.disposed.Load() {
		return
	}
	cur := t.snap.Load()
	next, ok, err := state.Next(cur.phase)
	if err != nil {
		logger.Log.Panicf("round timer for room %s in phase %s: %v", t.roomID, cur.phase, err)
	}
	if !ok {
		s.finish(t, cur.phase)
		return
	}
	d, err := t.cfg.PhaseDuration(next)
	if err != nil {
		logger.Log.Panicf("round timer for room %s: %v", t.roomID, err)
	}

	snap := &phaseSnapshot{phase: next, start: s.sched.Now(), duration: d}
	t.snap.Store(snap)
	s.publish(Event{
		Type:        EventPhaseChanged,
		RoomID:      t.roomID,
		Round:       t.round,
		TotalRounds: t.total,
		Phase:       next,
		Duration:    d,
		StartTime:   snap.start,
	})
	s.schedule(t, d)
}

func (s *Service) finish(t *roundTimer, last state.Phase) {
	s.mu.Lock()
	if s.timers[t.roomID] == t {
		delete(s.timers, t.roomID)
	}
	s.mu.Unlock()
	if !t.dispose() {
		return
	}

	s.publish(Event{
		Type:         EventRoundEnded,
		RoomID:       t.roomID,
		Round:        t.round,
		TotalRounds:  t.total,
		Phase:        last,
		StartTime:    s.sched.Now(),
		GameFinished: t.round >= t.total,
	})
}

// StopRound removes and disposes the room's timer, if any. It reports
// whether there was one.
func (s *Service) StopRound(roomID string) bool {
	s.mu.Lock()
	t, ok := s.timers[roomID]
	delete(s.timers, roomID)
	s.mu.Unlock()
	if ok {
		t.dispose()
	}
	return ok
}

// StopAll disposes every timer; used on shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*roundTimer)
	s.mu.Unlock()
	for _, t := range timers {
		t.dispose()
	}
}

func (s *Service) lookup(roomID string) *roundTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[roomID]
}

func (s *Service) IsRoundActive(roomID string) bool {
	return s.lookup(roomID) != nil
}

func (s *Service) CurrentPhase(roomID string) (state.Phase, bool) {
	t := s.lookup(roomID)
	if t == nil {
		return state.PhaseWaiting, false
	}
	return t.snap.Load().phase, true
}

// RemainingSeconds is derived from the phase start, rounded up, and never
// negative. Rooms without an active round report 0.
func (s *Service) RemainingSeconds(roomID string) int {
	t := s.lookup(roomID)
	if t == nil {
		return 0
	}
	return remaining(t.snap.Load(), s.sched.Now())
}

func remaining(snap *phaseSnapshot, now time.Time) int {
	left := snap.duration - now.Sub(snap.start)
	if left <= 0 {
		return 0
	}
	secs := int(math.Ceil(left.Seconds()))
	if limit := int(snap.duration / time.Second); secs > limit {
		return limit
	}
	return secs
}

func (s *Service) Status(roomID string) (Status, bool) {
	t := s.lookup(roomID)
	if t == nil {
		return Status{RoomID: roomID, Phase: state.PhaseWaiting}, false
	}
	snap := t.snap.Load()
	return Status{
		RoomID:           roomID,
		Round:            t.round,
		TotalRounds:      t.total,
		Phase:            snap.phase,
		PhaseStartTime:   snap.start,
		DurationSeconds:  int(snap.duration / time.Second),
		RemainingSeconds: remaining(snap, s.sched.Now()),
	}, true
}

func (s *Service) ActiveRounds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
