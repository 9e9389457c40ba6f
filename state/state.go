package state

import (
	"errors"
	"fmt"
	"strings"
)

// Phase is what a room is currently doing.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseDrawing
	PhaseGuessing
	PhaseReveal
	PhaseFinished
)

var (
	// ErrTransitionNotAllowed is returned for phases the round timer never
	// advances out of (Waiting, Finished).
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrUnknownPhase means a value outside the Phase enum reached the
	// transition table. It is a programming error.
	ErrUnknownPhase = errors.New("unknown phase")
)

var phaseNames = map[Phase]string{
	PhaseWaiting:  "waiting",
	PhaseDrawing:  "drawing",
	PhaseGuessing: "guessing",
	PhaseReveal:   "reveal",
	PhaseFinished: "finished",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// InRound reports whether a round timer is driving this phase.
func (p Phase) InRound() bool {
	return p == PhaseDrawing || p == PhaseGuessing || p == PhaseReveal
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return PhaseWaiting, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// 阶段转换表: Drawing -> Guessing -> Reveal -> (round over)
var transitions = map[Phase]Phase{
	PhaseDrawing:  PhaseGuessing,
	PhaseGuessing: PhaseReveal,
}

// Next returns the phase that follows p inside a round. ok is false when p
// is the last phase (Reveal).
func Next(p Phase) (next Phase, ok bool, err error) {
	switch p {
	case PhaseDrawing, PhaseGuessing:
		return transitions[p], true, nil
	case PhaseReveal:
		return PhaseWaiting, false, nil
	case PhaseWaiting, PhaseFinished:
		return p, false, fmt.Errorf("%w: from %s", ErrTransitionNotAllowed, p)
	default:
		return p, false, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
}
