package room

import (
	"fmt"
	"time"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/state"
)

type Host struct {
	HostID   string `json:"hostId"`
	HostName string `json:"hostName"`
}

// Config is fixed when the room is created.
type Config struct {
	MaxPlayers              int `json:"maxPlayers"`
	MaxRoundsPerPlayer      int `json:"maxRoundsPerPlayer"`
	DrawingDurationSeconds  int `json:"drawingDurationSeconds"`
	GuessingDurationSeconds int `json:"guessingDurationSeconds"`
	RevealDurationSeconds   int `json:"revealDurationSeconds"`
}

// Room 房间元数据，创建后只读
type Room struct {
	ID        string    `json:"roomId"`
	Name      string    `json:"roomName"`
	Host      Host      `json:"host"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r Room) IsHost(playerID string) bool {
	return r.Host.HostID == playerID
}

// Player is stored by value: two records are the same member only when
// every field matches. An empty ConnectionID means the player has no live
// connection yet.
type Player struct {
	ConnectionID string `json:"connectionId,omitempty"`
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	PlayerAvatar string `json:"playerAvatar,omitempty"`
	// JoinedAt is unix milliseconds; it orders ListAllPlayers.
	JoinedAt int64 `json:"joinedAt"`
}

func (p Player) Connected() bool {
	return p.ConnectionID != ""
}

func (c Config) Validate() error {
	switch {
	case c.MaxPlayers < 2:
		return fmt.Errorf("%w: maxPlayers must be at least 2", apperr.ErrInvalidArgument)
	case c.MaxRoundsPerPlayer < 1:
		return fmt.Errorf("%w: maxRoundsPerPlayer must be at least 1", apperr.ErrInvalidArgument)
	case c.DrawingDurationSeconds < 1, c.GuessingDurationSeconds < 1, c.RevealDurationSeconds < 1:
		return fmt.Errorf("%w: phase durations must be at least one second", apperr.ErrInvalidArgument)
	}
	return nil
}

// PhaseDuration returns how long the given round phase lasts.
func (c Config) PhaseDuration(p state.Phase) (time.Duration, error) {
	switch p {
	case state.PhaseDrawing:
		return time.Duration(c.DrawingDurationSeconds) * time.Second, nil
	case state.PhaseGuessing:
		return time.Duration(c.GuessingDurationSeconds) * time.Second, nil
	case state.PhaseReveal:
		return time.Duration(c.RevealDurationSeconds) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: no duration for %s", state.ErrUnknownPhase, p)
	}
}
