package network

import (
	"encoding/json"
	"time"

	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/state"
)

// 客户端 -> 服务端
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeKickPlayer   = 103
	MsgTypeRoomMessage  = 104
	MsgTypeStartRound   = 201
	MsgTypeDrawAction   = 202
	MsgTypeGuessMessage = 203
)

// 服务端 -> 客户端. Join and leave acks reuse the request ids.
const (
	MsgTypeUserJoined          = 301
	MsgTypeUserLeft            = 302
	MsgTypeRoomDeleted         = 303
	MsgTypeRoomMessageReceived = 304
	MsgTypeRoundStarted        = 305
	MsgTypeWordToDraw          = 306
	MsgTypePhaseChanged        = 307
	MsgTypeEndedGame           = 308
	MsgTypeWordRevealed        = 309
	MsgTypeDrawActionReceived  = 310
	MsgTypeGuessCorrect        = 311
	MsgTypeGuessWrong          = 312
	MsgTypeGuessClose          = 313
	MsgTypeError               = 399
)

var msgNames = map[uint16]string{
	MsgTypeHeartbeat:           "heartbeat",
	MsgTypeJoinRoom:            "join_room",
	MsgTypeLeaveRoom:           "leave_room",
	MsgTypeKickPlayer:          "kick_player",
	MsgTypeRoomMessage:         "room_message",
	MsgTypeStartRound:          "start_round",
	MsgTypeDrawAction:          "draw_action",
	MsgTypeGuessMessage:        "guess_message",
	MsgTypeUserJoined:          "user_joined",
	MsgTypeUserLeft:            "user_left",
	MsgTypeRoomDeleted:         "room_deleted",
	MsgTypeRoomMessageReceived: "room_message_received",
	MsgTypeRoundStarted:        "round_started",
	MsgTypeWordToDraw:          "word_to_draw",
	MsgTypePhaseChanged:        "phase_changed",
	MsgTypeEndedGame:           "ended_game",
	MsgTypeWordRevealed:        "word_revealed",
	MsgTypeDrawActionReceived:  "draw_action_received",
	MsgTypeGuessCorrect:        "guess_correct",
	MsgTypeGuessWrong:          "guess_wrong",
	MsgTypeGuessClose:          "guess_close",
	MsgTypeError:               "error",
}

// MsgName is used as a metrics label; unknown ids share one bucket.
func MsgName(msgID uint16) string {
	if name, ok := msgNames[msgID]; ok {
		return name
	}
	return "unknown"
}

func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// --- requests ---

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type JoinRoomRequest struct {
	RoomID       string `json:"roomId"`
	PlayerName   string `json:"playerName,omitempty"`
	PlayerAvatar string `json:"playerAvatar,omitempty"`
}

type KickPlayerRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type TextRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// DrawActionRequest carries the stroke data untouched; the server never
// interprets it.
type DrawActionRequest struct {
	RoomID string          `json:"roomId"`
	Action json.RawMessage `json:"action"`
}

// --- events ---

type JoinRoomAck struct {
	Room             room.Room      `json:"room"`
	Players          []room.Player  `json:"players"`
	Phase            state.Phase    `json:"phase"`
	Round            int            `json:"round"`
	TotalRounds      int            `json:"totalRounds"`
	RemainingSeconds int            `json:"remainingSeconds"`
	Scores           map[string]int `json:"scores,omitempty"`
}

type LeaveRoomAck struct {
	RoomID string `json:"roomId"`
}

type UserJoined struct {
	RoomID string      `json:"roomId"`
	Player room.Player `json:"player"`
}

type UserLeft struct {
	RoomID string      `json:"roomId"`
	Player room.Player `json:"player"`
	Kicked bool        `json:"kicked,omitempty"`
}

type RoomDeleted struct {
	RoomID string `json:"roomId"`
}

type RoomMessageReceived struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
}

type RoundStarted struct {
	RoomID          string    `json:"roomId"`
	RoundNumber     int       `json:"roundNumber"`
	TotalRounds     int       `json:"totalRounds"`
	DurationSeconds int       `json:"durationSeconds"`
	StartTime       time.Time `json:"startTime"`
	DrawerID        string    `json:"drawerId,omitempty"`
}

type WordToDraw struct {
	RoomID      string `json:"roomId"`
	RoundNumber int    `json:"roundNumber"`
	Word        string `json:"word"`
}

// PhaseChanged.Word is null whenever the word must stay secret.
type PhaseChanged struct {
	RoomID          string      `json:"roomId"`
	RoundNumber     int         `json:"roundNumber"`
	Phase           state.Phase `json:"phase"`
	DurationSeconds int         `json:"durationSeconds"`
	StartTime       time.Time   `json:"startTime"`
	Word            *string     `json:"word"`
}

type EndedGame struct {
	RoomID         string         `json:"roomId"`
	RoundNumber    int            `json:"roundNumber"`
	IsGameFinished bool           `json:"isGameFinished"`
	Scores         map[string]int `json:"scores,omitempty"`
}

type WordRevealed struct {
	RoomID       string `json:"roomId"`
	RoundNumber  int    `json:"roundNumber"`
	RevealedWord string `json:"revealedWord"`
}

type DrawActionReceived struct {
	RoomID   string          `json:"roomId"`
	PlayerID string          `json:"playerId"`
	Action   json.RawMessage `json:"action"`
}

type GuessCorrect struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	NewScore   int    `json:"newScore"`
}

type GuessWrong struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Text       string `json:"text"`
}

// GuessClose goes only to the guesser.
type GuessClose struct {
	RoomID     string `json:"roomId"`
	Guess      string `json:"guess"`
	HeartsLeft int    `json:"heartsLeft"`
}

type ErrorMessage struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
