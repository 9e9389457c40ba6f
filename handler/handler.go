// Package handler validates and executes player actions. Every action
// checks its preconditions, mutates the room directory or the game session,
// then broadcasts. A failed precondition is returned to the caller only;
// nothing is broadcast for it.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/broadcast"
	"github.com/wfunc/drawguess/config"
	"github.com/wfunc/drawguess/game"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/monitor"
	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/state"
)

var (
	ErrRoomFull          = fmt.Errorf("%w: room is full", apperr.ErrConflict)
	ErrNotHost           = fmt.Errorf("%w: only the host can do that", apperr.ErrForbidden)
	ErrNotDrawer         = fmt.Errorf("%w: only the current drawer can draw", apperr.ErrForbidden)
	ErrDrawerCannotGuess = fmt.Errorf("%w: the drawer cannot guess", apperr.ErrForbidden)
	ErrNotDrawingPhase   = fmt.Errorf("%w: drawing is only allowed in the drawing phase", apperr.ErrInvalidPhase)
	ErrNotGuessingPhase  = fmt.Errorf("%w: guesses are only accepted while drawing or guessing", apperr.ErrInvalidPhase)
	ErrNoHeartsLeft      = fmt.Errorf("%w: no hearts left", apperr.ErrExhaustedAttempts)
	ErrAlreadyGuessed    = fmt.Errorf("%w: word already guessed this round", apperr.ErrConflict)
	ErrRoundActive       = fmt.Errorf("%w: a round is already running", apperr.ErrConflict)
	ErrNotEnoughPlayers  = fmt.Errorf("%w: not enough players to start", apperr.ErrConflict)
	ErrCannotKickHost    = fmt.Errorf("%w: the host cannot be kicked", apperr.ErrInvalidArgument)
	ErrEmptyMessage      = fmt.Errorf("%w: empty message", apperr.ErrInvalidArgument)
)

// Caller is the identity bound to the acting connection.
type Caller struct {
	SessionID  string
	PlayerID   string
	PlayerName string
}

// Rounds is the part of the round timer the handler drives.
type Rounds interface {
	StartRound(roomID string, roundNumber, totalRounds int, cfg room.Config) error
	StopRound(roomID string) bool
	IsRoundActive(roomID string) bool
	RemainingSeconds(roomID string) int
}

type Rules struct {
	MinPlayers            int
	PointsPerCorrectGuess int
	GuessMatch            string
	CloseGuessDistance    int
}

func RulesFromConfig(c config.GameConfig) Rules {
	return Rules{
		MinPlayers:            c.MinPlayers,
		PointsPerCorrectGuess: c.PointsPerCorrectGuess,
		GuessMatch:            c.GuessMatch,
		CloseGuessDistance:    c.CloseGuessDistance,
	}
}

type Handler struct {
	dir       *room.Directory
	games     *game.Sessions
	rounds    Rounds
	transport broadcast.Broadcaster
	rules     Rules
	match     Matcher
	monitor   *monitor.Monitor
}

func New(dir *room.Directory, games *game.Sessions, rounds Rounds, transport broadcast.Broadcaster, rules Rules, mon *monitor.Monitor) (*Handler, error) {
	match, err := NewMatcher(rules.GuessMatch)
	if err != nil {
		return nil, err
	}
	if rules.MinPlayers < 1 {
		rules.MinPlayers = 1
	}
	return &Handler{
		dir:       dir,
		games:     games,
		rounds:    rounds,
		transport: transport,
		rules:     rules,
		match:     match,
		monitor:   mon,
	}, nil
}

// reject logs a refused action with its room and player and hands the
// error back for the caller-only error packet.
func (h *Handler) reject(op string, c Caller, roomID string, err error) error {
	code := apperr.Code(err)
	fields := []interface{}{"room", roomID, "player", c.PlayerID, "op", op, "code", code.String(), "error", err}
	if code == codes.Unavailable || code == codes.Internal {
		logger.Log.Errorw("action failed", fields...)
	} else {
		logger.Log.Warnw("action rejected", fields...)
	}
	h.monitor.IncRejected(op, code.String())
	return err
}

// member loads the room and the caller's record in it.
func (h *Handler) member(ctx context.Context, roomID, playerID string) (room.Room, room.Player, error) {
	r, err := h.dir.GetRoom(ctx, roomID)
	if err != nil {
		return room.Room{}, room.Player{}, err
	}
	p, found, err := h.dir.FindPlayerByPlayerID(ctx, roomID, playerID)
	if err != nil {
		return room.Room{}, room.Player{}, err
	}
	if !found {
		return room.Room{}, room.Player{}, room.ErrNotMember
	}
	return r, p, nil
}

func (h *Handler) JoinRoom(ctx context.Context, c Caller, req network.JoinRoomRequest) error {
	if err := h.joinRoom(ctx, c, req); err != nil {
		return h.reject("join_room", c, req.RoomID, err)
	}
	return nil
}

func (h *Handler) joinRoom(ctx context.Context, c Caller, req network.JoinRoomRequest) error {
	r, err := h.dir.GetRoom(ctx, req.RoomID)
	if err != nil {
		return err
	}
	existing, found, err := h.dir.FindPlayerByPlayerID(ctx, r.ID, c.PlayerID)
	if err != nil {
		return err
	}
	// a player already seated (placeholder or another connection) keeps
	// their seat, so only newcomers are checked against capacity
	if !found {
		full, err := h.dir.IsRoomFull(ctx, r.ID)
		if err != nil {
			return err
		}
		if full {
			return ErrRoomFull
		}
	}

	p := room.Player{
		ConnectionID: c.SessionID,
		PlayerID:     c.PlayerID,
		PlayerName:   firstNonEmpty(req.PlayerName, c.PlayerName, existing.PlayerName),
		PlayerAvatar: firstNonEmpty(req.PlayerAvatar, existing.PlayerAvatar),
	}
	if found && existing.Connected() {
		p.JoinedAt = existing.JoinedAt
		if err := h.dir.ReplacePlayer(ctx, r.ID, existing, p); err != nil {
			return err
		}
		if existing.ConnectionID != c.SessionID {
			h.transport.Leave(r.ID, existing.ConnectionID)
		}
	} else {
		ok, err := h.dir.AddPlayer(ctx, r.ID, p)
		if err != nil {
			return err
		}
		if !ok {
			return room.ErrRoomNotFound
		}
	}
	stored, _, err := h.dir.FindPlayerByPlayerID(ctx, r.ID, c.PlayerID)
	if err != nil {
		return err
	}

	h.transport.Join(r.ID, c.SessionID)
	h.transport.ToRoomExcept(r.ID, c.SessionID, network.MsgTypeUserJoined, network.UserJoined{RoomID: r.ID, Player: stored})

	ack, err := h.snapshot(ctx, r, c.PlayerID)
	if err != nil {
		return err
	}
	return h.transport.ToSession(c.SessionID, network.MsgTypeJoinRoom, ack)
}

func (h *Handler) snapshot(ctx context.Context, r room.Room, playerID string) (network.JoinRoomAck, error) {
	players, err := h.dir.ListAllPlayers(ctx, playerID, r.ID)
	if err != nil {
		return network.JoinRoomAck{}, err
	}
	ack := network.JoinRoomAck{Room: r, Players: players, Phase: state.PhaseWaiting}
	sess, err := h.games.GetSession(ctx, r.ID)
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return ack, nil
	case err != nil:
		return network.JoinRoomAck{}, err
	}
	ack.Phase = sess.Phase
	ack.Round = sess.CurrentRound
	ack.TotalRounds = sess.TotalRounds
	ack.RemainingSeconds = h.rounds.RemainingSeconds(r.ID)
	if ack.Scores, err = h.games.GetScores(ctx, r.ID); err != nil {
		return network.JoinRoomAck{}, err
	}
	return ack, nil
}

func (h *Handler) LeaveRoom(ctx context.Context, c Caller, roomID string) error {
	if err := h.leaveRoom(ctx, c, roomID); err != nil {
		return h.reject("leave_room", c, roomID, err)
	}
	return nil
}

func (h *Handler) leaveRoom(ctx context.Context, c Caller, roomID string) error {
	r, p, err := h.member(ctx, roomID, c.PlayerID)
	if err != nil {
		return err
	}
	if r.IsHost(c.PlayerID) {
		return h.teardown(ctx, r, c)
	}
	if err := h.dir.RemovePlayer(ctx, r.ID, p); err != nil {
		return err
	}
	h.transport.ToSession(c.SessionID, network.MsgTypeLeaveRoom, network.LeaveRoomAck{RoomID: r.ID})
	h.transport.Leave(r.ID, c.SessionID)
	h.transport.ToRoom(r.ID, network.MsgTypeUserLeft, network.UserLeft{RoomID: r.ID, Player: p})
	return nil
}

// teardown dissolves the room: the timer stops, members are told, then the
// room and every game key go.
func (h *Handler) teardown(ctx context.Context, r room.Room, c Caller) error {
	h.rounds.StopRound(r.ID)
	h.transport.ToSession(c.SessionID, network.MsgTypeLeaveRoom, network.LeaveRoomAck{RoomID: r.ID})
	h.transport.ToRoom(r.ID, network.MsgTypeRoomDeleted, network.RoomDeleted{RoomID: r.ID})
	h.transport.DeleteGroup(r.ID)
	if err := h.dir.DeleteRoom(ctx, r.ID); err != nil {
		return err
	}
	logger.Log.Infow("room deleted", "room", r.ID, "host", c.PlayerID)
	return nil
}

// Disconnect runs when a connection drops. Only the record bound to this
// connection is removed; a newer connection for the same player stays.
func (h *Handler) Disconnect(ctx context.Context, c Caller, roomID string) error {
	if roomID == "" {
		return nil
	}
	h.transport.Leave(roomID, c.SessionID)
	p, found, err := h.dir.FindPlayerByPlayerID(ctx, roomID, c.PlayerID)
	if err != nil {
		return h.reject("disconnect", c, roomID, err)
	}
	if !found || p.ConnectionID != c.SessionID {
		return nil
	}
	err = h.leaveRoom(ctx, c, roomID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return h.reject("disconnect", c, roomID, err)
	}
	return nil
}

func (h *Handler) KickPlayer(ctx context.Context, c Caller, req network.KickPlayerRequest) error {
	if err := h.kickPlayer(ctx, c, req); err != nil {
		return h.reject("kick_player", c, req.RoomID, err)
	}
	return nil
}

func (h *Handler) kickPlayer(ctx context.Context, c Caller, req network.KickPlayerRequest) error {
	r, err := h.dir.GetRoom(ctx, req.RoomID)
	if err != nil {
		return err
	}
	if !r.IsHost(c.PlayerID) {
		return ErrNotHost
	}
	if r.IsHost(req.PlayerID) {
		return ErrCannotKickHost
	}
	target, found, err := h.dir.FindPlayerByPlayerID(ctx, r.ID, req.PlayerID)
	if err != nil {
		return err
	}
	if !found {
		return room.ErrPlayerNotFound
	}
	if err := h.dir.RemovePlayer(ctx, r.ID, target); err != nil {
		return err
	}
	h.transport.ToRoom(r.ID, network.MsgTypeUserLeft, network.UserLeft{RoomID: r.ID, Player: target, Kicked: true})
	if target.Connected() {
		h.transport.Leave(r.ID, target.ConnectionID)
	}
	logger.Log.Infow("player kicked", "room", r.ID, "player", target.PlayerID, "by", c.PlayerID)
	return nil
}

func (h *Handler) SendRoomMessage(ctx context.Context, c Caller, req network.TextRequest) error {
	if err := h.sendRoomMessage(ctx, c, req); err != nil {
		return h.reject("room_message", c, req.RoomID, err)
	}
	return nil
}

func (h *Handler) sendRoomMessage(ctx context.Context, c Caller, req network.TextRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyMessage
	}
	r, p, err := h.member(ctx, req.RoomID, c.PlayerID)
	if err != nil {
		return err
	}
	return h.transport.ToRoomExcept(r.ID, c.SessionID, network.MsgTypeRoomMessageReceived, network.RoomMessageReceived{
		RoomID:     r.ID,
		SenderID:   p.PlayerID,
		SenderName: p.PlayerName,
		Text:       req.Text,
	})
}

func (h *Handler) SendDrawAction(ctx context.Context, c Caller, req network.DrawActionRequest) error {
	if err := h.sendDrawAction(ctx, c, req); err != nil {
		return h.reject("draw_action", c, req.RoomID, err)
	}
	return nil
}

func (h *Handler) sendDrawAction(ctx context.Context, c Caller, req network.DrawActionRequest) error {
	r, _, err := h.member(ctx, req.RoomID, c.PlayerID)
	if err != nil {
		return err
	}
	sess, err := h.games.GetSession(ctx, r.ID)
	if errors.Is(err, game.ErrSessionNotFound) {
		return ErrNotDrawingPhase
	}
	if err != nil {
		return err
	}
	if sess.Phase != state.PhaseDrawing {
		return ErrNotDrawingPhase
	}
	if sess.CurrentDrawerID != c.PlayerID {
		return ErrNotDrawer
	}
	action := req.Action
	if len(action) == 0 {
		action = json.RawMessage("null")
	}
	return h.transport.ToRoomExcept(r.ID, c.SessionID, network.MsgTypeDrawActionReceived, network.DrawActionReceived{
		RoomID:   r.ID,
		PlayerID: c.PlayerID,
		Action:   action,
	})
}

func (h *Handler) StartRound(ctx context.Context, c Caller, roomID string) error {
	if err := h.startRound(ctx, c, roomID); err != nil {
		return h.reject("start_round", c, roomID, err)
	}
	return nil
}

func (h *Handler) startRound(ctx context.Context, c Caller, roomID string) error {
	r, err := h.dir.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.IsHost(c.PlayerID) {
		return ErrNotHost
	}
	if h.rounds.IsRoundActive(r.ID) {
		return ErrRoundActive
	}
	players, err := h.dir.ListAllPlayers(ctx, c.PlayerID, r.ID)
	if err != nil {
		return err
	}
	// seats that never connected do not take turns
	ids := make([]string, 0, len(players))
	for _, p := range players {
		if p.Connected() {
			ids = append(ids, p.PlayerID)
		}
	}
	if len(ids) < h.rules.MinPlayers {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(ids), h.rules.MinPlayers)
	}

	total := r.Config.MaxRoundsPerPlayer * len(ids)
	if err := h.games.InitializeWordPool(ctx, r.ID, total); err != nil {
		return err
	}
	if err := h.games.InitializeGameSession(ctx, r.ID, ids, total); err != nil {
		return err
	}
	if err := h.games.ResetScores(ctx, r.ID); err != nil {
		return err
	}
	if err := h.games.InitializeHearts(ctx, r.ID, ids); err != nil {
		return err
	}
	logger.Log.Infow("game started", "room", r.ID, "players", len(ids), "rounds", total)
	return h.AdvanceRound(ctx, r.ID)
}

// AdvanceRound draws the next word and drawer and starts the timer. The
// dispatcher calls it when a non-final round ends.
func (h *Handler) AdvanceRound(ctx context.Context, roomID string) error {
	r, err := h.dir.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	start, err := h.games.StartNextRound(ctx, r.ID)
	if err != nil {
		return err
	}
	return h.rounds.StartRound(r.ID, start.Round, start.TotalRounds, r.Config)
}
