// Package dispatch turns round timer events into room broadcasts and keeps
// the persisted session phase in step with the timer.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/broadcast"
	"github.com/wfunc/drawguess/game"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/round"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/words"
)

// RoundAdvancer starts the next round after a non-final one ends.
type RoundAdvancer interface {
	AdvanceRound(ctx context.Context, roomID string) error
}

type Dispatcher struct {
	dir          *room.Directory
	games        *game.Sessions
	transport    broadcast.Broadcaster
	advancer     RoundAdvancer
	hintFraction float64
	timeout      time.Duration
}

func New(dir *room.Directory, games *game.Sessions, transport broadcast.Broadcaster, advancer RoundAdvancer, hintFraction float64) *Dispatcher {
	return &Dispatcher{
		dir:          dir,
		games:        games,
		transport:    transport,
		advancer:     advancer,
		hintFraction: hintFraction,
		timeout:      5 * time.Second,
	}
}

// HandleRoundEvent is registered with round.Service.Subscribe at startup.
func (d *Dispatcher) HandleRoundEvent(e round.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	switch e.Type {
	case round.EventRoundStarted:
		err = d.roundStarted(ctx, e)
	case round.EventPhaseChanged:
		err = d.phaseChanged(ctx, e)
	case round.EventRoundEnded:
		err = d.roundEnded(ctx, e)
	default:
		logger.Log.Warnw("unknown round event", "room", e.RoomID, "event", e.Type.String())
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		// room torn down while the event was in flight
		logger.Log.Debugw("round event for a missing room", "room", e.RoomID, "event", e.Type.String(), "error", err)
	default:
		logger.Log.Errorw("round event failed", "room", e.RoomID, "event", e.Type.String(), "round", e.Round, "error", err)
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func (d *Dispatcher) roundStarted(ctx context.Context, e round.Event) error {
	sess, err := d.games.GetSession(ctx, e.RoomID)
	if err != nil {
		return err
	}
	d.transport.ToRoom(e.RoomID, network.MsgTypeRoundStarted, network.RoundStarted{
		RoomID:          e.RoomID,
		RoundNumber:     e.Round,
		TotalRounds:     e.TotalRounds,
		DurationSeconds: seconds(e.Duration),
		StartTime:       e.StartTime,
		DrawerID:        sess.CurrentDrawerID,
	})
	d.transport.ToRoom(e.RoomID, network.MsgTypePhaseChanged, network.PhaseChanged{
		RoomID:          e.RoomID,
		RoundNumber:     e.Round,
		Phase:           state.PhaseDrawing,
		DurationSeconds: seconds(e.Duration),
		StartTime:       e.StartTime,
	})

	// 只发给画手
	drawer, found, err := d.dir.FindPlayerByPlayerID(ctx, e.RoomID, sess.CurrentDrawerID)
	if err != nil {
		return err
	}
	if !found || !drawer.Connected() {
		logger.Log.Warnw("drawer has no connection", "room", e.RoomID, "player", sess.CurrentDrawerID, "round", e.Round)
		return nil
	}
	return d.transport.ToSession(drawer.ConnectionID, network.MsgTypeWordToDraw, network.WordToDraw{
		RoomID:      e.RoomID,
		RoundNumber: e.Round,
		Word:        sess.CurrentWord,
	})
}

func (d *Dispatcher) phaseChanged(ctx context.Context, e round.Event) error {
	if err := d.games.SetPhase(ctx, e.RoomID, e.Phase); err != nil {
		return err
	}
	sess, err := d.games.GetSession(ctx, e.RoomID)
	if err != nil {
		return err
	}

	msg := network.PhaseChanged{
		RoomID:          e.RoomID,
		RoundNumber:     e.Round,
		Phase:           e.Phase,
		DurationSeconds: seconds(e.Duration),
		StartTime:       e.StartTime,
	}
	revealed := words.Reveal(sess.CurrentWord, d.hintFraction)
	if e.Phase == state.PhaseReveal {
		word := sess.CurrentWord
		msg.Word = &word
		revealed = word
	}
	d.transport.ToRoom(e.RoomID, network.MsgTypePhaseChanged, msg)
	return d.transport.ToRoom(e.RoomID, network.MsgTypeWordRevealed, network.WordRevealed{
		RoomID:       e.RoomID,
		RoundNumber:  e.Round,
		RevealedWord: revealed,
	})
}

// roundEnded either finishes the game or asks for the next round. A next
// round that cannot start ends the game instead of leaving it stuck.
func (d *Dispatcher) roundEnded(ctx context.Context, e round.Event) error {
	if e.GameFinished {
		return d.finishGame(ctx, e)
	}
	d.transport.ToRoom(e.RoomID, network.MsgTypeEndedGame, network.EndedGame{
		RoomID:      e.RoomID,
		RoundNumber: e.Round,
	})
	err := d.advancer.AdvanceRound(ctx, e.RoomID)
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	logger.Log.Errorw("next round did not start, ending game", "room", e.RoomID, "round", e.Round, "error", err)
	e.GameFinished = true
	return d.finishGame(ctx, e)
}

func (d *Dispatcher) finishGame(ctx context.Context, e round.Event) error {
	if err := d.games.SetPhase(ctx, e.RoomID, state.PhaseFinished); err != nil {
		return err
	}
	scores, err := d.games.GetScores(ctx, e.RoomID)
	if err != nil {
		return err
	}
	logger.Log.Infow("game finished", "room", e.RoomID, "rounds", e.Round)
	return d.transport.ToRoom(e.RoomID, network.MsgTypeEndedGame, network.EndedGame{
		RoomID:         e.RoomID,
		RoundNumber:    e.Round,
		IsGameFinished: true,
		Scores:         scores,
	})
}
