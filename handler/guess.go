package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/wfunc/drawguess/config"
	"github.com/wfunc/drawguess/game"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/state"
)

// Matcher reports whether a guess names the word.
type Matcher func(guess, word string) bool

func NewMatcher(rule string) (Matcher, error) {
	switch rule {
	case config.GuessMatchExact:
		return func(guess, word string) bool { return guess == word }, nil
	case config.GuessMatchCaseInsensitive:
		return func(guess, word string) bool {
			return strings.EqualFold(strings.TrimSpace(guess), strings.TrimSpace(word))
		}, nil
	case config.GuessMatchNormalized, "":
		return func(guess, word string) bool { return normalize(guess) == normalize(word) }, nil
	default:
		return nil, config.ErrInvalidGuessMatch
	}
}

// normalize folds case and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) SendGuessMessage(ctx context.Context, c Caller, req network.TextRequest) error {
	if err := h.sendGuessMessage(ctx, c, req); err != nil {
		return h.reject("guess_message", c, req.RoomID, err)
	}
	return nil
}

func (h *Handler) sendGuessMessage(ctx context.Context, c Caller, req network.TextRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyMessage
	}
	r, p, err := h.member(ctx, req.RoomID, c.PlayerID)
	if err != nil {
		return err
	}
	sess, err := h.games.GetSession(ctx, r.ID)
	if errors.Is(err, game.ErrSessionNotFound) {
		return ErrNotGuessingPhase
	}
	if err != nil {
		return err
	}

	// out of hearts is the more specific reason, so it wins over phase
	hearts, err := h.games.GetHearts(ctx, r.ID, c.PlayerID)
	if err != nil {
		return err
	}
	if hearts <= 0 {
		return ErrNoHeartsLeft
	}
	if sess.Phase != state.PhaseDrawing && sess.Phase != state.PhaseGuessing {
		return ErrNotGuessingPhase
	}
	if sess.CurrentDrawerID == c.PlayerID {
		return ErrDrawerCannotGuess
	}
	guessed, err := h.games.HasGuessed(ctx, r.ID, c.PlayerID)
	if err != nil {
		return err
	}
	if guessed {
		return ErrAlreadyGuessed
	}

	if h.match(req.Text, sess.CurrentWord) {
		first, err := h.games.MarkGuessed(ctx, r.ID, c.PlayerID)
		if err != nil {
			return err
		}
		if !first {
			return ErrAlreadyGuessed
		}
		score, err := h.games.IncrementScore(ctx, r.ID, c.PlayerID, h.rules.PointsPerCorrectGuess)
		if err != nil {
			return err
		}
		h.monitor.IncGuess(true)
		return h.transport.ToRoom(r.ID, network.MsgTypeGuessCorrect, network.GuessCorrect{
			RoomID:     r.ID,
			PlayerID:   c.PlayerID,
			PlayerName: p.PlayerName,
			NewScore:   score,
		})
	}

	h.monitor.IncGuess(false)
	// the chat broadcast and the heart both happen even if the other fails
	broadcastErr := h.transport.ToRoom(r.ID, network.MsgTypeGuessWrong, network.GuessWrong{
		RoomID:     r.ID,
		PlayerID:   c.PlayerID,
		PlayerName: p.PlayerName,
		Text:       req.Text,
	})
	left, heartErr := h.games.DecrementHeart(ctx, r.ID, c.PlayerID)
	if heartErr == nil && h.isClose(req.Text, sess.CurrentWord) {
		h.transport.ToSession(c.SessionID, network.MsgTypeGuessClose, network.GuessClose{
			RoomID:     r.ID,
			Guess:      req.Text,
			HeartsLeft: left,
		})
	}
	if err := errors.Join(broadcastErr, heartErr); err != nil {
		return err
	}
	logger.Log.Debugw("wrong guess", "room", r.ID, "player", c.PlayerID, "hearts", left)
	return nil
}

func (h *Handler) isClose(guess, word string) bool {
	if h.rules.CloseGuessDistance <= 0 {
		return false
	}
	d := levenshtein.ComputeDistance(normalize(guess), normalize(word))
	return d > 0 && d <= h.rules.CloseGuessDistance
}
