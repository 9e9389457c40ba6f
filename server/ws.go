package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/auth"
	"github.com/wfunc/drawguess/handler"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/network"
	"github.com/wfunc/drawguess/session"
)

var (
	ErrRateLimited    = fmt.Errorf("%w: too many messages", apperr.ErrExhaustedAttempts)
	ErrMalformed      = fmt.Errorf("%w: malformed payload", apperr.ErrInvalidArgument)
	ErrUnknownMessage = fmt.Errorf("%w: unknown message type", apperr.ErrInvalidArgument)
)

const actionTimeout = 5 * time.Second

func (s *GameServer) handleWebSocket(c *gin.Context) {
	id, err := s.deps.Auth.Authenticate(c.Request)
	if err != nil {
		abortWithError(c, err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, id, c.Query("room"))
}

func caller(sess *session.Session) handler.Caller {
	return handler.Caller{SessionID: sess.ID, PlayerID: sess.PlayerID, PlayerName: sess.PlayerName}
}

func (s *GameServer) handleConnection(conn *websocket.Conn, id auth.Identity, roomID string) {
	wsConn := network.NewWSConnection(conn)
	if s.opts.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.opts.Heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.PlayerID = id.PlayerID
	sess.PlayerName = id.Name
	sess.SetRateLimit(s.opts.MessagesPerSecond, s.opts.Burst)
	s.deps.Sessions.Add(sess)
	s.deps.Monitor.IncOnlinePlayers()

	logger.Log.Infow("new connection", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID(), "player", id.PlayerID)

	defer func() {
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID(), "player", id.PlayerID)
		s.deps.Sessions.Remove(sess.GetID())
		s.deps.Monitor.DecOnlinePlayers()

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		s.deps.Handler.Disconnect(ctx, caller(sess), sess.RoomID())
		wsConn.Close()
	}()

	if roomID != "" {
		s.join(sess, network.JoinRoomRequest{RoomID: roomID})
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	defer func() { s.deps.Monitor.ObserveMessageLatency(time.Since(start)) }()

	sess.Touch()
	s.deps.Monitor.IncMessagesReceived(network.MsgName(packet.MsgID))
	if packet.MsgID == network.MsgTypeHeartbeat {
		return
	}
	if !sess.Allow() {
		s.deps.Monitor.IncRejected(network.MsgName(packet.MsgID), apperr.Code(ErrRateLimited).String())
		s.sendError(sess, packet.MsgID, ErrRateLimited)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	c := caller(sess)

	var err error
	switch packet.MsgID {
	case network.MsgTypeJoinRoom:
		var req network.JoinRoomRequest
		if err = decode(packet, &req); err == nil {
			s.join(sess, req)
			return
		}
	case network.MsgTypeLeaveRoom:
		var req network.RoomRequest
		if err = decode(packet, &req); err == nil {
			roomID := orRoom(sess, req.RoomID)
			if err = s.deps.Handler.LeaveRoom(ctx, c, roomID); err == nil && roomID == sess.RoomID() {
				sess.SetRoomID("")
			}
		}
	case network.MsgTypeKickPlayer:
		var req network.KickPlayerRequest
		if err = decode(packet, &req); err == nil {
			req.RoomID = orRoom(sess, req.RoomID)
			err = s.deps.Handler.KickPlayer(ctx, c, req)
		}
	case network.MsgTypeRoomMessage:
		var req network.TextRequest
		if err = decode(packet, &req); err == nil {
			req.RoomID = orRoom(sess, req.RoomID)
			err = s.deps.Handler.SendRoomMessage(ctx, c, req)
		}
	case network.MsgTypeStartRound:
		var req network.RoomRequest
		if err = decode(packet, &req); err == nil {
			err = s.deps.Handler.StartRound(ctx, c, orRoom(sess, req.RoomID))
		}
	case network.MsgTypeDrawAction:
		var req network.DrawActionRequest
		if err = decode(packet, &req); err == nil {
			req.RoomID = orRoom(sess, req.RoomID)
			err = s.deps.Handler.SendDrawAction(ctx, c, req)
		}
	case network.MsgTypeGuessMessage:
		var req network.TextRequest
		if err = decode(packet, &req); err == nil {
			req.RoomID = orRoom(sess, req.RoomID)
			err = s.deps.Handler.SendGuessMessage(ctx, c, req)
		}
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		err = ErrUnknownMessage
	}
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
	}
}

func (s *GameServer) join(sess *session.Session, req network.JoinRoomRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	// one room per connection
	if prev := sess.RoomID(); prev != "" && prev != req.RoomID {
		s.deps.Handler.Disconnect(ctx, caller(sess), prev)
		sess.SetRoomID("")
	}
	if err := s.deps.Handler.JoinRoom(ctx, caller(sess), req); err != nil {
		s.sendError(sess, network.MsgTypeJoinRoom, err)
		return
	}
	sess.SetRoomID(req.RoomID)
}

func orRoom(sess *session.Session, roomID string) string {
	if roomID != "" {
		return roomID
	}
	return sess.RoomID()
}

func decode(packet *network.Packet, v interface{}) error {
	if len(packet.Data) == 0 {
		return nil
	}
	if err := network.Decode(packet.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// sendError reports a rejected action to the acting connection only.
func (s *GameServer) sendError(sess *session.Session, msgID uint16, err error) {
	op := network.MsgName(msgID)
	msg := network.ErrorMessage{
		Op:      op,
		Code:    apperr.Code(err).String(),
		Message: err.Error(),
	}
	data, encErr := network.Encode(msg)
	if encErr != nil {
		logger.Log.Errorw("encode error message", "session", sess.GetID(), "error", encErr)
		return
	}
	if sendErr := sess.Send(network.MsgTypeError, data); sendErr != nil {
		logger.Log.Debugw("send error message", "session", sess.GetID(), "error", sendErr)
		return
	}
	s.deps.Monitor.IncMessagesSent(network.MsgName(network.MsgTypeError))
}
