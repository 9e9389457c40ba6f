package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/round"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr. Services are added with Register before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

func (s *Server) Register(service interface{}) error {
	return s.rpc.Register(service)
}

func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes room timers to operators.
type RoomService struct {
	dir    *room.Directory
	rounds *round.Service
}

func NewRoomService(dir *room.Directory, rounds *round.Service) *RoomService {
	return &RoomService{dir: dir, rounds: rounds}
}

// net/rpc signatures: exported method, exported args, pointer reply, error.
type RoomArgs struct {
	RoomID string
}

type StatusReply struct {
	Exists      bool
	PlayerCount int
	Active      bool
	Round       round.Status
}

func (rs *RoomService) Status(args *RoomArgs, reply *StatusReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := rs.dir.RoomExists(ctx, args.RoomID)
	if err != nil {
		return err
	}
	reply.Exists = exists
	if exists {
		if reply.PlayerCount, err = rs.dir.GetPlayerCount(ctx, args.RoomID); err != nil {
			return err
		}
	}
	reply.Round, reply.Active = rs.rounds.Status(args.RoomID)
	return nil
}

type StopReply struct {
	Stopped bool
}

// StopRound cancels the room's timer without touching stored state. No
// further round events are published for it.
func (rs *RoomService) StopRound(args *RoomArgs, reply *StopReply) error {
	reply.Stopped = rs.rounds.StopRound(args.RoomID)
	if reply.Stopped {
		logger.Log.Infow("round stopped over rpc", "room", args.RoomID)
	}
	return nil
}

type ActiveReply struct {
	Count int
}

// ActiveRounds ignores args.RoomID; gob cannot send an empty struct.
func (rs *RoomService) ActiveRounds(_ *RoomArgs, reply *ActiveReply) error {
	reply.Count = rs.rounds.ActiveRounds()
	return nil
}
