package rpc

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/round"
	"github.com/wfunc/drawguess/state"
	"github.com/wfunc/drawguess/store"
	"github.com/wfunc/drawguess/timer"
)

func setup(t *testing.T) (*rpc.Client, *room.Directory, *round.Service) {
	t.Helper()
	dir := room.NewDirectory(store.NewMemoryStore(), room.Options{RoomTTL: time.Hour, PlayerTTL: time.Hour})
	rounds := round.NewService(timer.NewManualScheduler(time.Unix(1_700_000_000, 0)))

	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Register(NewRoomService(dir, rounds)))
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, dir, rounds
}

var cfg = room.Config{
	MaxPlayers:              4,
	MaxRoundsPerPlayer:      1,
	DrawingDurationSeconds:  60,
	GuessingDurationSeconds: 30,
	RevealDurationSeconds:   5,
}

func TestRoomService_Status(t *testing.T) {
	client, dir, rounds := setup(t)
	r, err := dir.CreateRoom(context.Background(), "room", room.Host{HostID: "host"}, "", cfg)
	require.NoError(t, err)

	var reply StatusReply
	require.NoError(t, client.Call("RoomService.Status", &RoomArgs{RoomID: r.ID}, &reply))
	assert.True(t, reply.Exists)
	assert.Equal(t, 1, reply.PlayerCount)
	assert.False(t, reply.Active)
	assert.Equal(t, state.PhaseWaiting, reply.Round.Phase)

	require.NoError(t, rounds.StartRound(r.ID, 1, 2, cfg))
	reply = StatusReply{}
	require.NoError(t, client.Call("RoomService.Status", &RoomArgs{RoomID: r.ID}, &reply))
	assert.True(t, reply.Active)
	assert.Equal(t, state.PhaseDrawing, reply.Round.Phase)
	assert.Equal(t, 60, reply.Round.RemainingSeconds)

	reply = StatusReply{}
	require.NoError(t, client.Call("RoomService.Status", &RoomArgs{RoomID: "missing"}, &reply))
	assert.False(t, reply.Exists)
	assert.False(t, reply.Active)
}

func TestRoomService_StopRound(t *testing.T) {
	client, _, rounds := setup(t)
	require.NoError(t, rounds.StartRound("r1", 1, 1, cfg))

	var active ActiveReply
	require.NoError(t, client.Call("RoomService.ActiveRounds", &RoomArgs{}, &active))
	assert.Equal(t, 1, active.Count)

	var stop StopReply
	require.NoError(t, client.Call("RoomService.StopRound", &RoomArgs{RoomID: "r1"}, &stop))
	assert.True(t, stop.Stopped)
	assert.False(t, rounds.IsRoundActive("r1"))

	stop = StopReply{}
	require.NoError(t, client.Call("RoomService.StopRound", &RoomArgs{RoomID: "r1"}, &stop))
	assert.False(t, stop.Stopped)
}
