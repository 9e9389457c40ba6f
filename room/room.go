// room/room.go
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/store"
)

var (
	ErrRoomNotFound   = fmt.Errorf("room %w", apperr.ErrNotFound)
	ErrPlayerNotFound = fmt.Errorf("player %w", apperr.ErrNotFound)
	ErrNotMember      = fmt.Errorf("%w: caller is not a member of the room", apperr.ErrForbidden)
)

type Options struct {
	// RoomTTL is set once when the room is created.
	RoomTTL time.Duration
	// PlayerTTL is refreshed on every AddPlayer.
	PlayerTTL time.Duration
	// RenewMetadataTTL also refreshes the metadata expiry on AddPlayer.
	// Off by default: long games can then outlive their room record while
	// the player set stays alive.
	RenewMetadataTTL bool
}

// Directory stores room metadata and player membership. Multi-key updates
// are not transactional: "check room, then add player" and "remove
// placeholder, then insert" each leave a window for concurrent writers.
type Directory struct {
	store store.Store
	opts  Options
	now   func() time.Time
}

func NewDirectory(s store.Store, opts Options) *Directory {
	return &Directory{store: s, opts: opts, now: time.Now}
}

func metadataKey(roomID string) string { return store.RoomKey(roomID, store.SuffixMetadata) }
func playersKey(roomID string) string  { return store.RoomKey(roomID, store.SuffixPlayers) }

func encodePlayer(p Player) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateRoom stores a new room and seats the host as a placeholder (no
// connection) until they join over the realtime channel.
func (d *Directory) CreateRoom(ctx context.Context, name string, host Host, hostAvatar string, cfg Config) (Room, error) {
	if err := cfg.Validate(); err != nil {
		return Room{}, err
	}
	if host.HostID == "" {
		return Room{}, fmt.Errorf("%w: host id is required", apperr.ErrInvalidArgument)
	}

	r := Room{
		ID:        uuid.New().String(),
		Name:      name,
		Host:      host,
		Config:    cfg,
		CreatedAt: d.now(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return Room{}, err
	}
	if err := d.store.Set(ctx, metadataKey(r.ID), string(data), d.opts.RoomTTL); err != nil {
		return Room{}, err
	}

	placeholder := Player{
		PlayerID:     host.HostID,
		PlayerName:   host.HostName,
		PlayerAvatar: hostAvatar,
		JoinedAt:     r.CreatedAt.UnixMilli(),
	}
	if _, err := d.AddPlayer(ctx, r.ID, placeholder); err != nil {
		return Room{}, err
	}
	return r, nil
}

func (d *Directory) GetRoom(ctx context.Context, roomID string) (Room, error) {
	raw, ok, err := d.store.Get(ctx, metadataKey(roomID))
	if err != nil {
		return Room{}, err
	}
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	var r Room
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Room{}, apperr.Unavailable(fmt.Errorf("decode room %s: %w", roomID, err))
	}
	return r, nil
}

func (d *Directory) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return d.store.Exists(ctx, metadataKey(roomID))
}

func (d *Directory) IsRoomFull(ctx context.Context, roomID string) (bool, error) {
	r, err := d.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	count, err := d.GetPlayerCount(ctx, roomID)
	if err != nil {
		return false, err
	}
	return count >= r.Config.MaxPlayers, nil
}

// AddPlayer returns false without error when the room does not exist. A
// placeholder for the same PlayerID without a connection is removed first
// and its seat (JoinedAt) is inherited when p does not carry one.
func (d *Directory) AddPlayer(ctx context.Context, roomID string, p Player) (bool, error) {
	exists, err := d.RoomExists(ctx, roomID)
	if err != nil || !exists {
		return false, err
	}

	if p.Connected() {
		existing, found, err := d.FindPlayerByPlayerID(ctx, roomID, p.PlayerID)
		if err != nil {
			return false, err
		}
		if found && !existing.Connected() {
			if err := d.RemovePlayer(ctx, roomID, existing); err != nil {
				return false, err
			}
			if p.JoinedAt == 0 {
				p.JoinedAt = existing.JoinedAt
			}
		}
	}
	if p.JoinedAt == 0 {
		p.JoinedAt = d.now().UnixMilli()
	}

	member, err := encodePlayer(p)
	if err != nil {
		return false, err
	}
	if _, err := d.store.SAdd(ctx, playersKey(roomID), member); err != nil {
		return false, err
	}
	// a zero ttl keeps the set until DeleteRoom
	if d.opts.PlayerTTL > 0 {
		if err := d.store.Expire(ctx, playersKey(roomID), d.opts.PlayerTTL); err != nil {
			return false, err
		}
	}
	if d.opts.RenewMetadataTTL && d.opts.RoomTTL > 0 {
		if err := d.store.Expire(ctx, metadataKey(roomID), d.opts.RoomTTL); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RemovePlayer removes exactly this record. No-op when the room is gone.
func (d *Directory) RemovePlayer(ctx context.Context, roomID string, p Player) error {
	exists, err := d.RoomExists(ctx, roomID)
	if err != nil || !exists {
		return err
	}
	member, err := encodePlayer(p)
	if err != nil {
		return err
	}
	return d.store.SRem(ctx, playersKey(roomID), member)
}

// ReplacePlayer swaps one record for another. It is two store operations;
// a reader between them sees neither record.
func (d *Directory) ReplacePlayer(ctx context.Context, roomID string, old, updated Player) error {
	if err := d.RemovePlayer(ctx, roomID, old); err != nil {
		return err
	}
	ok, err := d.AddPlayer(ctx, roomID, updated)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomNotFound
	}
	return nil
}

func (d *Directory) GetPlayerCount(ctx context.Context, roomID string) (int, error) {
	return d.store.SCard(ctx, playersKey(roomID))
}

func (d *Directory) players(ctx context.Context, roomID string) ([]Player, error) {
	members, err := d.store.SMembers(ctx, playersKey(roomID))
	if err != nil {
		return nil, err
	}
	players := make([]Player, 0, len(members))
	for _, m := range members {
		var p Player
		if err := json.Unmarshal([]byte(m), &p); err != nil {
			return nil, apperr.Unavailable(fmt.Errorf("decode player in room %s: %w", roomID, err))
		}
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].PlayerID < players[j].PlayerID
	})
	return players, nil
}

// FindPlayerByPlayerID scans the member set. When more than one record
// carries the id, a connected one wins.
func (d *Directory) FindPlayerByPlayerID(ctx context.Context, roomID, playerID string) (Player, bool, error) {
	players, err := d.players(ctx, roomID)
	if err != nil {
		return Player{}, false, err
	}
	var (
		found Player
		ok    bool
	)
	for _, p := range players {
		if p.PlayerID != playerID {
			continue
		}
		if !ok || (p.Connected() && !found.Connected()) {
			found, ok = p, true
		}
	}
	return found, ok, nil
}

// ListAllPlayers returns every member in join order, refusing callers who
// are no longer in the room.
func (d *Directory) ListAllPlayers(ctx context.Context, callerID, roomID string) ([]Player, error) {
	players, err := d.players(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.PlayerID == callerID {
			return players, nil
		}
	}
	return nil, ErrNotMember
}

// DeleteRoom drops the metadata, the player set and all game keys.
func (d *Directory) DeleteRoom(ctx context.Context, roomID string) error {
	return d.store.Del(ctx, store.RoomKeys(roomID)...)
}
