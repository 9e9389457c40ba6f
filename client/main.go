package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/network"
)

// gorilla allows one concurrent writer
var writeMutex sync.Mutex

// send encodes payload as JSON and frames it for the server.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = network.Encode(payload); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	writeMutex.Lock()
	defer writeMutex.Unlock()
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func identify(h http.Header, q url.Values, player, name, token string) {
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
		return
	}
	q.Set("playerId", player)
	q.Set("playerName", name)
	h.Set("X-Player-Id", player)
	h.Set("X-Player-Name", name)
}

func createRoom(addr, player, name, token string) (string, error) {
	req, err := http.NewRequest("POST", "http://"+addr+"/rooms", bytes.NewBufferString(`{}`))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	identify(req.Header, url.Values{}, player, name, token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: %s", resp.Status)
	}
	var r struct {
		ID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	return r.ID, nil
}

const usage = `commands:
  /start            start the game (host only)
  /chat <text>      room chat
  /draw <json>      send a stroke (drawer only)
  /kick <playerId>  kick a player (host only)
  /leave            leave the room
  anything else is sent as a guess`

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	player := flag.String("player", "player1", "player id (dev auth)")
	name := flag.String("name", "", "display name")
	token := flag.String("token", "", "JWT; overrides -player")
	roomID := flag.String("room", "", "room to join")
	create := flag.Bool("create", false, "create a room and join it as host")
	flag.Parse()

	logger.Init(true)
	defer logger.Sync()

	if *name == "" {
		*name = *player
	}
	if *create {
		id, err := createRoom(*addr, *player, *name, *token)
		if err != nil {
			logger.Log.Fatalf("Create room failed: %v", err)
		}
		*roomID = id
		logger.Log.Infof("Created room %s", id)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	header := http.Header{}
	q := url.Values{}
	identify(header, q, *player, *name, *token)
	if *roomID != "" {
		q.Set("room", *roomID)
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			fmt.Printf("<- %s: %s\n", network.MsgName(packet.MsgID), string(packet.Data))
		}
	}()

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()
	go func() {
		for range heartbeat.C {
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			writeMutex.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMutex.Unlock()
			if err != nil {
				logger.Log.Infof("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text := <-lines:
			if text == "" {
				continue
			}
			if err := command(c, *roomID, text); err != nil {
				logger.Log.Infof("Write error: %v", err)
				return
			}
		}
	}
}

func command(c *websocket.Conn, roomID, text string) error {
	cmd, arg, _ := strings.Cut(text, " ")
	switch cmd {
	case "/start":
		return send(c, network.MsgTypeStartRound, network.RoomRequest{RoomID: roomID})
	case "/chat":
		return send(c, network.MsgTypeRoomMessage, network.TextRequest{RoomID: roomID, Text: arg})
	case "/draw":
		if !json.Valid([]byte(arg)) {
			fmt.Println("stroke must be JSON")
			return nil
		}
		return send(c, network.MsgTypeDrawAction, network.DrawActionRequest{RoomID: roomID, Action: json.RawMessage(arg)})
	case "/kick":
		return send(c, network.MsgTypeKickPlayer, network.KickPlayerRequest{RoomID: roomID, PlayerID: arg})
	case "/leave":
		return send(c, network.MsgTypeLeaveRoom, network.RoomRequest{RoomID: roomID})
	default:
		return send(c, network.MsgTypeGuessMessage, network.TextRequest{RoomID: roomID, Text: text})
	}
}
