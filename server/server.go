package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/auth"
	"github.com/wfunc/drawguess/broadcast"
	"github.com/wfunc/drawguess/handler"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/monitor"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/round"
	"github.com/wfunc/drawguess/session"
	gameserver_rpc "github.com/wfunc/drawguess/rpc"
)

type Options struct {
	HTTPAddress       string
	AllowedOrigins    []string
	MessagesPerSecond float64
	Burst             int
	// Heartbeat 为0时不设置读写超时
	Heartbeat    time.Duration
	RoomDefaults room.Config
	Debug        bool
}

// Deps are the long-lived services the server routes traffic to.
type Deps struct {
	Directory   *room.Directory
	Rounds      *round.Service
	Handler     *handler.Handler
	Sessions    *session.Manager
	Broadcaster *broadcast.RoomBroadcaster
	Auth        auth.Provider
	Monitor     *monitor.Monitor
	RPC         *gameserver_rpc.Server
}

type GameServer struct {
	opts         Options
	deps         Deps
	upgrader     websocket.Upgrader
	engine       *gin.Engine
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(opts Options, deps Deps) *GameServer {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &GameServer{
		opts:         opts,
		deps:         deps,
		shutdownChan: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddress,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *GameServer) allowAnyOrigin() bool {
	return len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*")
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowAnyOrigin() || slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *GameServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Player-Id",
			"X-Player-Name",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
		MaxAge: 12 * time.Hour,
	}
	if s.allowAnyOrigin() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.deps.Monitor.Handler()))
	r.POST("/rooms", s.handleCreateRoom)
	r.GET("/rooms/:id", s.handleGetRoom)
	r.GET("/rooms/:id/timer", s.handleRoomTimer)
	r.GET("/ws", s.handleWebSocket)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// Handler exposes the router for tests and embedding.
func (s *GameServer) Handler() http.Handler {
	return s.engine
}

func (s *GameServer) Start() error {
	if s.deps.RPC != nil {
		go s.deps.RPC.Start()
	}
	go s.reportGauges(5 * time.Second)

	logger.Log.Infof("Game server listening on %s", s.opts.HTTPAddress)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, cancels every round timer and
// closes the live sessions.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		err = s.httpServer.Shutdown(ctx)
		if s.deps.RPC != nil {
			s.deps.RPC.Stop()
		}
		s.deps.Rounds.StopAll()
		s.deps.Sessions.CloseAll()
	})
	return err
}

func (s *GameServer) reportGauges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			s.deps.Monitor.SetActiveRooms(s.deps.Broadcaster.GroupCount())
			s.deps.Monitor.SetActiveRounds(s.deps.Rounds.ActiveRounds())
		}
	}
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.deps.Sessions.Count(),
		"rounds":   s.deps.Rounds.ActiveRounds(),
	})
}

// CreateRoomRequest 房间配置缺省字段用服务端默认值
type CreateRoomRequest struct {
	RoomName   string       `json:"roomName"`
	HostName   string       `json:"hostName"`
	HostAvatar string       `json:"hostAvatar"`
	Config     *room.Config `json:"config"`
}

func (s *GameServer) roomConfig(req *room.Config) room.Config {
	cfg := s.opts.RoomDefaults
	if req == nil {
		return cfg
	}
	if req.MaxPlayers > 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}
	if req.MaxRoundsPerPlayer > 0 {
		cfg.MaxRoundsPerPlayer = req.MaxRoundsPerPlayer
	}
	if req.DrawingDurationSeconds > 0 {
		cfg.DrawingDurationSeconds = req.DrawingDurationSeconds
	}
	if req.GuessingDurationSeconds > 0 {
		cfg.GuessingDurationSeconds = req.GuessingDurationSeconds
	}
	if req.RevealDurationSeconds > 0 {
		cfg.RevealDurationSeconds = req.RevealDurationSeconds
	}
	return cfg
}

func (s *GameServer) handleCreateRoom(c *gin.Context) {
	id, err := s.deps.Auth.Authenticate(c.Request)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req CreateRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, errors.Join(apperr.ErrInvalidArgument, err))
			return
		}
	}
	name := req.RoomName
	if name == "" {
		name = id.Name + "'s room"
	}
	host := room.Host{HostID: id.PlayerID, HostName: firstNonEmpty(req.HostName, id.Name)}

	r, err := s.deps.Directory.CreateRoom(c.Request.Context(), name, host, req.HostAvatar, s.roomConfig(req.Config))
	if err != nil {
		abortWithError(c, err)
		return
	}
	logger.Log.Infow("room created", "room", r.ID, "host", host.HostID)
	c.JSON(http.StatusCreated, r)
}

func (s *GameServer) handleGetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := s.deps.Directory.GetRoom(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	count, err := s.deps.Directory.GetPlayerCount(ctx, r.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r, "playerCount": count})
}

func (s *GameServer) handleRoomTimer(c *gin.Context) {
	roomID := c.Param("id")
	exists, err := s.deps.Directory.RoomExists(c.Request.Context(), roomID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !exists {
		abortWithError(c, room.ErrRoomNotFound)
		return
	}
	status, active := s.deps.Rounds.Status(roomID)
	c.JSON(http.StatusOK, gin.H{"active": active, "status": status})
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition, codes.AlreadyExists:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := apperr.Code(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		logger.Log.Errorw("http request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"code": code.String(), "message": err.Error()})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
