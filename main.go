package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/drawguess/auth"
	"github.com/wfunc/drawguess/broadcast"
	"github.com/wfunc/drawguess/config"
	"github.com/wfunc/drawguess/dispatch"
	"github.com/wfunc/drawguess/game"
	"github.com/wfunc/drawguess/handler"
	"github.com/wfunc/drawguess/logger"
	"github.com/wfunc/drawguess/monitor"
	"github.com/wfunc/drawguess/persistence"
	"github.com/wfunc/drawguess/room"
	"github.com/wfunc/drawguess/round"
	gameserver_rpc "github.com/wfunc/drawguess/rpc"
	"github.com/wfunc/drawguess/server"
	"github.com/wfunc/drawguess/session"
	"github.com/wfunc/drawguess/store"
	"github.com/wfunc/drawguess/timer"
	"github.com/wfunc/drawguess/words"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Init(false)
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Debug)
	defer logger.Sync()

	st := openStore(cfg)
	defer st.Close()

	supplier, closeDB := openSupplier(cfg)
	defer closeDB()

	turnOrder := game.TurnOrderJoin
	if cfg.Game.TurnOrder == config.TurnOrderShuffle {
		turnOrder = game.TurnOrderShuffle
	}
	dir := room.NewDirectory(st, room.Options{
		RoomTTL:          cfg.Game.RoomTTL,
		PlayerTTL:        cfg.Game.PlayerTTL,
		RenewMetadataTTL: cfg.Game.RenewMetadataTTL,
	})
	games := game.NewSessions(st, supplier, game.Options{
		TurnOrder:      turnOrder,
		StartingHearts: cfg.Game.StartingHearts,
		TTL:            cfg.Game.SessionTTL,
	})

	timers := timer.NewTimerManager()
	defer timers.Stop()
	rounds := round.NewService(timers)

	mon := monitor.NewMonitor("drawguess")
	mon.PublishExpvar()
	sessions := session.NewManager()
	bc := broadcast.NewRoomBroadcaster(sessions, mon)

	h, err := handler.New(dir, games, rounds, bc, handler.RulesFromConfig(cfg.Game), mon)
	if err != nil {
		logger.Log.Fatalf("Failed to build handler: %v", err)
	}
	rounds.Subscribe(dispatch.New(dir, games, bc, h, cfg.Game.HintFraction).HandleRoundEvent)

	rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	if err := rpcServer.Register(gameserver_rpc.NewRoomService(dir, rounds)); err != nil {
		logger.Log.Fatalf("Failed to register RPC service: %v", err)
	}

	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
		Heartbeat:         30 * time.Second,
		RoomDefaults: room.Config{
			MaxPlayers:              cfg.Game.MaxPlayers,
			MaxRoundsPerPlayer:      cfg.Game.MaxRoundsPerPlayer,
			DrawingDurationSeconds:  cfg.Game.DrawingDurationSeconds,
			GuessingDurationSeconds: cfg.Game.GuessingDurationSeconds,
			RevealDurationSeconds:   cfg.Game.RevealDurationSeconds,
		},
		Debug: cfg.Debug,
	}, server.Deps{
		Directory:   dir,
		Rounds:      rounds,
		Handler:     h,
		Sessions:    sessions,
		Broadcaster: bc,
		Auth:        auth.NewProvider(cfg.Auth.JWTSecret),
		Monitor:     mon,
		RPC:         rpcServer,
	})

	go func() {
		if err := gameServer.Start(); err != nil {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down game server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown error: %v", err)
	}
}

func openStore(cfg *config.Config) store.Store {
	if cfg.Store.Driver != "redis" {
		logger.Log.Warn("Using in-memory store; state is lost on restart and not shared between instances.")
		return store.NewMemoryStore()
	}
	rs := store.NewRedisStore(store.RedisOptions{
		Address:     cfg.Redis.Address,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxIdle:     cfg.Redis.MaxIdle,
		MaxActive:   cfg.Redis.MaxActive,
		IdleTimeout: cfg.Redis.IdleTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		logger.Log.Fatalf("Failed to connect to redis: %v", err)
	}
	logger.Log.Infof("Redis connection successful (%s).", cfg.Redis.Address)
	return rs
}

// openSupplier prefers the database word bank, then a words file, then the
// built-in list.
func openSupplier(cfg *config.Config) (words.Supplier, func()) {
	seed := time.Now().UnixNano()
	if cfg.Database.Enabled {
		db, err := persistence.NewGormPostgreSQL(cfg.Database.Postgres)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")

		bank := persistence.NewWordBank(db.DB(), cfg.Game.WordTheme)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := bank.Count(ctx); err == nil && n == 0 {
			added, err := bank.Seed(ctx, cfg.Game.WordTheme, words.DefaultList)
			if err != nil {
				logger.Log.Fatalf("Failed to seed word bank: %v", err)
			}
			logger.Log.Infof("Seeded word bank with %d words.", added)
		}
		return bank, func() { db.Close() }
	}
	if cfg.Game.WordsFile != "" {
		return words.NewFileSupplier(cfg.Game.WordsFile, seed), func() {}
	}
	return words.NewStaticSupplier(words.DefaultList, seed), func() {}
}
