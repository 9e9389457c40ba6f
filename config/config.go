package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string   `mapstructure:"http_address"`
	RPCAddress     string   `mapstructure:"rpc_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig selects the shared state backend: "memory" or "redis".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxActive   int           `mapstructure:"max_active"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// AuthConfig holds the HMAC secret used to verify player tokens. An empty
// secret falls back to header/query identities (local development only).
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LimitsConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// GameConfig carries the room defaults and the rules of play.
type GameConfig struct {
	MaxPlayers              int           `mapstructure:"max_players"`
	MaxRoundsPerPlayer      int           `mapstructure:"max_rounds_per_player"`
	DrawingDurationSeconds  int           `mapstructure:"drawing_duration_seconds"`
	GuessingDurationSeconds int           `mapstructure:"guessing_duration_seconds"`
	RevealDurationSeconds   int           `mapstructure:"reveal_duration_seconds"`
	MinPlayers              int           `mapstructure:"min_players"`
	StartingHearts          int           `mapstructure:"starting_hearts"`
	PointsPerCorrectGuess   int           `mapstructure:"points_per_correct_guess"`
	GuessMatch              string        `mapstructure:"guess_match"`
	TurnOrder               string        `mapstructure:"turn_order"`
	HintFraction            float64       `mapstructure:"hint_fraction"`
	CloseGuessDistance      int           `mapstructure:"close_guess_distance"`
	RoomTTL                 time.Duration `mapstructure:"room_ttl"`
	PlayerTTL               time.Duration `mapstructure:"player_ttl"`
	SessionTTL              time.Duration `mapstructure:"session_ttl"`
	RenewMetadataTTL        bool          `mapstructure:"renew_metadata_ttl"`
	WordsFile               string        `mapstructure:"words_file"`
	WordTheme               string        `mapstructure:"word_theme"`
}

const (
	GuessMatchExact           = "exact"
	GuessMatchCaseInsensitive = "case_insensitive"
	GuessMatchNormalized      = "normalized"

	TurnOrderJoin    = "join"
	TurnOrderShuffle = "shuffle"
)

var (
	ErrInvalidGuessMatch = errors.New("config: game.guess_match must be exact, case_insensitive or normalized")
	ErrInvalidTurnOrder  = errors.New("config: game.turn_order must be join or shuffle")
	ErrInvalidStore      = errors.New("config: store.driver must be memory or redis")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_idle", 16)
	v.SetDefault("redis.max_active", 128)
	v.SetDefault("redis.idle_timeout", 4*time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "drawguess")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("limits.messages_per_second", 30.0)
	v.SetDefault("limits.burst", 60)

	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.max_rounds_per_player", 2)
	v.SetDefault("game.drawing_duration_seconds", 60)
	v.SetDefault("game.guessing_duration_seconds", 30)
	v.SetDefault("game.reveal_duration_seconds", 5)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.starting_hearts", 3)
	v.SetDefault("game.points_per_correct_guess", 100)
	v.SetDefault("game.guess_match", GuessMatchNormalized)
	v.SetDefault("game.turn_order", TurnOrderJoin)
	v.SetDefault("game.hint_fraction", 0.3)
	v.SetDefault("game.close_guess_distance", 1)
	v.SetDefault("game.room_ttl", 2*time.Hour)
	v.SetDefault("game.player_ttl", 30*time.Minute)
	v.SetDefault("game.session_ttl", 2*time.Hour)
	v.SetDefault("game.renew_metadata_ttl", false)
	v.SetDefault("game.words_file", "")
	v.SetDefault("game.word_theme", "")
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: defaults do not decode: " + err.Error())
	}
	return &cfg
}

func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	switch c.Game.GuessMatch {
	case GuessMatchExact, GuessMatchCaseInsensitive, GuessMatchNormalized:
	default:
		return ErrInvalidGuessMatch
	}
	switch c.Game.TurnOrder {
	case TurnOrderJoin, TurnOrderShuffle:
	default:
		return ErrInvalidTurnOrder
	}
	switch c.Store.Driver {
	case "memory", "redis":
	default:
		return ErrInvalidStore
	}
	return nil
}
