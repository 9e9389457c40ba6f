package store

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/wfunc/drawguess/apperr"
)

// RedisStore is the production Store backed by a redigo connection pool.
// Connectivity and protocol failures come back wrapped in
// apperr.ErrUnavailable.
type RedisStore struct {
	pool *redis.Pool
}

type RedisOptions struct {
	Address     string
	Password    string
	DB          int
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	pool := &redis.Pool{
		MaxIdle:     opts.MaxIdle,
		MaxActive:   opts.MaxActive,
		IdleTimeout: opts.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", opts.Address,
				redis.DialPassword(opts.Password),
				redis.DialDatabase(opts.DB),
				redis.DialConnectTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return &RedisStore{pool: pool}
}

// Ping checks that the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	_, err := r.do(ctx, "PING")
	return err
}

func (r *RedisStore) do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	defer conn.Close()

	reply, err := conn.Do(cmd, args...)
	if err != nil && !errors.Is(err, redis.ErrNil) {
		return nil, apperr.Unavailable(err)
	}
	return reply, err
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := redis.String(r.do(ctx, "GET", key))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Unavailable(err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := redis.Args{}.Add(key, value)
	if ttl > 0 {
		args = args.Add("PX", ttl.Milliseconds())
	}
	_, err := r.do(ctx, "SET", args...)
	return err
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.do(ctx, "DEL", redis.Args{}.AddFlat(keys)...)
	return err
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := redis.Bool(r.do(ctx, "EXISTS", key))
	if err != nil {
		return false, apperr.Unavailable(err)
	}
	return ok, nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := r.do(ctx, "PERSIST", key)
		return err
	}
	_, err := r.do(ctx, "PEXPIRE", key, ttl.Milliseconds())
	return err
}

func (r *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return redis.Int(r.do(ctx, "SADD", redis.Args{}.Add(key).AddFlat(members)...))
}

func (r *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := r.do(ctx, "SREM", redis.Args{}.Add(key).AddFlat(members)...)
	return err
}

func (r *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := redis.Strings(r.do(ctx, "SMEMBERS", key))
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return members, nil
}

func (r *RedisStore) SCard(ctx context.Context, key string) (int, error) {
	n, err := redis.Int(r.do(ctx, "SCARD", key))
	if err != nil {
		return 0, apperr.Unavailable(err)
	}
	return n, nil
}

func (r *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := redis.Bool(r.do(ctx, "SISMEMBER", key, member))
	if err != nil {
		return false, apperr.Unavailable(err)
	}
	return ok, nil
}

func (r *RedisStore) SPop(ctx context.Context, key string) (string, bool, error) {
	v, err := redis.String(r.do(ctx, "SPOP", key))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Unavailable(err)
	}
	return v, true, nil
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := redis.String(r.do(ctx, "HGET", key, field))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Unavailable(err)
	}
	return v, true, nil
}

func (r *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.do(ctx, "HSET", redis.Args{}.Add(key).AddFlat(fields)...)
	return err
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := redis.StringMap(r.do(ctx, "HGETALL", key))
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return m, nil
}

func (r *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := redis.Int64(r.do(ctx, "HINCRBY", key, field, delta))
	if err != nil {
		return 0, apperr.Unavailable(err)
	}
	return n, nil
}

func (r *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := r.do(ctx, "RPUSH", redis.Args{}.Add(key).AddFlat(values)...)
	return err
}

func (r *RedisStore) LRange(ctx context.Context, key string) ([]string, error) {
	values, err := redis.Strings(r.do(ctx, "LRANGE", key, 0, -1))
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return values, nil
}

func (r *RedisStore) Close() error {
	return r.pool.Close()
}
