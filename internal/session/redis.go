package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// RedisStore keeps sessions as JSON values with a sliding TTL.
type RedisStore struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

func NewRedisStore(opts RedisOptions, log *logger.Logger) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		rdb:    rdb,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		log:    log.With("service", "RedisSessionStore"),
	}, nil
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) Create(ctx context.Context, userID string, state *judgment.SessionState) (*Session, error) {
	s := newSession(userID, state)
	if err := r.write(ctx, s, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		r.log.Warn("dropping unreadable session", "session_id", token, "error", err)
		_ = r.rdb.Del(ctx, r.key(token)).Err()
		return nil, ErrNotFound
	}
	if s.State.History == nil {
		s.State.History = []string{}
	}
	return &s, nil
}

// Save overwrites an existing session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	return r.write(ctx, s, false)
}

func (r *RedisStore) write(ctx context.Context, s *Session, create bool) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	var ok bool
	if create {
		ok, err = r.rdb.SetNX(ctx, r.key(s.Token), raw, r.ttl).Result()
	} else {
		ok, err = r.rdb.SetXX(ctx, r.key(s.Token), raw, r.ttl).Result()
	}
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	if !ok {
		if create {
			return fmt.Errorf("session token collision")
		}
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
