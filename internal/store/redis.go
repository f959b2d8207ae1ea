package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with one hash per goal row and one set of
// subjects per (table, user).
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, prefix: "trainer"}, nil
}

func (s *RedisStore) subjectsKey(table, userID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, table, userID)
}

func (s *RedisStore) rowKey(table string, k Key) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, table, k.UserID, k.Subject)
}

// Ping verifies redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Upsert writes fields to the row hash and records the subject, atomically.
func (s *RedisStore) Upsert(ctx context.Context, table string, key Key, fields Fields) error {
	_, names, err := lookup(table, fields)
	if err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}

	values := make([]any, 0, 2*len(names)+2)
	for _, n := range names {
		values = append(values, n, fields[n])
	}
	values = append(values, "updated_at", time.Now().Unix())

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.rowKey(table, key), values...)
		p.SAdd(ctx, s.subjectsKey(table, key.UserID), key.Subject)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %s for %s: %w", table, key.UserID, err)
	}
	return nil
}

// ListGoals returns the user's goals in table ordered by subject.
func (s *RedisStore) ListGoals(ctx context.Context, table, userID string) ([]Goal, error) {
	if _, _, err := lookup(table, nil); err != nil {
		return nil, err
	}

	subjects, err := s.rdb.SMembers(ctx, s.subjectsKey(table, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s subjects: %w", table, err)
	}
	slices.Sort(subjects)

	cmds := make([]*redis.MapStringStringCmd, len(subjects))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, subj := range subjects {
			cmds[i] = p.HGetAll(ctx, s.rowKey(table, Key{UserID: userID, Subject: subj}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s rows: %w", table, err)
	}

	goals := make([]Goal, 0, len(subjects))
	for i, subj := range subjects {
		row := cmds[i].Val()
		if len(row) == 0 {
			continue
		}
		w, err := strconv.ParseFloat(row["weight"], 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s weight for %s: %w", table, subj, err)
		}
		ts, _ := strconv.ParseInt(row["updated_at"], 10, 64)
		goals = append(goals, Goal{Subject: subj, Weight: w, UpdatedAt: time.Unix(ts, 0)})
	}
	return goals, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
