// Package cache keeps snapshots of live recording sessions in redis so a
// restarted process can clean up after a crash.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/EasterCompany/dex-scribe-service/config"
	"github.com/EasterCompany/dex-scribe-service/guild"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dex-scribe-service:"

// Cache is the session snapshot store.
type Cache interface {
	SaveSession(ctx context.Context, snap *guild.Snapshot) error
	DeleteSession(ctx context.Context, guildID string) error
	LoadSessions(ctx context.Context) ([]*guild.Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}

// DB is a redis-backed Cache.
type DB struct {
	rdb *redis.Client
}

// New connects to the configured redis. It returns nil, nil when no address
// is configured.
func New(ctx context.Context, cfg *config.CacheConfig) (*DB, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to cache at %s: %w", cfg.Addr, err)
	}
	return &DB{rdb: rdb}, nil
}

func sessionKey(guildID string) string {
	return fmt.Sprintf("%ssession:%s", keyPrefix, guildID)
}

func guildFromKey(key string) string {
	return strings.TrimPrefix(key, keyPrefix+"session:")
}

func (db *DB) Ping(ctx context.Context) error {
	return db.rdb.Ping(ctx).Err()
}

func (db *DB) Close() error {
	return db.rdb.Close()
}

// SaveSession stores snap under its guild, replacing any previous snapshot.
func (db *DB) SaveSession(ctx context.Context, snap *guild.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("could not marshal session snapshot: %w", err)
	}
	return db.rdb.Set(ctx, sessionKey(snap.GuildID), data, 0).Err()
}

func (db *DB) DeleteSession(ctx context.Context, guildID string) error {
	return db.rdb.Del(ctx, sessionKey(guildID)).Err()
}

// LoadSessions returns every stored snapshot. Entries that fail to decode
// are skipped.
func (db *DB) LoadSessions(ctx context.Context) ([]*guild.Snapshot, error) {
	var snaps []*guild.Snapshot
	iter := db.rdb.Scan(ctx, 0, keyPrefix+"session:*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := db.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("could not load session %s: %w", guildFromKey(iter.Val()), err)
		}
		snap, err := decodeSnapshot(raw)
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

func decodeSnapshot(raw []byte) (*guild.Snapshot, error) {
	var snap guild.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("could not unmarshal session snapshot: %w", err)
	}
	if snap.GuildID == "" {
		return nil, fmt.Errorf("session snapshot has no guild id")
	}
	return &snap, nil
}

// PurgeSessions deletes every stored snapshot and returns how many were removed.
func (db *DB) PurgeSessions(ctx context.Context) (int64, error) {
	var keys []string
	iter := db.rdb.Scan(ctx, 0, keyPrefix+"session:*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return db.rdb.Del(ctx, keys...).Result()
}
