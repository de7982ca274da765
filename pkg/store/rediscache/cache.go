// Package rediscache caches session lookups of a store.Database in Redis.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
)

const defaultTTL = 5 * time.Minute

// Options configures the cache.
type Options struct {
	KeyPrefix string
	TTL       time.Duration
	Logger    zerolog.Logger
}

// Store decorates a Database. Session tokens and profiles are read through
// Redis; every other call goes straight to the wrapped Database. Failed
// lookups are never cached, and a Redis outage falls back to the database.
type Store struct {
	store.Database

	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger
}

// New wraps db with a Redis read-through cache.
func New(db store.Database, client redis.Cmdable, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("invalid config: database is required")
	}
	if client == nil {
		return nil, errors.New("invalid config: redis client is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "crewd"
	}
	return &Store{
		Database:  db,
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		logger:    opts.Logger.With().Str("component", "rediscache").Logger(),
	}, nil
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *Store) sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%s:session:%s", s.keyPrefix, hex.EncodeToString(sum[:]))
}

func (s *Store) profileKey(identifier string) string {
	return fmt.Sprintf("%s:profile:%s", s.keyPrefix, identifier)
}

// VerifySessionToken caches the token's profile id. Tokens are stored hashed.
func (s *Store) VerifySessionToken(ctx context.Context, token string) (string, error) {
	key := s.sessionKey(token)

	profileID, err := s.client.Get(ctx, key).Result()
	if err == nil {
		return profileID, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("Session cache read failed")
	}

	profileID, err = s.Database.VerifySessionToken(ctx, token)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, key, profileID, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Session cache write failed")
	}
	return profileID, nil
}

// GetProfile caches profiles as JSON.
func (s *Store) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	key := s.profileKey(identifier)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var p store.Profile
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("Profile cache read failed")
	}

	p, err := s.Database.GetProfile(ctx, identifier)
	if err != nil {
		return store.Profile{}, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Profile cache write failed")
		}
	}
	return p, nil
}

// Invalidate drops a cached session token.
func (s *Store) Invalidate(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.sessionKey(token)).Err()
}
