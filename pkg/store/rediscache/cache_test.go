package rediscache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
)

// countingDB answers session and profile lookups from memory.
type countingDB struct {
	store.Database

	mu           sync.Mutex
	sessionCalls int
	profileCalls int
	sessions     map[string]string
	profiles     map[string]store.Profile
}

func (c *countingDB) VerifySessionToken(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCalls++
	id, ok := c.sessions[token]
	if !ok {
		return "", store.ErrInvalidSession
	}
	return id, nil
}

func (c *countingDB) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profileCalls++
	p, ok := c.profiles[identifier]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func newCountingDB() *countingDB {
	return &countingDB{
		sessions: map[string]string{"tok": "p-1"},
		profiles: map[string]store.Profile{"p-1": {ID: "p-1", Email: "a@example.com", AccountIndex: 4}},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, redis.NewClient(&redis.Options{}), Options{})
	assert.Error(t, err)

	_, err = New(newCountingDB(), nil, Options{})
	assert.Error(t, err)

	s, err := New(newCountingDB(), redis.NewClient(&redis.Options{}), Options{})
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, s.ttl)
	assert.Equal(t, "crewd", s.keyPrefix)
}

func TestSessionKeyHidesToken(t *testing.T) {
	s, err := New(newCountingDB(), redis.NewClient(&redis.Options{}), Options{KeyPrefix: "test"})
	require.NoError(t, err)

	key := s.sessionKey("secret-token")
	assert.NotContains(t, key, "secret-token")
	assert.Equal(t, key, s.sessionKey("secret-token"))
	assert.Contains(t, key, "test:session:")
}

func TestFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	db := newCountingDB()
	s, err := New(db, client, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	id, err := s.VerifySessionToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	p, err := s.GetProfile(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.AccountIndex)

	_, err = s.VerifySessionToken(context.Background(), "bad")
	assert.ErrorIs(t, err, store.ErrInvalidSession)
}

func TestCachesWithRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Dial(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer client.Close()

	db := newCountingDB()
	s, err := New(db, client, Options{KeyPrefix: "crewd-test-" + uuid.NewString(), TTL: time.Minute, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, err := s.VerifySessionToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "p-1", id)

		p, err := s.GetProfile(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", p.Email)
	}
	assert.Equal(t, 1, db.sessionCalls)
	assert.Equal(t, 1, db.profileCalls)

	// failures are not cached
	_, err = s.VerifySessionToken(ctx, "bad")
	assert.ErrorIs(t, err, store.ErrInvalidSession)
	_, err = s.VerifySessionToken(ctx, "bad")
	assert.ErrorIs(t, err, store.ErrInvalidSession)
	assert.Equal(t, 3, db.sessionCalls)

	require.NoError(t, s.Invalidate(ctx, "tok"))
	_, err = s.VerifySessionToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 4, db.sessionCalls)
}
