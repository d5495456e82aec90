package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
)

func TestMemoryDeduplicator(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDeduplicator(time.Hour)
	d.now = func() time.Time { return now }

	first, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, again, "a redelivered message must not be processed twice")

	other, err := d.Claim(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, other)

	now = now.Add(time.Hour)
	expired, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, expired, "ids are forgotten after the TTL")

	require.NoError(t, d.Release(ctx, "msg-2"))
	released, err := d.Claim(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestNewDeduplicatorWithoutRedis(t *testing.T) {
	d, err := NewDeduplicator(&config.Config{DedupTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDeduplicator{}, d)
}

func TestRedisDeduplicator(t *testing.T) {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx := context.Background()

	d, err := NewRedisDeduplicator(address, time.Minute)
	require.NoError(t, err)
	defer d.Close()

	id := uuid.NewString()
	defer d.Release(ctx, id)

	first, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)
}
