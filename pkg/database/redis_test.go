package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisHealthCheckTogglesDegradedMode(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer client.Close()
	ctx := context.Background()

	assert.NoError(t, client.HealthCheck(ctx))
	assert.False(t, client.IsDegraded())

	mr.SetError("LOADING")
	assert.Error(t, client.HealthCheck(ctx))
	assert.True(t, client.IsDegraded())

	mr.SetError("")
	assert.NoError(t, client.HealthCheck(ctx))
	assert.False(t, client.IsDegraded())
}
