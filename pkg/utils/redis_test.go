package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379", PoolSize: 3}.withDefaults()
	require.Equal(t, 3, got.PoolSize)
	require.Equal(t, 300*time.Millisecond, got.ReadTimeout)
	require.Equal(t, 2*time.Second, got.PingTimeout)
	require.Equal(t, "telecom-routing", got.ClientName)
}

func TestRedisConfig_URLWins(t *testing.T) {
	cfg := RedisConfig{URL: "redis://:pw@cache.internal:6380/2", Addr: "ignored:6379", PoolSize: 5}.withDefaults()
	opts, err := cfg.options()
	require.NoError(t, err)
	require.Equal(t, "cache.internal:6380", opts.Addr)
	require.Equal(t, "pw", opts.Password)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 5, opts.PoolSize)
	require.Equal(t, "telecom-routing", opts.ClientName)
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisConfig{})
	require.ErrorContains(t, err, "addr or url is required")

	_, err = OpenRedis(context.Background(), RedisConfig{URL: "http://not-redis"})
	require.ErrorContains(t, err, "parse redis url")
}
