package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"redline-go/internal/config"
)

func TestNewClient_ConnectsToServer(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	cfg := config.Default().Redis
	cfg.Host = s.Host()
	cfg.Port = mustPort(t, s.Port())

	client, err := NewClient(&cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewClient_UnreachableServer(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	cfg := config.Default().Redis
	cfg.Host = s.Host()
	cfg.Port = mustPort(t, s.Port())
	s.Close()

	_, err = NewClient(&cfg)
	require.Error(t, err)
}

func TestEmbedded_Lifecycle(t *testing.T) {
	e, err := NewEmbedded()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.Client().RPush(ctx, "list", "a", "b").Err())
	n, err := e.Client().LLen(ctx, "list").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NotEmpty(t, e.Addr())

	require.NoError(t, e.Close())
	require.Error(t, Ping(ctx, e.Client()))
}

func mustPort(t *testing.T, port string) int {
	t.Helper()
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}
