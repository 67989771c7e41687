//go:build integration

package dedupe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testRedisImage = "redis:7-alpine"
	testRedisPort  = "6379"
)

func setupRedisContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        testRedisImage,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", testRedisPort)},
		WaitingFor:   wait.ForListeningPort(nat.Port(testRedisPort)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(testRedisPort))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	addr := setupRedisContainer(t, ctx)

	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, TTL: time.Second, KeyPrefix: "test:"}, logrus.New())
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, store.Exists(ctx, "order-1"))
	require.NoError(t, store.Add(ctx, "order-1"))
	assert.True(t, store.Exists(ctx, "order-1"))

	time.Sleep(1500 * time.Millisecond)
	assert.False(t, store.Exists(ctx, "order-1"), "entries expire after the TTL")
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisConfig{Addr: "127.0.0.1:1"}, logrus.New())
	assert.Error(t, err)
}
