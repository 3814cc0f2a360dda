package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scentflow/scentflow-backend/pkg/cache"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

func startRedis(t *testing.T) *cache.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: endpoint}), logger.Nop())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_JSONRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	client := startRedis(t)

	type payload struct {
		Day string `json:"day"`
		Qty int    `json:"qty"`
	}

	var got payload
	hit, err := client.GetJSON(ctx, "sales:missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, client.SetJSON(ctx, "sales:p1", payload{Day: "2026-10-16", Qty: 4}, time.Minute))

	hit, err = client.GetJSON(ctx, "sales:p1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, got.Qty)

	require.NoError(t, client.Delete(ctx, "sales:p1"))
	hit, err = client.GetJSON(ctx, "sales:p1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, "up", client.Health(ctx)["status"])
}
