package client

import (
	"context"
	"testing"

	"github.com/Sternrassler/resilient-api-client/internal/testutil"
	"github.com/Sternrassler/resilient-api-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test when
// none is reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestCache_FreshHitSkipsServer(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/objects/1", testutil.NewHealthyResponse(`{"data": {"id": 1, "name": "cached"}}`))

	c := newTestClient(t, mock, func(cfg *Config) { cfg.Redis = redisClient })
	ctx := context.Background()

	first, err := c.Request(ctx, Params{Path: "/v1/objects/1"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := Get[object](ctx, c, "/v1/objects/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "cached", second.Name)
	assert.Equal(t, 1, mock.RequestsTo("/v1/objects/1"))
}

func TestCache_RevalidatesWithETag(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler("/v1/objects/2", testutil.NewConditionalHandler(`"v1"`, `{"data": {"id": 2}}`))

	c := newTestClient(t, mock, func(cfg *Config) { cfg.Redis = redisClient })
	ctx := context.Background()

	first, err := c.Request(ctx, Params{Path: "/v1/objects/2"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := c.Request(ctx, Params{Path: "/v1/objects/2"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, `{"data": {"id": 2}}`, string(second.Body))

	assert.Equal(t, 2, mock.RequestsTo("/v1/objects/2"))
	assert.Equal(t, 1, mock.GetConditionalCount())
}

func TestCache_NotSharedAcrossCredentials(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/me", testutil.NewHealthyResponse(`{"data": {"id": 1}}`))

	a := newTestClient(t, mock, func(cfg *Config) { cfg.Redis = redisClient; cfg.APIKey = "alice" })
	b := newTestClient(t, mock, func(cfg *Config) { cfg.Redis = redisClient; cfg.APIKey = "bob" })
	ctx := context.Background()

	_, err := a.Request(ctx, Params{Path: "/v1/me"})
	require.NoError(t, err)
	res, err := b.Request(ctx, Params{Path: "/v1/me"})
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, 2, mock.RequestsTo("/v1/me"))
}

func TestCache_WriteInvalidatesCollection(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetCollection("/v1/objects", objects(3), testutil.CollectionOptions{})
	mock.SetResponse("/v1/objects/1", testutil.NewHealthyResponse(`{"data": {"id": 1, "name": "renamed"}}`))

	c := newTestClient(t, mock, func(cfg *Config) { cfg.Redis = redisClient })
	ctx := context.Background()

	_, err := ListAll[object](ctx, c, "/v1/objects", nil, listAllPages)
	require.NoError(t, err)
	_, err = ListAll[object](ctx, c, "/v1/objects", nil, listAllPages)
	require.NoError(t, err)
	require.Equal(t, 1, mock.RequestsTo("/v1/objects"), "second listing is served from cache")

	_, err = Update[object](ctx, c, "/v1/objects/1", object{Name: "renamed"})
	require.NoError(t, err)

	_, err = ListAll[object](ctx, c, "/v1/objects", nil, listAllPages)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.RequestsTo("/v1/objects"), "update invalidates the cached listing")
}

var listAllPages = pagination.Options{}
