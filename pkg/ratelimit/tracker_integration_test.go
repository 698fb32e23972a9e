//go:build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient, "")
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state != nil {
		t.Fatalf("Load() on empty Redis = %+v, want nil", state)
	}

	now := time.Now()
	want := &State{
		Remaining:  17,
		Limit:      100,
		ResetAt:    now.Add(2 * time.Minute).Truncate(time.Second),
		LastUpdate: now,
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Remaining != want.Remaining || got.Limit != want.Limit {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !got.ResetAt.Equal(want.ResetAt) {
		t.Errorf("ResetAt = %v, want %v", got.ResetAt, want.ResetAt)
	}
	if !got.LastUpdate.Equal(want.LastUpdate) {
		t.Errorf("LastUpdate = %v, want %v", got.LastUpdate, want.LastUpdate)
	}

	ttl, err := redisClient.TTL(ctx, DefaultRedisKey).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 2*time.Minute || ttl > 3*time.Minute+time.Second {
		t.Errorf("TTL = %v, want about 3m", ttl)
	}
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	writer := NewTracker(NewRedisStore(redisClient, ""), logger)
	reader := NewTracker(NewRedisStore(redisClient, ""), logger)
	ctx := context.Background()

	if err := writer.UpdateFromHeaders(ctx, quotaHeaders(0, 50, 45)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	d, err := reader.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Blocked {
		t.Error("second tracker should observe the exhausted quota")
	}
	if d.Wait <= 40*time.Second || d.Wait > 45*time.Second {
		t.Errorf("Wait = %v, want about 45s", d.Wait)
	}
}
