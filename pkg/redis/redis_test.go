package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zkinzler/dfw-openings/pkg/quarantine"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	rdb := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	client := NewClientFromRedis(rdb, logger)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx))
	return client
}

func TestLocker_Integration(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, "test:", time.Second, 50*time.Millisecond)

	unlock, err := locker.Lock(ctx, "dallas|joes bbq", "dallas|100 main st")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "dallas|100 main st")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// a failed multi-key lock releases what it took
	_, err = locker.Lock(ctx, "dallas|a", "dallas|joes bbq")
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	free, err := locker.Lock(ctx, "dallas|a")
	require.NoError(t, err)
	free()

	unlock()
	again, err := locker.Lock(ctx, "dallas|100 main st")
	require.NoError(t, err)
	again()

	lock, err := locker.Acquire(ctx, "solo", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	// an expired holder cannot release the key once someone else owns it
	stale, err := locker.Acquire(ctx, "ttl", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	fresh, err := locker.Acquire(ctx, "ttl", time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestQuarantine_Integration(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	q := NewQuarantine(client, "test:quarantine", 100, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	require.NoError(t, q.Add(ctx, quarantine.NewEntry(quarantine.StageValidate, errors.New("first"), []byte(`{"a":1}`))))
	require.NoError(t, q.Add(ctx, quarantine.NewEntry(quarantine.StageMerge, errors.New("second"), nil)))

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	entries, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Reason)
	assert.Equal(t, quarantine.StageValidate, entries[1].Stage)
	assert.JSONEq(t, `{"a":1}`, string(entries[1].Record))
}
