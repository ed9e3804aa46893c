package redis

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		port = p
	}

	client, err := NewClient(context.Background(), Config{Host: host, Port: port}, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
	require.NoError(t, err, "Failed to connect to test redis")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_GetDelConsumesOnce(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	_, err := client.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, client.Set(ctx, key, "verifier", time.Minute))

	value, err := client.GetDel(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "verifier", value)

	_, err = client.GetDel(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocker_SerializesHolders(t *testing.T) {
	client := getTestClient(t)
	locker := NewLocker(client, "test-lock:")
	key := uuid.NewString()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), key, 5*time.Second, 5*time.Second, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_GivesUpAfterWait(t *testing.T) {
	client := getTestClient(t)
	locker := NewLocker(client, "test-lock:")
	key := uuid.NewString()

	held, err := locker.Acquire(context.Background(), key, 5*time.Second)
	require.NoError(t, err)
	defer held.Release(context.Background()) //nolint:errcheck

	err = locker.WithLock(context.Background(), key, time.Second, 50*time.Millisecond, func(context.Context) error {
		return errors.New("must not run")
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}
