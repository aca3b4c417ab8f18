package snippet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestZoneLock_WithLock_ReleasesOnError(t *testing.T) {
	lock := NewZoneLock(nil)

	err := lock.WithLock(context.Background(), "zone-1", "first", func() error {
		return errors.New("test error")
	})
	require.EqualError(t, err, "test error")
	require.False(t, lock.IsLocked("zone-1"))

	executed := false
	require.NoError(t, lock.WithLock(context.Background(), "zone-1", "second", func() error {
		executed = true
		return nil
	}))
	require.True(t, executed)
}

func TestZoneLock_SerializesSameZone(t *testing.T) {
	lock := NewZoneLock(nil)
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lock.WithLock(context.Background(), "zone-1", "worker", func() error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive.Load())
}

func TestZoneLock_DifferentZonesDoNotBlock(t *testing.T) {
	lock := NewZoneLock(nil)
	require.True(t, lock.TryLock("zone-1", "a"))
	defer lock.Unlock("zone-1")

	require.True(t, lock.TryLock("zone-2", "b"))
	lock.Unlock("zone-2")
}

func TestZoneLock_TimesOutWithContext(t *testing.T) {
	lock := NewZoneLock(nil)
	require.True(t, lock.TryLock("zone-1", "holder"))
	defer lock.Unlock("zone-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := lock.Lock(ctx, "zone-1", "waiter")
	require.ErrorIs(t, err, ErrLockTimeout)

	locked, owner, held := lock.LockInfo("zone-1")
	require.True(t, locked)
	require.Equal(t, "holder", owner)
	require.Greater(t, held, time.Duration(0))
}

func TestZoneLock_UnlockFreeZoneIsNoOp(t *testing.T) {
	lock := NewZoneLock(nil)
	lock.Unlock("zone-1")
	require.False(t, lock.IsLocked("zone-1"))
}
