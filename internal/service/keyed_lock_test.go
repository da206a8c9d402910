package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	l := newKeyedLock()

	release, err := l.Lock(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op

	again, err := l.Lock(context.Background(), "t1")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, l.size())
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	l := newKeyedLock()

	a, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer a()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	b()

	assert.Equal(t, 1, l.size())
}

func TestKeyedLock_WaitersRunInOrder(t *testing.T) {
	l := newKeyedLock()
	first, err := l.Lock(context.Background(), "t1")
	require.NoError(t, err)

	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		go func(i int) {
			release, err := l.Lock(context.Background(), "t1")
			if err != nil {
				return
			}
			order <- i
			release()
		}(i)
		// let each waiter queue before the next one arrives
		time.Sleep(10 * time.Millisecond)
	}

	first()
	for want := 1; want <= 3; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("waiter never ran")
		}
	}
}
