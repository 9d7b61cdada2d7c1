package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteOnlyOnce(t *testing.T) {
	f := New[int]()
	require.True(t, f.Complete(1, nil))
	require.False(t, f.Complete(2, errors.New("late")))

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestAllWaitersObserveSameValue(t *testing.T) {
	f := New[string]()
	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(10 * time.Millisecond)
	f.Complete("snapshot", nil)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "snapshot", r)
	}
}

func TestOnCompleteOrdering(t *testing.T) {
	f := New[int]()
	var calls []string
	f.OnComplete(func(int, error) { calls = append(calls, "first") })
	f.OnComplete(func(int, error) { calls = append(calls, "second") })
	f.Complete(7, nil)
	f.OnComplete(func(int, error) { calls = append(calls, "late") })

	assert.Equal(t, []string{"first", "second", "late"}, calls)
}

func TestCancel(t *testing.T) {
	f := New[int]()
	require.True(t, f.Cancel())
	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, f.Complete(3, nil))
}

func TestGetHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok, _ := f.TryGet()
	assert.False(t, ok)
}
