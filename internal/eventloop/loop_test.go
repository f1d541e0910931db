package eventloop

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsWorkInPostOrder(t *testing.T) {
	t.Parallel()

	l := New(zerolog.Nop())
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	require.True(t, l.Call(func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSerializesConcurrentPosters(t *testing.T) {
	t.Parallel()

	l := New(zerolog.Nop())
	defer l.Close()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	require.True(t, l.Call(func() {}))
	assert.Equal(t, 2000, counter)
}

func TestLoopSurvivesPanickingWork(t *testing.T) {
	t.Parallel()

	l := New(zerolog.Nop())
	defer l.Close()

	l.Post(func() { panic("boom") })
	ran := false
	require.True(t, l.Call(func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopDropsWorkAfterClose(t *testing.T) {
	t.Parallel()

	l := New(zerolog.Nop())
	l.Close()
	l.Close()

	assert.False(t, l.Call(func() { t.Error("work ran after close") }))
	l.Post(func() { t.Error("work ran after close") })
}

func TestInlineRunsImmediately(t *testing.T) {
	t.Parallel()

	ran := false
	Inline{}.Post(func() { ran = true })
	assert.True(t, ran)
}
