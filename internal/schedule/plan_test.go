package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaslightradio/internal/eventloop"
)

// queueDispatcher holds posted work until drained, standing in for a loop
// whose queue already contains fired-but-not-yet-run callbacks.
type queueDispatcher struct {
	queue []func()
}

func (q *queueDispatcher) Post(fn func()) { q.queue = append(q.queue, fn) }

func (q *queueDispatcher) drain() {
	for len(q.queue) > 0 {
		fn := q.queue[0]
		q.queue = q.queue[1:]
		fn()
	}
}

func TestPlanFiresTasksAtOffsetsInOrder(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	plan := NewPlan(clock, eventloop.Inline{})

	var got []string
	plan.At(200*time.Millisecond, func() { got = append(got, "b") })
	plan.At(40*time.Millisecond, func() { got = append(got, "a") })
	plan.At(200*time.Millisecond, func() { got = append(got, "c") })

	clock.Advance(39 * time.Millisecond)
	assert.Empty(t, got)
	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"a"}, got)
	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, plan.Pending())
}

func TestPlanOffsetsAreRelativeToStart(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	plan := NewPlan(clock, eventloop.Inline{})
	plan.Start()
	clock.Advance(100 * time.Millisecond)

	fired := false
	plan.At(150*time.Millisecond, func() { fired = true })
	clock.Advance(49 * time.Millisecond)
	assert.False(t, fired)
	clock.Advance(time.Millisecond)
	assert.True(t, fired)
}

func TestPlanCancelAllPreventsQueuedCallbacks(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	queue := &queueDispatcher{}
	plan := NewPlan(clock, queue)

	ran := 0
	plan.At(10*time.Millisecond, func() { ran++ })
	plan.At(20*time.Millisecond, func() { ran++ })

	clock.Advance(10 * time.Millisecond)
	require.Len(t, queue.queue, 1)

	plan.CancelAll()
	queue.drain()
	clock.Advance(time.Second)
	queue.drain()

	assert.Zero(t, ran)
	assert.Zero(t, plan.Pending())
	assert.Zero(t, clock.Pending())
}

func TestPlanCancelSingleTask(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	plan := NewPlan(clock, eventloop.Inline{})

	var got []string
	keep := plan.At(10*time.Millisecond, func() { got = append(got, "keep") })
	drop := plan.At(10*time.Millisecond, func() { got = append(got, "drop") })

	assert.True(t, plan.Cancel(drop))
	assert.False(t, plan.Cancel(drop))
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"keep"}, got)
	assert.False(t, plan.Cancel(keep))
}

func TestPlanTasksMayScheduleMoreTasks(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	plan := NewPlan(clock, eventloop.Inline{})

	var at []time.Duration
	plan.At(100*time.Millisecond, func() {
		at = append(at, plan.Elapsed())
		plan.At(300*time.Millisecond, func() { at = append(at, plan.Elapsed()) })
	})
	clock.Advance(time.Second)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}, at)
}

func TestManualClockStopReportsState(t *testing.T) {
	t.Parallel()

	clock := NewManualClock()
	timer := clock.AfterFunc(time.Millisecond, func() {})
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	fired := clock.AfterFunc(time.Millisecond, func() {})
	clock.Advance(time.Millisecond)
	assert.False(t, fired.Stop())
}
