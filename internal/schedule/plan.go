package schedule

import (
	"sync"
	"time"

	"gaslightradio/internal/eventloop"
)

// TaskID identifies a task within a Plan.
type TaskID uint64

// Plan is a cancellable list of tasks keyed by their offset from a single
// start instant. Fired tasks run through the dispatcher. A task cancelled
// before it runs never runs, even when its timer has already fired and the
// callback is queued.
type Plan struct {
	clock    Clock
	dispatch eventloop.Dispatcher

	mu    sync.Mutex
	start time.Time
	epoch uint64
	next  TaskID
	tasks map[TaskID]*task
}

type task struct {
	offset time.Duration
	timer  Timer
	fn     func()
}

// NewPlan builds an empty plan anchored at the clock's current time.
func NewPlan(clock Clock, dispatch eventloop.Dispatcher) *Plan {
	if clock == nil {
		clock = RealClock{}
	}
	if dispatch == nil {
		dispatch = eventloop.Inline{}
	}
	return &Plan{
		clock:    clock,
		dispatch: dispatch,
		start:    clock.Now(),
		tasks:    map[TaskID]*task{},
	}
}

// Start cancels all pending tasks and re-anchors the plan at now.
func (p *Plan) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelAllLocked()
	p.start = p.clock.Now()
}

// At schedules fn at offset from the start instant. Offsets already in the
// past fire as soon as possible.
func (p *Plan) At(offset time.Duration, fn func()) TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	id := p.next
	epoch := p.epoch

	delay := p.start.Add(offset).Sub(p.clock.Now())
	if delay < 0 {
		delay = 0
	}
	t := &task{offset: offset, fn: fn}
	p.tasks[id] = t
	t.timer = p.clock.AfterFunc(delay, func() {
		p.dispatch.Post(func() { p.fire(epoch, id) })
	})
	return id
}

// Cancel removes one task. It reports whether the task was still pending.
func (p *Plan) Cancel(id TaskID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		return false
	}
	delete(p.tasks, id)
	t.timer.Stop()
	return true
}

// CancelAll removes every pending task atomically.
func (p *Plan) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelAllLocked()
}

// Pending counts tasks that have not run or been cancelled.
func (p *Plan) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Elapsed is the time since the start instant.
func (p *Plan) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Now().Sub(p.start)
}

func (p *Plan) cancelAllLocked() {
	p.epoch++
	for id, t := range p.tasks {
		t.timer.Stop()
		delete(p.tasks, id)
	}
}

func (p *Plan) fire(epoch uint64, id TaskID) {
	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		return
	}
	t, ok := p.tasks[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.tasks, id)
	p.mu.Unlock()

	t.fn()
}
