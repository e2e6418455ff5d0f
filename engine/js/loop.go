package js

import (
	"container/heap"
	"sync"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/errgroup"
)

type timer struct {
	fn       goja.Callable
	args     []goja.Value
	when     time.Time
	interval time.Duration
	id       int64
	seq      uint64
	index    int
}

// timerHeap orders timers by deadline, then by scheduling order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// loop is a context's macrotask queue: timers plus tasks posted by worker
// goroutines. Promise jobs are run by goja whenever a call returns.
type loop struct {
	ctx      *Context
	timers   timerHeap
	byID     map[int64]*timer
	tasks    []func()
	notify   chan struct{}
	done     chan struct{}
	workers  errgroup.Group
	nextID   int64
	seq      uint64
	inflight int
	mu       sync.Mutex
	stopped  bool
}

func newLoop(c *Context, maxWorkers int) *loop {
	l := &loop{
		ctx:    c,
		byID:   make(map[int64]*timer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if maxWorkers > 0 {
		l.workers.SetLimit(maxWorkers)
	}
	return l
}

func (l *loop) schedule(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	l.nextID++
	l.seq++
	t := &timer{
		fn:   fn,
		args: args,
		when: time.Now().Add(delay),
		id:   l.nextID,
		seq:  l.seq,
	}
	if repeat {
		t.interval = max(delay, time.Millisecond)
	}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	return t.id
}

func (l *loop) cancel(id int64) {
	t, ok := l.byID[id]
	if !ok {
		return
	}
	delete(l.byID, id)
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
}

// post queues fn to run on the loop goroutine. Safe from any goroutine.
func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// goWorker starts fn on a worker goroutine tracked by the loop. The loop
// stays alive until the matching posted completion runs.
func (l *loop) goWorker(fn func()) bool {
	l.inflight++
	started := l.workers.TryGo(func() error {
		fn()
		return nil
	})
	if !started {
		l.inflight--
	}
	return started
}

func (l *loop) workerDone() {
	l.inflight--
}

// runOnce runs every expired timer and posted task, then waits for the next
// one. It reports false when nothing is left to wait for.
func (l *loop) runOnce() (bool, error) {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := l.timers[0]
		if t.interval > 0 {
			t.when = now.Add(t.interval)
			l.seq++
			t.seq = l.seq
			heap.Fix(&l.timers, 0)
		} else {
			heap.Pop(&l.timers)
			delete(l.byID, t.id)
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			return false, err
		}
	}

	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	if len(tasks) > 0 {
		return true, nil
	}

	if len(l.timers) == 0 && l.inflight == 0 {
		return false, nil
	}

	var wake <-chan time.Time
	if len(l.timers) > 0 {
		d := time.Until(l.timers[0].when)
		if d <= 0 {
			return true, nil
		}
		tm := time.NewTimer(d)
		defer tm.Stop()
		wake = tm.C
	}

	select {
	case <-l.notify:
	case <-wake:
	case <-l.done:
		return false, nil
	}
	return true, nil
}

// run drains the loop. A callback exception is dumped to stderr and stops
// the loop with status 1. Worker goroutines are joined on every exit path.
func (l *loop) run() int {
	defer func() { _ = l.workers.Wait() }()
	for {
		more, err := l.runOnce()
		if err != nil {
			l.ctx.dumpError(err)
			return 1
		}
		if !more {
			return 0
		}
	}
}

// close stops waiting, drops timers and joins worker goroutines.
func (l *loop) close() {
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.done)
	l.timers = nil
	clear(l.byID)
	_ = l.workers.Wait()
}
