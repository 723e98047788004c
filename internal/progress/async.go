package progress

import (
	"sync"
	"sync/atomic"
)

// event is one queued bridge call. progress selects which callback runs.
type event struct {
	progress bool
	stage    int
	label    string
	delta    int
	line     string
}

// AsyncLog moves bridge calls off the caller's goroutine. Calls are queued on
// a bounded buffer and delivered to the target in order by a single
// goroutine. When the buffer is full the call is dropped and counted.
type AsyncLog struct {
	target  Bridge
	events  chan event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewAsyncLog starts the delivery goroutine for a log-only sink. Close must be
// called to stop it.
func NewAsyncLog(sink func(string), buffer int) *AsyncLog {
	return NewAsync(&Bridge{OnLog: sink}, buffer)
}

// NewAsync queues both progress and log calls for target. A nil target
// discards everything. Close must be called to stop the delivery goroutine.
func NewAsync(target *Bridge, buffer int) *AsyncLog {
	if buffer < 1 {
		buffer = 1
	}
	a := &AsyncLog{
		events: make(chan event, buffer),
		done:   make(chan struct{}),
	}
	if target != nil {
		a.target = *target
	}
	go a.run()
	return a
}

func (a *AsyncLog) run() {
	defer close(a.done)
	for ev := range a.events {
		if ev.progress {
			a.target.Progress(ev.stage, ev.label, ev.delta)
		} else {
			a.target.Log(ev.line)
		}
	}
}

func (a *AsyncLog) enqueue(ev event) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Log queues line without blocking.
func (a *AsyncLog) Log(line string) {
	a.enqueue(event{line: line})
}

// Progress queues a progress update without blocking.
func (a *AsyncLog) Progress(stage int, label string, delta int) {
	a.enqueue(event{progress: true, stage: stage, label: label, delta: delta})
}

// Dropped returns how many calls were discarded.
func (a *AsyncLog) Dropped() int64 {
	if a == nil {
		return 0
	}
	return a.dropped.Load()
}

// Close stops accepting calls and waits until queued ones are delivered.
func (a *AsyncLog) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()
	})
	<-a.done
}

// Bridge returns a bridge that feeds this AsyncLog. Only the callbacks the
// target handles are set.
func (a *AsyncLog) Bridge() *Bridge {
	b := &Bridge{}
	if a == nil {
		return b
	}
	if a.target.OnLog != nil {
		b.OnLog = a.Log
	}
	if a.target.OnProgress != nil {
		b.OnProgress = a.Progress
	}
	return b
}
