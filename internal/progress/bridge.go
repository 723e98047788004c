// Package progress decouples the pipeline from whatever displays its
// progress. A Bridge holds two optional callbacks; calling through a nil
// Bridge or a Bridge with nil callbacks does nothing.
package progress

import "fmt"

// Bridge forwards progress and log lines to injected sinks. Callbacks may be
// invoked from several goroutines at once.
type Bridge struct {
	// OnProgress receives one call per finished unit of work. delta is 0 for
	// a label-only update and 1 otherwise.
	OnProgress func(stage int, label string, delta int)
	// OnLog receives human-readable status lines. It must not block.
	OnLog func(line string)
}

// Progress reports delta units of work done in stage. Negative deltas are
// reported as 0.
func (b *Bridge) Progress(stage int, label string, delta int) {
	if b == nil || b.OnProgress == nil {
		return
	}
	if delta < 0 {
		delta = 0
	}
	defer func() {
		_ = recover()
	}()
	b.OnProgress(stage, label, delta)
}

// Log forwards a status line.
func (b *Bridge) Log(line string) {
	if b == nil || b.OnLog == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	b.OnLog(line)
}

// Logf formats and forwards a status line.
func (b *Bridge) Logf(format string, args ...any) {
	if b == nil || b.OnLog == nil {
		return
	}
	b.Log(fmt.Sprintf(format, args...))
}

// Fanout returns a bridge that forwards every call to each of bridges in
// order. Nil bridges are skipped.
func Fanout(bridges ...*Bridge) *Bridge {
	var live []*Bridge
	for _, b := range bridges {
		if b != nil {
			live = append(live, b)
		}
	}
	return &Bridge{
		OnProgress: func(stage int, label string, delta int) {
			for _, b := range live {
				b.Progress(stage, label, delta)
			}
		},
		OnLog: func(line string) {
			for _, b := range live {
				b.Log(line)
			}
		},
	}
}
