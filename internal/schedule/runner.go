// Package schedule provides cancellable recurring tasks on an injectable
// clock. Staleness re-checks and backup reminders run through it instead of
// raw timers, so tests drive time explicitly.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the runner. The real implementation wraps the
// time package; tests substitute a fake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of time.Ticker the runner needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return realClock{} }

// Task is one recurring unit of work. Errors are reported to the runner's
// error hook and do not stop the schedule.
type Task func(ctx context.Context) error

// Runner executes named recurring tasks until stopped.
type Runner struct {
	clock   Clock
	onError func(name string, err error)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a runner. onError may be nil.
func NewRunner(clock Clock, onError func(name string, err error)) *Runner {
	if clock == nil {
		clock = SystemClock()
	}
	return &Runner{
		clock:   clock,
		onError: onError,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Every schedules the task at the given interval until Cancel(name) or
// Stop. Scheduling a name twice replaces the earlier schedule. The first
// run happens after one interval, not immediately; callers wanting an
// immediate pass invoke the task themselves first.
func (r *Runner) Every(ctx context.Context, name string, interval time.Duration, task Task) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if prev, ok := r.cancels[name]; ok {
		prev()
	}
	r.cancels[name] = cancel
	r.mu.Unlock()

	ticker := r.clock.NewTicker(interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				if err := task(ctx); err != nil && r.onError != nil {
					r.onError(name, err)
				}
			}
		}
	}()
}

// Cancel stops one named schedule. Unknown names are ignored.
func (r *Runner) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[name]; ok {
		cancel()
		delete(r.cancels, name)
	}
}

// Stop cancels every schedule and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	for name, cancel := range r.cancels {
		cancel()
		delete(r.cancels, name)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
