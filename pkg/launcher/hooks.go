package launcher

import (
	"context"

	"github.com/jdziat/pass-batch/pkg/core"
)

// OnJobStart registers a callback for when an execution starts.
func (l *Launcher) OnJobStart(fn func(context.Context, *core.JobExecution)) {
	l.mu.Lock()
	l.onStart = append(l.onStart, fn)
	l.mu.Unlock()
}

// OnJobComplete registers a callback for when an execution completes.
func (l *Launcher) OnJobComplete(fn func(context.Context, *core.JobExecution)) {
	l.mu.Lock()
	l.onComplete = append(l.onComplete, fn)
	l.mu.Unlock()
}

// OnJobFail registers a callback for when an execution ends FAILED or STOPPED.
func (l *Launcher) OnJobFail(fn func(context.Context, *core.JobExecution, error)) {
	l.mu.Lock()
	l.onFail = append(l.onFail, fn)
	l.mu.Unlock()
}

// Events returns a channel for receiving execution events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (l *Launcher) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	l.mu.Lock()
	l.eventSubs = append(l.eventSubs, ch)
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (l *Launcher) Unsubscribe(ch <-chan core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.eventSubs {
		if sub == ch {
			l.eventSubs = append(l.eventSubs[:i], l.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (l *Launcher) Emit(e core.Event) {
	l.mu.RLock()
	subs := make([]chan core.Event, len(l.eventSubs))
	copy(subs, l.eventSubs)
	l.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

func (l *Launcher) callStartHooks(ctx context.Context, exec *core.JobExecution) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.JobExecution), len(l.onStart))
	copy(hooks, l.onStart)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, exec)
	}
}

func (l *Launcher) callCompleteHooks(ctx context.Context, exec *core.JobExecution) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.JobExecution), len(l.onComplete))
	copy(hooks, l.onComplete)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, exec)
	}
}

func (l *Launcher) callFailHooks(ctx context.Context, exec *core.JobExecution, err error) {
	l.mu.RLock()
	hooks := make([]func(context.Context, *core.JobExecution, error), len(l.onFail))
	copy(hooks, l.onFail)
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, exec, err)
	}
}
