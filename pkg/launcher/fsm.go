package launcher

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/jdziat/pass-batch/pkg/core"
)

// Execution lifecycle events.
const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
	eventStop     = "stop"
)

// executionFSM drives a JobExecution through STARTING, STARTED and one
// terminal status, stamping timestamps on entry.
type executionFSM struct {
	exec *core.JobExecution
	now  func() time.Time
	fsm  *fsm.FSM
}

func newExecutionFSM(exec *core.JobExecution, now func() time.Time) *executionFSM {
	m := &executionFSM{exec: exec, now: now}
	running := []string{string(core.StatusStarting), string(core.StatusStarted)}

	m.fsm = fsm.NewFSM(
		string(exec.Status),
		fsm.Events{
			{Name: eventStart, Src: []string{string(core.StatusStarting)}, Dst: string(core.StatusStarted)},
			{Name: eventComplete, Src: []string{string(core.StatusStarted)}, Dst: string(core.StatusCompleted)},
			{Name: eventFail, Src: running, Dst: string(core.StatusFailed)},
			{Name: eventStop, Src: running, Dst: string(core.StatusStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.exec.Status = core.BatchStatus(e.Dst)
			},
			"enter_" + string(core.StatusStarted): func(_ context.Context, _ *fsm.Event) {
				t := m.now()
				m.exec.StartedAt = &t
			},
			"enter_" + string(core.StatusCompleted): m.onEnd,
			"enter_" + string(core.StatusFailed):    m.onEnd,
			"enter_" + string(core.StatusStopped):   m.onEnd,
		},
	)
	return m
}

func (m *executionFSM) onEnd(_ context.Context, _ *fsm.Event) {
	t := m.now()
	m.exec.EndedAt = &t
}

// Transition fires event.
func (m *executionFSM) Transition(ctx context.Context, event string) error {
	return m.fsm.Event(ctx, event)
}

// Finish moves the execution to the terminal status matching err.
func (m *executionFSM) Finish(ctx context.Context, err error) error {
	switch core.StatusOf(err) {
	case core.StatusCompleted:
		return m.Transition(ctx, eventComplete)
	case core.StatusStopped:
		return m.Transition(ctx, eventStop)
	default:
		return m.Transition(ctx, eventFail)
	}
}

// Current returns the current state.
func (m *executionFSM) Current() core.BatchStatus {
	return core.BatchStatus(m.fsm.Current())
}
