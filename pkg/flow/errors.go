package flow

import (
	"fmt"
	"strings"

	"github.com/jdziat/pass-batch/pkg/core"
)

// MemberFailure is one failed member of a split.
type MemberFailure struct {
	Flow string
	Err  error
}

// SplitError is returned when at least one member of a split failed.
// Failures are listed in declaration order.
type SplitError struct {
	Flow     string
	Failures []MemberFailure
}

func (e *SplitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flow %s: %d split member(s) failed", e.Flow, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Flow, f.Err)
	}
	return b.String()
}

// Unwrap returns the failure of the worst-status member, taking the earliest
// declared member on ties.
func (e *SplitError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	worst := e.Failures[0]
	for _, f := range e.Failures[1:] {
		if core.Worst(core.StatusOf(worst.Err), core.StatusOf(f.Err)) != core.StatusOf(worst.Err) {
			worst = f
		}
	}
	return worst.Err
}

// Status is the worst status across the failed members.
func (e *SplitError) Status() core.BatchStatus {
	status := core.StatusCompleted
	for _, f := range e.Failures {
		status = core.Worst(status, core.StatusOf(f.Err))
	}
	return status
}
