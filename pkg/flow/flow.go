// Package flow composes steps into sequential chains and parallel splits.
//
// A Flow is an ordered list of units. Each unit is a step, a nested flow,
// or a split of two or more flows that run concurrently and join before the
// next unit starts. A failing unit ends the chain; a failing split member
// does not cancel its siblings.
package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/security"
	"github.com/jdziat/pass-batch/pkg/step"
)

// Runner executes a single step. The launcher supplies one that records a
// StepExecution around the call. It must be safe for concurrent use.
type Runner func(ctx context.Context, s step.Step) error

type unitKind int

const (
	unitStep unitKind = iota
	unitFlow
	unitSplit
)

type unit struct {
	kind  unitKind
	step  step.Step
	flow  *Flow
	split []*Flow
}

// Flow is an immutable composition of steps.
type Flow struct {
	name  string
	units []unit
}

// Builder assembles a Flow.
type Builder struct {
	flow *Flow
	err  error
}

// New starts building a flow.
func New(name string) *Builder {
	return &Builder{flow: &Flow{name: name}}
}

// Step appends a step to the chain.
func (b *Builder) Step(s step.Step) *Builder {
	if s == nil {
		b.fail("nil step")
		return b
	}
	b.flow.units = append(b.flow.units, unit{kind: unitStep, step: s})
	return b
}

// Next is an alias for Step that reads better after the first unit.
func (b *Builder) Next(s step.Step) *Builder {
	return b.Step(s)
}

// Flow appends a nested flow to the chain.
func (b *Builder) Flow(f *Flow) *Builder {
	if f == nil {
		b.fail("nil flow")
		return b
	}
	b.flow.units = append(b.flow.units, unit{kind: unitFlow, flow: f})
	return b
}

// Split appends a group of flows that run concurrently.
func (b *Builder) Split(flows ...*Flow) *Builder {
	if len(flows) < 2 {
		b.fail("split needs at least two flows")
		return b
	}
	for _, f := range flows {
		if f == nil {
			b.fail("nil flow in split")
			return b
		}
	}
	b.flow.units = append(b.flow.units, unit{kind: unitSplit, split: flows})
	return b
}

func (b *Builder) fail(reason string) {
	if b.err == nil {
		b.err = fmt.Errorf("flow %s: %w: %s", b.flow.name, core.ErrInvalidFlow, reason)
	}
}

// Build validates and returns the flow.
func (b *Builder) Build() (*Flow, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.flow.Validate(); err != nil {
		return nil, err
	}
	return b.flow, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Steps returns every step reachable from f in declaration order.
func (f *Flow) Steps() []step.Step {
	var out []step.Step
	f.walk(func(s step.Step) { out = append(out, s) })
	return out
}

func (f *Flow) walk(fn func(step.Step)) {
	for _, u := range f.units {
		switch u.kind {
		case unitStep:
			fn(u.step)
		case unitFlow:
			u.flow.walk(fn)
		case unitSplit:
			for _, member := range u.split {
				member.walk(fn)
			}
		}
	}
}

// Validate checks names, step configuration and step name uniqueness.
func (f *Flow) Validate() error {
	if err := security.ValidateStepName(f.name); err != nil {
		return fmt.Errorf("flow: %w", err)
	}
	if len(f.units) == 0 {
		return fmt.Errorf("flow %s: %w: no steps", f.name, core.ErrInvalidFlow)
	}
	seen := make(map[string]bool)
	for _, s := range f.Steps() {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("flow %s: %w", f.name, err)
		}
		if seen[s.Name()] {
			return fmt.Errorf("flow %s: %w: duplicate step %q", f.name, core.ErrInvalidFlow, s.Name())
		}
		seen[s.Name()] = true
	}
	return nil
}

// Execute runs the units in order and returns the first failure. A
// cancelled ctx ends the flow as stopped before its next unit starts.
func (f *Flow) Execute(ctx context.Context, run Runner) error {
	for _, u := range f.units {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("flow %s: %w: %w", f.name, core.ErrStopped, cerr)
		}
		var err error
		switch u.kind {
		case unitStep:
			err = run(ctx, u.step)
		case unitFlow:
			err = u.flow.Execute(ctx, run)
		case unitSplit:
			err = executeSplit(ctx, f.name, u.split, run)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// executeSplit starts every member and waits for all of them.
func executeSplit(ctx context.Context, parent string, members []*Flow, run Runner) error {
	errs := make([]error, len(members))

	var wg sync.WaitGroup
	for i, member := range members {
		wg.Add(1)
		go func(i int, member *Flow) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("flow %s: panic: %v", member.name, r)
				}
			}()
			errs[i] = member.Execute(ctx, run)
		}(i, member)
	}
	wg.Wait()

	var failures []MemberFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, MemberFailure{Flow: members[i].name, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &SplitError{Flow: parent, Failures: failures}
}
