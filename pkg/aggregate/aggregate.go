// Package aggregate groups records into keyed accumulators.
//
// Accumulators are created empty the first time a key is seen and every
// record for that key is merged in. Results come back in first-seen key
// order. When merge is commutative and associative, accumulator values do
// not depend on the order records arrive in.
package aggregate

import (
	"time"
)

// Aggregator holds the in-flight accumulators of one aggregation pass.
// It is not safe for concurrent use.
type Aggregator[R any, K comparable, A any] struct {
	key   func(R) K
	init  func(K) A
	merge func(A, R) A

	order []K
	acc   map[K]A
}

// New creates an aggregator. key buckets a record, init builds the empty
// accumulator for a bucket, and merge folds a record into an accumulator.
func New[R any, K comparable, A any](key func(R) K, init func(K) A, merge func(A, R) A) *Aggregator[R, K, A] {
	return &Aggregator[R, K, A]{
		key:   key,
		init:  init,
		merge: merge,
		acc:   make(map[K]A),
	}
}

// Add merges r into the accumulator for its bucket.
func (a *Aggregator[R, K, A]) Add(r R) {
	k := a.key(r)
	cur, ok := a.acc[k]
	if !ok {
		cur = a.init(k)
		a.order = append(a.order, k)
	}
	a.acc[k] = a.merge(cur, r)
}

// Len returns the number of buckets.
func (a *Aggregator[R, K, A]) Len() int { return len(a.order) }

// Keys returns bucket keys in first-seen order.
func (a *Aggregator[R, K, A]) Keys() []K {
	out := make([]K, len(a.order))
	copy(out, a.order)
	return out
}

// Get returns the accumulator for k.
func (a *Aggregator[R, K, A]) Get(k K) (A, bool) {
	v, ok := a.acc[k]
	return v, ok
}

// Results returns the accumulators in first-seen key order.
func (a *Aggregator[R, K, A]) Results() []A {
	out := make([]A, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.acc[k])
	}
	return out
}

// Reset drops every accumulator.
func (a *Aggregator[R, K, A]) Reset() {
	a.order = nil
	a.acc = make(map[K]A)
}

// Day truncates t to midnight in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Week truncates t to midnight on the Monday of its ISO week.
func Week(t time.Time) time.Time {
	day := Day(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}
