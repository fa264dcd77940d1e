package helpers

import (
	"sync/atomic"
	"time"
)

const (
	DefaultBackoffStart = 2
	DefaultBackoffStep  = 1
	DefaultBackoffMax   = 60
	DefaultBackoffUnit  = time.Second
)

// Linear backoff for retry delays.
// Counter begins at Start, Failure() returns current delay and increases
// counter by Step (never above Max), Reset() returns counter to Start.
// Delay is Counter*Unit.
// Counter reads are safe from any goroutine, updates expect single owner.
type Backoff struct {
	counter int64 // atomic align

	Start int
	Step  int
	Max   int // <=0 = no limit
	Unit  time.Duration
}

// Use scenario:
// for {
//   err := op()
//   if err == nil { backoff.Reset(); break }
//   time.Sleep(backoff.Failure())
// }
func NewBackoff(start, step, max int, unit time.Duration) *Backoff {
	b := &Backoff{Start: start, Step: step, Max: max, Unit: unit}
	b.Reset()
	return b
}

func (b *Backoff) Counter() int {
	c := atomic.LoadInt64(&b.counter)
	if c == 0 {
		return b.start()
	}
	return int(c)
}

func (b *Backoff) Delay() time.Duration {
	unit := b.Unit
	if unit == 0 {
		unit = DefaultBackoffUnit
	}
	return time.Duration(b.Counter()) * unit
}

// Failure returns delay to wait before next attempt and advances counter.
func (b *Backoff) Failure() time.Duration {
	delay := b.Delay()
	next := b.Counter() + b.step()
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	atomic.StoreInt64(&b.counter, int64(next))
	return delay
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.counter, int64(b.start()))
}

// Update is Reset on success, Failure otherwise.
func (b *Backoff) Update(success bool) time.Duration {
	if success {
		b.Reset()
		return 0
	}
	return b.Failure()
}

func (b *Backoff) start() int {
	if b.Start <= 0 {
		return DefaultBackoffStart
	}
	return b.Start
}

func (b *Backoff) step() int {
	if b.Step <= 0 {
		return DefaultBackoffStep
	}
	return b.Step
}
