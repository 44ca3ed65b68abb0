package core

import (
	"sync"
	"time"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant until moved with Set or Advance.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type StampFactory struct {
	clock Clock
}

func NewStampFactory(clock Clock) StampFactory {
	if clock == nil {
		clock = SystemClock{}
	}
	return StampFactory{clock: clock}
}

// Stamp returns the provenance record for a change made by actor now.
func (f StampFactory) Stamp(actor User) ChangeStamp {
	clock := f.clock
	if clock == nil {
		clock = SystemClock{}
	}
	return ChangeStamp{
		UserID:    actor.ID,
		Timestamp: clock.Now().UnixMilli(),
	}
}
