package concurrency

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

var ErrBusy = errors.New("all job slots are busy")

// JobGuard bounds how many jobs run at once.
type JobGuard struct {
	sem   *semaphore.Weighted
	slots int64
}

// NewJobGuard allows up to slots concurrent jobs; values below one allow one.
func NewJobGuard(slots int) *JobGuard {
	if slots < 1 {
		slots = 1
	}
	return &JobGuard{sem: semaphore.NewWeighted(int64(slots)), slots: int64(slots)}
}

// Execute waits for a free slot, then runs task. It returns ctx.Err() if ctx
// is done before a slot frees up.
func (g *JobGuard) Execute(ctx context.Context, task func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return task()
}

// TryExecute runs task only if a slot is free right now, else returns ErrBusy.
func (g *JobGuard) TryExecute(task func() error) error {
	if !g.sem.TryAcquire(1) {
		return ErrBusy
	}
	defer g.sem.Release(1)
	return task()
}

// Slots returns the configured limit.
func (g *JobGuard) Slots() int {
	return int(g.slots)
}
