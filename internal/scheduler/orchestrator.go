package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/drapto/internal/config"
)

// Task is one unit of schedulable work: its memory category decides its
// token weight.
type Task struct {
	Index    int
	Category Category
}

// RunFunc performs the actual work for a single task and reports the
// peak memory it observed, which feeds calibration during warm-up.
type RunFunc func(ctx context.Context, task Task) (Measurement, error)

// Run processes tasks in two phases. The first cfg.WarmupCount tasks run
// sequentially and their peak-memory measurements calibrate the token
// profile; the remainder are admitted in parallel under the token and
// memory budget, pausing all new admissions whenever global memory
// pressure is high. The first worker error stops further admissions;
// already-running tasks are drained before the error is returned.
func Run(ctx context.Context, cfg *config.Config, tasks []Task, run RunFunc) error {
	if len(tasks) == 0 {
		return nil
	}

	warmN := cfg.WarmupCount
	if warmN > len(tasks) {
		warmN = len(tasks)
	}
	measurements := make([]Measurement, 0, warmN)
	for i := 0; i < warmN; i++ {
		m, err := run(ctx, tasks[i])
		if err != nil {
			return err
		}
		measurements = append(measurements, m)
	}

	remaining := tasks[warmN:]
	if len(remaining) == 0 {
		return nil
	}

	profile := DeriveProfile(measurements)
	sched := New(cfg, profile)
	g, gctx := errgroup.WithContext(ctx)

	next := 0
	for next < len(remaining) || sched.Outstanding() > 0 {
		if gctx.Err() != nil {
			break
		}

		if sched.MemoryPressureHigh() {
			time.Sleep(time.Second)
			continue
		}

		for next < len(remaining) {
			task := remaining[next]
			weight := profile.Weight(task.Category)
			if !sched.CanSubmit(weight) {
				break
			}

			taskID := task.Index
			sched.Admit(taskID, weight)
			g.Go(func() error {
				defer sched.Complete(taskID)
				_, err := run(gctx, task)
				return err
			})
			next++
		}

		// Reached with either tasks still running or admission blocked;
		// both resolve with time, not with a tighter poll.
		time.Sleep(100 * time.Millisecond)
	}

	return g.Wait()
}
