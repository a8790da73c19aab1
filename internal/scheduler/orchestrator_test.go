package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/five82/drapto/internal/config"
)

func testConfig() *config.Config {
	cfg := config.NewConfig(".", ".", ".")
	cfg.StaggerDelayMillis = 0
	return cfg
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Index: i, Category: CategorySDR}
	}
	return tasks
}

func TestRunEmptyTaskList(t *testing.T) {
	err := Run(context.Background(), testConfig(), nil, func(context.Context, Task) (Measurement, error) {
		t.Fatal("run func should never be called for an empty task list")
		return Measurement{}, nil
	})
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
}

func TestRunWarmupIsSequentialAndRunsEachTaskOnce(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupCount = 3
	cfg.MaxTokens = 8

	var mu sync.Mutex
	counts := make(map[int]int)
	var order []int

	err := Run(context.Background(), cfg, makeTasks(6), func(_ context.Context, task Task) (Measurement, error) {
		mu.Lock()
		counts[task.Index]++
		order = append(order, task.Index)
		mu.Unlock()
		return Measurement{Category: task.Category, PeakRSSBytes: 1}, nil
	})
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	for i := 0; i < 6; i++ {
		if counts[i] != 1 {
			t.Errorf("task %d ran %d times, want exactly once", i, counts[i])
		}
	}
	// the warm-up prefix runs in plan order before anything else starts
	for i := 0; i < 3; i++ {
		if order[i] != i {
			t.Errorf("warm-up order = %v, want tasks 0..2 first in order", order[:3])
		}
	}
}

func TestRunWarmupErrorStopsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupCount = 2

	boom := errors.New("encode failed")
	calls := 0
	err := Run(context.Background(), cfg, makeTasks(8), func(context.Context, Task) (Measurement, error) {
		calls++
		return Measurement{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want the warm-up error", err)
	}
	if calls != 1 {
		t.Errorf("run func called %d times, want 1 (nothing after the warm-up failure)", calls)
	}
}

func TestRunWorkerErrorStopsAdmission(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupCount = 1
	cfg.MaxTokens = 1 // one parallel task at a time

	boom := errors.New("encode failed")
	var mu sync.Mutex
	started := 0

	err := Run(context.Background(), cfg, makeTasks(50), func(_ context.Context, task Task) (Measurement, error) {
		mu.Lock()
		started++
		mu.Unlock()
		if task.Index >= 1 {
			return Measurement{}, boom
		}
		return Measurement{Category: task.Category, PeakRSSBytes: 1}, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want the worker error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if started >= 50 {
		t.Errorf("all %d tasks started despite an early worker failure", started)
	}
	if started < 2 {
		t.Errorf("started = %d, want at least the warm-up task and the failing task", started)
	}
}
