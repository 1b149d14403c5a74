// Package worker runs the background housekeeping loops of the distiller:
// purging expired raw scrapes, sweeping expired cache entries and dropping
// idle rate-limit windows.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
)

// Task is one periodic housekeeping job. Run returns how many items it removed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// RawPurger deletes expired raw scrapes.
type RawPurger interface {
	PurgeRawScrapes(ctx context.Context) (int, error)
}

// Sweeper drops expired in-memory state.
type Sweeper interface {
	Sweep() int
}

// Cleaner drops idle in-memory state.
type Cleaner interface {
	Cleanup() int
}

// PurgeTask purges expired raw scrapes every interval.
func PurgeTask(p RawPurger, interval time.Duration) Task {
	return Task{
		Name:     "raw_purge",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			n, err := p.PurgeRawScrapes(ctx)
			if err != nil {
				return 0, fmt.Errorf("purge raw scrapes: %w", err)
			}
			metrics.ObserveRawPurged(n)
			return n, nil
		},
	}
}

// SweepTask sweeps expired cache entries every interval.
func SweepTask(s Sweeper, interval time.Duration) Task {
	return Task{
		Name:     "cache_sweep",
		Interval: interval,
		Run: func(context.Context) (int, error) {
			return s.Sweep(), nil
		},
	}
}

// CleanupTask drops idle rate-limit windows every interval.
func CleanupTask(c Cleaner, interval time.Duration) Task {
	return Task{
		Name:     "rate_limit_cleanup",
		Interval: interval,
		Run: func(context.Context) (int, error) {
			return c.Cleanup(), nil
		},
	}
}

// Janitor runs each task on its own ticker.
type Janitor struct {
	tasks  []Task
	logger *zap.Logger
}

// New constructs a Janitor. Tasks with a non-positive interval are skipped.
func New(logger *zap.Logger, tasks ...Task) *Janitor {
	j := &Janitor{logger: logging.Named(logger, "janitor")}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			j.logger.Warn("skipping task", zap.String("task", t.Name), zap.Duration("interval", t.Interval))
			continue
		}
		j.tasks = append(j.tasks, t)
	}
	return j
}

// Tasks returns the names of the scheduled tasks.
func (j *Janitor) Tasks() []string {
	names := make([]string, 0, len(j.tasks))
	for _, t := range j.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range j.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			j.loop(ctx, t)
		}(t)
	}
	wg.Wait()
}

// RunOnce runs every task a single time, in order, and returns the first error.
func (j *Janitor) RunOnce(ctx context.Context) error {
	for _, t := range j.tasks {
		if err := j.runTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (j *Janitor) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.runTask(ctx, t); err != nil && ctx.Err() == nil {
				j.logger.Error("task failed", zap.String("task", t.Name), zap.Error(err))
			}
		}
	}
}

func (j *Janitor) runTask(ctx context.Context, t Task) error {
	n, err := t.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	if n > 0 {
		j.logger.Debug("task removed items", zap.String("task", t.Name), zap.Int("removed", n))
	}
	return nil
}
