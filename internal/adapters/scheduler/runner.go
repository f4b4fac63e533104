// Package scheduler provides adapters for running the task scheduler.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	obserrors "github.com/plateworks/paymaster/internal/observability/errors"
	"github.com/plateworks/paymaster/internal/observability/metrics"
	"github.com/plateworks/paymaster/internal/observability/statsd"
	"github.com/plateworks/paymaster/internal/service"
)

// Runner provides a simple adapter to run the scheduler loop.
// It constructs the scheduler service and runs a tick loop with configurable interval.
type Runner struct {
	scheduler core.TaskScheduler
	interval  time.Duration
	logger    *log.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB         *sql.DB
	Config     *core.SchedulerConfig
	Interval   time.Duration
	Logger     *log.Logger
	SlogLogger *slog.Logger
	Metrics    statsd.Sink

	// Optional dependency injections for testing/decoupling
	Scheduled core.ScheduledTasksRepository
	Tasks     core.TaskRepository
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sched, err := service.NewSchedulerService(wireRunnerDependencies(opts))
	if err != nil {
		return nil, err
	}

	return &Runner{
		scheduler: sched,
		interval:  opts.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Scheduled == nil || opts.Tasks == nil) {
		return errors.New("database connection is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 1 * time.Second // Default to 1 second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SlogLogger == nil {
		opts.SlogLogger = slog.Default()
	}
	return nil
}

// wireRunnerDependencies wires up all dependencies for the scheduler service.
// The data repositories satisfy the core interfaces directly, so injections
// only exist for tests that want to substitute mocks.
func wireRunnerDependencies(opts RunnerOptions) service.SchedulerServiceOptions {
	scheduled := opts.Scheduled
	if scheduled == nil {
		scheduled = data.NewScheduledTasksRepo(opts.DB)
	}

	tasks := opts.Tasks
	if tasks == nil {
		tasks = data.NewTaskRepo(opts.DB, data.RepoConfig{Logger: opts.SlogLogger})
	}

	return service.SchedulerServiceOptions{
		Repo:   scheduled,
		Tasks:  tasks,
		Config: opts.Config,
		Logger: opts.SlogLogger,
	}
}

// Run starts the scheduler loop and runs until the context is cancelled.
// It calls Tick() at the configured interval and logs the results.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("Starting scheduler runner with interval %v", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("Scheduler runner stopping: %v", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			processed, err := r.scheduler.Tick(ctx, now)
			elapsed := time.Since(start)

			r.emitTickMetrics(processed, elapsed, err)

			if err != nil {
				r.logger.Printf("Scheduler tick error: %v", err)
				// Continue running despite errors
			} else if processed > 0 {
				r.logger.Printf("Scheduler enqueued %d scheduled tasks", processed)
			}
		}
	}
}

func (r *Runner) emitTickMetrics(processed int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if processed == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)

	if processed > 0 {
		r.metrics.Count("scheduler.tasks_enqueued", int64(processed), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// Example usage:
//
//	func main() {
//		db, err := sql.Open("pgx", "postgres://...")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer db.Close()
//
//		cfg := core.DefaultSchedulerConfig()
//		cfg.BatchSize = 50
//
//		runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
//			DB:       db,
//			Config:   &cfg,
//			Interval: 5 * time.Second,
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ctx, cancel := context.WithCancel(context.Background())
//		defer cancel()
//
//		// Run scheduler in background
//		go func() {
//			if err := runner.Run(ctx); err != nil && err != context.Canceled {
//				log.Printf("Scheduler error: %v", err)
//			}
//		}()
//
//		// Your application logic here...
//		select {}
//	}
