// Package jobs provides background jobs for the auth web front.
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// Session sweep job
// Periodically drops expired session state and idle rate-limit buckets
// =============================================================================

// Sweeper removes stale entries and reports how many it removed
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweeperFunc adapts a function to Sweeper
type SweeperFunc func(ctx context.Context) (int64, error)

// Sweep calls f
func (f SweeperFunc) Sweep(ctx context.Context) (int64, error) { return f(ctx) }

// SweepConfig configures the sweep job
type SweepConfig struct {
	// Interval between runs when started with Start. Default: 15 minutes
	Interval time.Duration

	// Logger for job output. Default: no-op
	Logger *zap.Logger
}

// SweepResult contains the results of a sweep run
type SweepResult struct {
	// Removed is the number of entries removed per target
	Removed map[string]int64

	// Errors is a list of errors encountered during the run
	Errors []error

	// Duration is how long the run took
	Duration time.Duration
}

// SweepJob runs every registered sweeper
type SweepJob struct {
	targets map[string]Sweeper
	order   []string
	config  SweepConfig
}

// NewSweepJob creates a sweep job with no targets
func NewSweepJob(config SweepConfig) *SweepJob {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &SweepJob{targets: make(map[string]Sweeper), config: config}
}

// Add registers a sweeper under name. Targets run in registration order.
func (j *SweepJob) Add(name string, s Sweeper) *SweepJob {
	if _, ok := j.targets[name]; !ok {
		j.order = append(j.order, name)
	}
	j.targets[name] = s
	return j
}

// Run executes every sweeper once. A failing target does not stop the others.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	start := time.Now()
	result := &SweepResult{Removed: make(map[string]int64, len(j.order))}

	for _, name := range j.order {
		n, err := j.targets[name].Sweep(ctx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("sweeping %s: %w", name, err))
			continue
		}
		result.Removed[name] = n
	}
	result.Duration = time.Since(start)

	fields := []zap.Field{zap.Duration("took", result.Duration), zap.Int("errors", len(result.Errors))}
	for _, name := range j.order {
		fields = append(fields, zap.Int64(name, result.Removed[name]))
	}
	if len(result.Errors) > 0 {
		j.config.Logger.Warn("sweep completed with errors", append(fields, zap.Errors("error_list", result.Errors))...)
	} else {
		j.config.Logger.Debug("sweep completed", fields...)
	}
	return result
}

// Start runs the job every Interval until ctx is canceled. It blocks.
func (j *SweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
