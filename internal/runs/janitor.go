package runs

import (
	"context"
	"io"
	"log"
	"time"
)

// Janitor sweeps expired run records on an interval.
type Janitor struct {
	tracker  *Tracker
	interval time.Duration
	logger   *log.Logger
}

// NewJanitor returns a Janitor. A non-positive interval defaults to one minute.
func NewJanitor(tracker *Tracker, interval time.Duration, logger *log.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Janitor{tracker: tracker, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled. Sweep errors are logged, not returned.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	n, err := j.tracker.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Printf("run_sweep_failed err=%v", err)
		}
		return
	}
	if n > 0 {
		j.logger.Printf("run_sweep removed=%d", n)
	}
}
