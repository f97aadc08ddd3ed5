// Package cron runs the periodic maintenance of the middleware: the
// stranded-buffer sweep, idle buffer eviction and provider probing.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job.
	Name() string

	// Schedule returns a 5-field cron expression or a descriptor such as
	// "@every 30s".
	Schedule() string

	// Run executes the job. Implementations should honor ctx cancellation.
	Run(ctx context.Context) error
}
