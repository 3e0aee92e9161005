package shardqueue

import "context"

// Job is a unit of work executed by a ShardExecutor. A failed Job may be run
// again, so Run must be safe to repeat.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to a Job.
type JobFunc func(ctx context.Context) error

// Run implements Job.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
