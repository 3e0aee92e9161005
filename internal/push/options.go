package push

import (
	"github.com/rs/zerolog"

	"github.com/readbori/pulse-diary/internal/shardqueue"
)

// Option configures a Pipeline during construction in New.
type Option func(*Pipeline)

// WithLogger sets the error sink for fire-and-forget pushes.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithExecutorConfig replaces the shard executor tunables. The executor's
// ErrorHandler is always owned by the pipeline.
func WithExecutorConfig(cfg shardqueue.Config) Option {
	return func(p *Pipeline) { p.execCfg = cfg }
}

// WithErrorHandler registers fn to observe pushes that failed for good, after
// they have been logged. key is "<kind>:<id>".
func WithErrorHandler(fn func(key string, err error)) Option {
	return func(p *Pipeline) { p.onError = fn }
}
