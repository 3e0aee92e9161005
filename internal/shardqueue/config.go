package shardqueue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// EnvPrefix is the environment prefix read by LoadConfig, e.g.
// PULSE_PUSH_SHARDS=8 PULSE_PUSH_MAX_ATTEMPTS=5.
const EnvPrefix = "PULSE_PUSH"

// Config groups the executor tunables.
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"8"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"100ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"20s"`

	// ErrorHandler is called on the worker goroutine once a job has failed
	// for good. Nil discards errors.
	ErrorHandler func(key string, err error) `envconfig:"-"`

	// Logger receives lifecycle events. The zero value writes nothing.
	Logger zerolog.Logger `envconfig:"-"`
}

// LoadConfig populates Config from PULSE_PUSH_* variables.
func LoadConfig() (Config, error) {
	c := Config{Logger: zerolog.Nop()}
	return c, envconfig.Process(EnvPrefix, &c)
}
