package client

import (
	"fmt"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
)

// Config configures an Engine, following a setDefaults/Validate
// pattern shared with the server option types.
type Config struct {
	NSHost string
	NSPort int

	DialTimeout time.Duration
	IOTimeout   time.Duration

	Cache   CacheConfig
	Retry   RetryPolicy
	Workers int // async worker pool size

	Logger netlog.Logger
}

func (c *Config) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = 10 * time.Second
	}
	if c.Cache.Capacity == 0 {
		c.Cache = DefaultCacheConfig()
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.Logger == nil {
		c.Logger = netlog.Null{}
	}
}

// Validate rejects a Config that can't build a working Engine.
func (c Config) Validate() error {
	if c.NSHost == "" {
		return fmt.Errorf("naming server host is required")
	}
	if c.NSPort <= 0 || c.NSPort > 65535 {
		return fmt.Errorf("invalid naming server port %d", c.NSPort)
	}
	return nil
}

// RetryPolicy configures capped exponential backoff for retryable
// errors.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns a conservative, bounded backoff policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Delay returns the backoff delay before the (0-indexed) attempt-th retry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}
