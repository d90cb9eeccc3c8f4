package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Timeouts holds all configurable timeout and polling values.
// These values can be customized via environment variables.
type Timeouts struct {
	Stack         time.Duration `env:"TIMEOUT_STACK" envDefault:"4m"`          // Time a stack may take to complete, after the grace period
	AccountStatus time.Duration `env:"TIMEOUT_ACCOUNT_STATUS" envDefault:"5m"` // Time to wait for an account to leave UNINITIALIZED
	Connection    time.Duration `env:"TIMEOUT_CONNECTION" envDefault:"10m"`    // Time to wait for an account to report READY after a region update
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`          // Delay between status polls
	PollGrace     time.Duration `env:"POLL_GRACE" envDefault:"10s"`            // Delay before the first stack status poll
	RegionWorkers int           `env:"REGION_WORKERS" envDefault:"8"`          // Maximum concurrent region operations per account
}

// DefaultTimeouts returns the built-in timeout values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Stack:         4 * time.Minute,
		AccountStatus: 5 * time.Minute,
		Connection:    10 * time.Minute,
		PollInterval:  time.Second,
		PollGrace:     10 * time.Second,
		RegionWorkers: 8,
	}
}

// LoadTimeouts loads timeout configuration from environment variables.
// If a variable cannot be parsed the built-in defaults are returned.
//
// Environment Variables:
//   - ORGSYNC_TIMEOUT_STACK (default: 4m)
//   - ORGSYNC_TIMEOUT_ACCOUNT_STATUS (default: 5m)
//   - ORGSYNC_TIMEOUT_CONNECTION (default: 10m)
//   - ORGSYNC_POLL_INTERVAL (default: 1s)
//   - ORGSYNC_POLL_GRACE (default: 10s)
//   - ORGSYNC_REGION_WORKERS (default: 8)
func LoadTimeouts() *Timeouts {
	t, err := env.ParseAsWithOptions[Timeouts](env.Options{Prefix: EnvPrefix})
	if err != nil {
		d := DefaultTimeouts()
		return &d
	}
	return &t
}

func (t Timeouts) validate() []error {
	var errs []error
	positive := []struct {
		name string
		val  time.Duration
	}{
		{"TIMEOUT_STACK", t.Stack},
		{"TIMEOUT_ACCOUNT_STATUS", t.AccountStatus},
		{"TIMEOUT_CONNECTION", t.Connection},
		{"POLL_INTERVAL", t.PollInterval},
	}
	for _, p := range positive {
		if p.val <= 0 {
			errs = append(errs, fmt.Errorf("%s%s must be positive, got %s", EnvPrefix, p.name, p.val))
		}
	}
	if t.PollGrace < 0 {
		errs = append(errs, fmt.Errorf("%sPOLL_GRACE must not be negative, got %s", EnvPrefix, t.PollGrace))
	}
	if t.RegionWorkers < 1 {
		errs = append(errs, fmt.Errorf("%sREGION_WORKERS must be at least 1, got %d", EnvPrefix, t.RegionWorkers))
	}
	return errs
}
