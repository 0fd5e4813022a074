// Package retry provides an exponential-backoff retry policy with a total
// time budget. A policy is parameterized by delays only; the caller decides
// which errors are worth retrying through a classifier function, so the same
// implementation serves both individual API calls and whole batch passes.
package retry

import (
	"time"
)

type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxElapsed   time.Duration

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: time.Second,
		MaxDelay:     20 * time.Second,
		Multiplier:   2.0,
		MaxElapsed:   time.Hour,
	}
}

func (p Policy) withDefaults() Policy {
	if p.InitialDelay == 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 20 * time.Second
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2.0
	}
	if p.MaxElapsed == 0 {
		p.MaxElapsed = time.Hour
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	return p
}

// Do runs fn until it succeeds, returns an error the classifier rejects, or
// the total time budget is exhausted. The delay doubles after each attempt up
// to MaxDelay. The last error seen is returned when the budget runs out.
func (p Policy) Do(fn func() error, retryable func(error) bool) error {
	p = p.withDefaults()

	start := time.Now()
	delay := p.InitialDelay

	for {
		err := fn()
		if err == nil || !retryable(err) {
			return err
		}
		if time.Since(start)+delay > p.MaxElapsed {
			return err
		}

		p.sleep(delay)
		delay = min(time.Duration(float64(delay)*p.Multiplier), p.MaxDelay)
	}
}
