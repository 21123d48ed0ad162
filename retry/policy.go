package retry

import (
	"time"

	"github.com/pme-sh/lrpc/util"
)

type Policy struct {
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty"` // Maximum number of attempts, negative for unbounded.
	Backoff  util.Duration `json:"backoff,omitempty" yaml:"backoff,omitempty"`   // Base delay between attempts.
	Timeout  util.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`   // Overall time budget.
}

func Basic() Policy {
	return Policy{
		Attempts: 5,
		Backoff:  util.Duration(200 * time.Millisecond),
		Timeout:  util.Duration(15 * time.Second),
	}
}

// None makes a single attempt.
func None() Policy {
	return Policy{Attempts: 1}
}

func (p Policy) adjust() Policy {
	if p.Attempts == 0 {
		p.Attempts = 5
	}
	p.Backoff = p.Backoff.Or(150 * time.Millisecond)
	p.Timeout = p.Timeout.Or(15 * time.Second)
	return p
}

// Step advances the attempt counter and grows delay by half each time.
func (p Policy) Step(step *int, delay *time.Duration) error {
	n := *step
	*step = n + 1
	if p.Attempts > 0 && n+1 >= p.Attempts {
		return ErrMaxAttemptsExceeded
	}
	if n == 0 {
		*delay = p.Backoff.Duration()
	} else {
		*delay += p.Backoff.Duration()
		*delay = *delay + (*delay >> 1)
	}
	return nil
}
