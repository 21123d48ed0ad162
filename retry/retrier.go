package retry

import (
	"context"
	"errors"
	"time"
)

type Retrier struct {
	Context  context.Context
	Policy   Policy
	Step     int
	Delay    time.Duration
	Deadline time.Time
}

const maxDelayCoeff = 20

func (p Policy) RetrierContext(ctx context.Context) Retrier {
	rt := Retrier{
		Context: ctx,
		Policy:  p.adjust(),
	}
	rt.Deadline = time.Now().Add(rt.Policy.Timeout.Duration())
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(rt.Deadline) {
		rt.Deadline = deadline
	}
	return rt
}

func (r *Retrier) NextDelay() (delay time.Duration, err error) {
	err = r.Policy.Step(&r.Step, &r.Delay)
	if err == nil {
		r.Delay = min(r.Delay, r.Policy.Backoff.Duration()*maxDelayCoeff)
		delay = r.Delay
	}
	return
}

// Consume waits out the next delay if err is retryable, otherwise returns err.
func (r *Retrier) Consume(err error) error {
	if !Retryable(err) {
		return err
	}
	delay, rerr := r.NextDelay()
	if rerr != nil {
		return errors.Join(rerr, err)
	}
	if time.Until(r.Deadline) < delay {
		return errors.Join(ErrDeadlineExceeded, err)
	}
	select {
	case <-r.Context.Done():
		return errors.Join(r.Context.Err(), err)
	case <-time.After(delay):
		return nil
	}
}

func (r Retrier) Run(f func(ctx context.Context) error) (err error) {
	for {
		if err = f(r.Context); err == nil {
			return
		}
		if err = r.Consume(err); err != nil {
			return
		}
	}
}

func (p Policy) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return p.RetrierContext(ctx).Run(f)
}
