package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Loop drives Steppers from a single goroutine, so their state needs no
// locking, and runs attached Runnables beside them.
type Loop struct {
	// Interval between iterations. Zero iterates back to back.
	Interval time.Duration
	// OnError decides what happens to a step error. By default the error
	// is logged and the loop continues; a non-nil return stops the loop.
	OnError func(error) error

	steppers []Stepper
	runners  []Runnable
	wakeUpCh chan struct{}
}

// NewLoop creates a Loop.
func NewLoop(interval time.Duration) *Loop {
	return &Loop{Interval: interval, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds Steppers, stepped in the order added.
func (l *Loop) Add(steppers ...Stepper) *Loop {
	l.steppers = append(l.steppers, steppers...)
	return l
}

// AddRunnable adds Runnable implementations.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// TriggerNext runs the next iteration without waiting for the interval.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	runner := NewRunnerWith(ctx).Go(l.runners...)
	defer runner.Wait()
	defer runner.Stop()

	var tick <-chan time.Time
	if l.Interval > 0 {
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		if tick == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			case <-l.wakeUpCh:
			}
		}
		if err := l.runIteration(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) runIteration(ctx context.Context) error {
	for _, s := range l.steppers {
		err := s.Step(ctx)
		if err == nil {
			continue
		}
		if l.OnError != nil {
			if err = l.OnError(err); err != nil {
				return err
			}
			continue
		}
		glog.Warningf("step error: %v", err)
	}
	return nil
}
