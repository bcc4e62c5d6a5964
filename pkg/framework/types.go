package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Stepper performs one non-blocking unit of work, e.g. polls a bus once.
type Stepper interface {
	Step(context.Context) error
}

// StepFunc is the func form of Stepper.
type StepFunc func(context.Context) error

// Step implements Stepper.
func (f StepFunc) Step(ctx context.Context) error {
	return f(ctx)
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}
