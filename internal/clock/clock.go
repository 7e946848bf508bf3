package clock

import (
	"context"
	"errors"
	"fmt"
)

// Stage is one pipeline step driven once per tick, in registration order.
type Stage struct {
	Name string
	Run  func(ctx context.Context, tick uint64) error
}

// Clock owns the monotonic tick counter. Ticks cannot be skipped, reversed or
// re-entered; stages run strictly in order within each tick.
type Clock struct {
	tick   uint64
	stages []Stage
	inTick bool
}

// New returns a clock at tick 0. The first Advance moves to tick 1.
func New() *Clock {
	return &Clock{}
}

// Tick returns the current tick index.
func (c *Clock) Tick() uint64 {
	return c.tick
}

// Register appends a stage. Stages cannot be added while a tick is running.
func (c *Clock) Register(name string, run func(ctx context.Context, tick uint64) error) error {
	if name == "" {
		return errors.New("stage name is required")
	}
	if run == nil {
		return errors.New("stage runner is required")
	}
	if c.inTick {
		return errors.New("cannot register stage mid-tick")
	}
	c.stages = append(c.stages, Stage{Name: name, Run: run})
	return nil
}

// Advance increments the counter by exactly one and drives every stage in
// order. A stage error aborts the remaining stages but the tick is already
// spent: the counter never moves backwards.
func (c *Clock) Advance(ctx context.Context) (uint64, error) {
	if c.inTick {
		return c.tick, errors.New("advance called re-entrantly")
	}
	if err := ctx.Err(); err != nil {
		return c.tick, err
	}

	c.inTick = true
	defer func() { c.inTick = false }()

	c.tick++
	for _, stage := range c.stages {
		if err := stage.Run(ctx, c.tick); err != nil {
			return c.tick, fmt.Errorf("tick %d stage %s: %w", c.tick, stage.Name, err)
		}
	}
	return c.tick, nil
}
