// Package harness provides the cooperative test-loop driver used across
// this module's test suites: repeatedly call Process() on a fixed set of
// components until a predicate is satisfied or a bound is hit. A plain
// tick loop keeps the components under test free of background goroutines.
package harness

import (
	"fmt"
	"time"
)

// Ticker is anything whose Process() advances one cooperative step,
// reporting whether it did any work. *actor.ParentWrapper and *engine.Engine
// both satisfy this.
type Ticker interface {
	Process() (bool, error)
}

// DefaultMaxTicks bounds RunUntil so a broken predicate fails fast instead
// of spinning forever.
const DefaultMaxTicks = 10000

// RunUntil drives every ticker in round-robin order, calling done after
// each full round, until done returns true, four consecutive rounds pass
// with no ticker reporting work (a quiescent deadlock), or the hard
// maxTicks cap is reached. It returns the number of rounds actually run.
func RunUntil(maxTicks int, done func() bool, tickers ...Ticker) (int, error) {
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}
	idleRounds := 0
	for round := 0; round < maxTicks; round++ {
		if done() {
			return round, nil
		}
		anyWork := false
		for _, t := range tickers {
			w, err := t.Process()
			if err != nil {
				return round, fmt.Errorf("harness: tick %d: %w", round, err)
			}
			if w {
				anyWork = true
			}
		}
		if anyWork {
			idleRounds = 0
			continue
		}
		idleRounds++
		if idleRounds > 3 {
			if done() {
				return round, nil
			}
			return round, fmt.Errorf("harness: quiescent after %d rounds without satisfying predicate", round)
		}
	}
	if done() {
		return maxTicks, nil
	}
	return maxTicks, fmt.Errorf("harness: exceeded %d ticks without satisfying predicate", maxTicks)
}

// WaitFor is a time-budget counterpart to RunUntil for tests that want
// a wall-clock ceiling instead of a tick ceiling; each round still advances
// exactly one tick per ticker, so this still exercises purely cooperative
// scheduling rather than sleeping.
func WaitFor(budget time.Duration, done func() bool, tickers ...Ticker) error {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if done() {
			return nil
		}
		for _, t := range tickers {
			if _, err := t.Process(); err != nil {
				return err
			}
		}
	}
	if done() {
		return nil
	}
	return fmt.Errorf("harness: deadline of %s elapsed without satisfying predicate", budget)
}
