package harness

import (
	"testing"
	"time"
)

// countdownTicker reports work for its first n ticks, then goes quiet.
type countdownTicker struct {
	remaining int
}

func (c *countdownTicker) Process() (bool, error) {
	if c.remaining > 0 {
		c.remaining--
		return true, nil
	}
	return false, nil
}

func TestRunUntilStopsWhenPredicateSatisfied(t *testing.T) {
	ticks := 0
	done := func() bool { return ticks >= 3 }
	ticker := tickerFunc(func() (bool, error) {
		ticks++
		return true, nil
	})

	rounds, err := RunUntil(100, done, ticker)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rounds < 3 {
		t.Fatalf("rounds = %d, want at least 3", rounds)
	}
}

func TestRunUntilReportsQuiescentDeadlock(t *testing.T) {
	c := &countdownTicker{remaining: 2}
	_, err := RunUntil(100, func() bool { return false }, c)
	if err == nil {
		t.Fatalf("expected a quiescent error once all tickers go idle")
	}
}

func TestWaitForHonorsBudget(t *testing.T) {
	c := &countdownTicker{remaining: 1}
	start := time.Now()
	err := WaitFor(50*time.Millisecond, func() bool { return false }, c)
	if err == nil {
		t.Fatalf("expected a deadline error")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("WaitFor returned before its budget elapsed")
	}
}

type tickerFunc func() (bool, error)

func (f tickerFunc) Process() (bool, error) { return f() }
