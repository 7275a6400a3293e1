package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(5 * time.Second)
	if got, want := c.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
	if got := Since(c, epoch); got != 5*time.Second {
		t.Fatalf("Since = %v, want 5s", got)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(3 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-ch:
		t.Fatalf("After fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatalf("After did not fire")
	}
	if n := c.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d, want 0", n)
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatalf("After(0) should fire immediately")
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(10 * time.Second)

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatalf("ticker did not fire")
	}

	ticker.Stop()
	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatalf("stopped ticker fired")
	default:
	}
	if n := c.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d, want 0", n)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()
	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("sleeper not released")
	}
}

func TestNewTickerPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}
