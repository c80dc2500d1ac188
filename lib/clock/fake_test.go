// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	c.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	channel := c.After(3 * time.Second)

	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(3 * time.Second)) {
			t.Errorf("fire time = %v", fired)
		}
	default:
		t.Fatal("After did not fire on Advance")
	}
}

func TestFakeAfterImmediateWhenNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(10 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(10 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)

	c.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// A stopped ticker delivers nothing on further advances.
	ticker.Stop()
	c.Advance(5 * time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeTickerCatchesUpPastTarget(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)

	// One advance spanning many intervals delivers one buffered tick
	// and reschedules beyond the target.
	c.Advance(10 * time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}
	select {
	case <-ticker.C:
		t.Fatal("more than one tick buffered")
	default:
	}

	// The next tick needs a full fresh interval.
	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired before its next interval elapsed")
	default:
	}
	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire at the next interval")
	}
}

func TestAdvanceFiresInTriggeringDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()
	after := c.After(1500 * time.Millisecond)

	c.mu.Lock()
	c.current = c.current.Add(2 * time.Second)
	firings := c.collectDueLocked(c.current)
	c.mu.Unlock()

	if len(firings) != 2 {
		t.Fatalf("got %d firings, want 2", len(firings))
	}
	// The ticker's triggering deadline (1s) sorts before the plain
	// wait at 1.5s even though the ticker rescheduled to 3s.
	if want := epoch.Add(time.Second); !firings[0].deadline.Equal(want) {
		t.Errorf("first firing deadline = %v, want %v", firings[0].deadline, want)
	}
	if (<-chan time.Time)(firings[0].channel) != ticker.C {
		t.Error("first firing is not the ticker")
	}
	if want := epoch.Add(1500 * time.Millisecond); !firings[1].deadline.Equal(want) {
		t.Errorf("second firing deadline = %v, want %v", firings[1].deadline, want)
	}
	if (<-chan time.Time)(firings[1].channel) != after {
		t.Error("second firing is not the plain wait")
	}
	if got := c.PendingCount(); got != 1 {
		t.Errorf("pending waits after collect = %d, want 1", got)
	}
}

func TestPendingCount(t *testing.T) {
	c := Fake(epoch)
	if got := c.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
	c.After(time.Second)
	ticker := c.NewTicker(time.Second)
	if got := c.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
	ticker.Stop()
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("PendingCount after Stop = %d, want 1", got)
	}
}
