// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	// Should not fire yet.
	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	// Advance past the deadline.
	clock.Advance(3 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClockAfterZeroDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(0)

	select {
	case <-channel:
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockAfterNegativeDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(-1 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After(-1s) should fire immediately")
	}
}

func TestFakeClockAfterPartialAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at exact deadline")
	}
}

func TestFakeClockAfterFiresOnce(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(1 * time.Second)

	clock.Advance(1 * time.Second)
	clock.Advance(1 * time.Second)
	clock.Advance(1 * time.Second)

	<-channel
	select {
	case <-channel:
		t.Fatal("After fired more than once")
	default:
	}
}

func TestFakeClockSleep(t *testing.T) {
	clock := Fake(epoch)

	done := make(chan struct{})
	go func() {
		clock.Sleep(3 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeClockSleepZero(t *testing.T) {
	clock := Fake(epoch)
	// Should return immediately, no blocking.
	clock.Sleep(0)
}

func TestFakeClockSleepNegative(t *testing.T) {
	clock := Fake(epoch)
	// Should return immediately.
	clock.Sleep(-1 * time.Second)
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)

	// Register waiters from concurrent goroutines.
	for i := 0; i < 3; i++ {
		go func() {
			clock.Sleep(5 * time.Second)
		}()
	}

	// WaitForTimers blocks until all 3 are registered.
	clock.WaitForTimers(3)

	if got := clock.PendingCount(); got != 3 {
		t.Fatalf("PendingCount() = %d, want 3", got)
	}
}

func TestFakeClockPendingCountExcludesFired(t *testing.T) {
	clock := Fake(epoch)
	clock.After(1 * time.Second)
	clock.After(3 * time.Second)

	if got := clock.PendingCount(); got != 2 {
		t.Fatalf("PendingCount() = %d, want 2", got)
	}

	clock.Advance(2 * time.Second)
	if got := clock.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() after first fires = %d, want 1", got)
	}
}

func TestFakeClockImplementsClock(t *testing.T) {
	// Compile-time check that *FakeClock satisfies Clock.
	var _ Clock = (*FakeClock)(nil)
}

func TestRealClockImplementsClock(t *testing.T) {
	// Compile-time check that realClock satisfies Clock.
	var _ Clock = Real()
}

func TestFakeClockConcurrentAccess(t *testing.T) {
	clock := Fake(epoch)
	const goroutines = 10

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.After(1 * time.Second)
			clock.Now()
		}()
	}
	wg.Wait()

	clock.WaitForTimers(goroutines)
	clock.Advance(1 * time.Second)
}
