package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(300*time.Millisecond, func() { fired++ })

	c.Advance(299 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired twice: %d", fired)
	}
}

func TestFakeStopAndReset(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	timer := c.AfterFunc(100*time.Millisecond, func() { fired++ })

	if !timer.Stop() {
		t.Fatal("Stop on active timer should return true")
	}
	if timer.Stop() {
		t.Fatal("second Stop should return false")
	}
	c.Advance(time.Second)
	if fired != 0 {
		t.Fatalf("stopped timer fired")
	}

	if timer.Reset(50 * time.Millisecond) {
		t.Fatal("Reset on stopped timer should report inactive")
	}
	c.Advance(50 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d after reset, want 1", fired)
	}
}

func TestFakeResetPushesDeadline(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	timer := c.AfterFunc(100*time.Millisecond, func() { fired++ })

	c.Advance(80 * time.Millisecond)
	if !timer.Reset(100 * time.Millisecond) {
		t.Fatal("Reset on pending timer should report active")
	}
	c.Advance(80 * time.Millisecond)
	if fired != 0 {
		t.Fatal("timer fired before reset deadline")
	}
	c.Advance(20 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", c.Pending())
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "late") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "early") })

	c.Advance(time.Second)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("order = %v", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(time.Second)) {
		t.Fatalf("Now = %v", got)
	}
}
