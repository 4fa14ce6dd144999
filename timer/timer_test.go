package timer

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for callback")
		return ""
	}
}

func TestTimerManager_ScheduleAfterFires(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	defer m.Stop()

	fired := make(chan string, 1)
	m.ScheduleAfter(20*time.Millisecond, func() { fired <- "done" })

	if got := waitFor(t, fired, time.Second); got != "done" {
		t.Fatalf("unexpected value %q", got)
	}
	if n := m.Pending(); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestTimerManager_FiresInDeadlineOrder(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	defer m.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan string, 3)
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- name
		}
	}

	m.ScheduleAfter(90*time.Millisecond, record("third"))
	m.ScheduleAfter(10*time.Millisecond, record("first"))
	m.ScheduleAfter(50*time.Millisecond, record("second"))

	for i := 0; i < 3; i++ {
		waitFor(t, done, time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestTimerManager_DueTasksFireOnce(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	defer m.Stop()

	fired := make(chan string, 4)
	m.ScheduleAfter(5*time.Millisecond, func() { fired <- "once" })

	waitFor(t, fired, time.Second)
	select {
	case v := <-fired:
		t.Fatalf("task fired again: %q", v)
	case <-time.After(50 * time.Millisecond):
	}
	if n := m.Pending(); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestTimerManager_StopIsIdempotent(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}
