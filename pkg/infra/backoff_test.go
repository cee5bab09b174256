package infra

import (
	"testing"
	"time"
)

func TestBackoffExactScheduleWithoutJitter(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, 1*time.Second, 2.0, 0)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second, // capped
		1 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d: Next() = %s, want %s", i, got, w)
		}
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, 1*time.Second, 2.0, 0.2)

	for i := 0; i < 20; i++ {
		wait := b.Next()
		if wait < 100*time.Millisecond {
			t.Fatalf("attempt %d: wait %s below floor", i, wait)
		}
		if wait > 1200*time.Millisecond {
			t.Fatalf("attempt %d: wait %s above cap plus jitter", i, wait)
		}
	}

	if got := b.Attempts(); got != 20 {
		t.Errorf("Attempts() = %d, want 20", got)
	}
}

func TestBackoffReset(t *testing.T) {
	t.Parallel()

	b := NewBackoff(50*time.Millisecond, 10*time.Second, 3.0, 0)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	if got := b.Attempts(); got != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", got)
	}

	if wait := b.Next(); wait != 50*time.Millisecond {
		t.Errorf("wait after Reset = %s, want 50ms", wait)
	}
}
