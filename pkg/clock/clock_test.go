package clock

import (
	"context"
	"testing"
	"time"
)

func TestFake_AdvanceReleasesSleeper(t *testing.T) {
	fc := NewFake(time.Unix(1700000000, 0))
	done := make(chan error, 1)

	go func() {
		done <- fc.Sleep(context.Background(), 10*time.Second)
	}()

	deadline := time.After(2 * time.Second)
	for fc.BlockedSleepers() == 0 {
		select {
		case <-deadline:
			t.Fatal("sleeper never parked")
		case <-time.After(time.Millisecond):
		}
	}

	fc.Advance(5 * time.Second)
	select {
	case <-done:
		t.Fatal("sleeper released before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(5 * time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected sleep error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper not released after advancing past deadline")
	}

	if got := fc.Now(); !got.Equal(time.Unix(1700000010, 0)) {
		t.Fatalf("unexpected fake time: %v", got)
	}
}

func TestFake_SleepZeroReturnsImmediately(t *testing.T) {
	fc := NewFake(time.Unix(1700000000, 0))
	if err := fc.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.BlockedSleepers() != 0 {
		t.Fatal("zero-duration sleep must not register a waiter")
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	fc := NewFake(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- fc.Sleep(ctx, time.Hour)
	}()

	deadline := time.After(2 * time.Second)
	for fc.BlockedSleepers() == 0 {
		select {
		case <-deadline:
			t.Fatal("sleeper never parked")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled sleeper did not return")
	}
}

func TestReal_SleepHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := NewReal().Sleep(ctx, time.Minute)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled sleep blocked too long")
	}
}
