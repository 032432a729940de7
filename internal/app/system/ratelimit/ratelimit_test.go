package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_AllowUpToLimit(t *testing.T) {
	l := New(3, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("k") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("k") {
		t.Error("4th attempt should be blocked")
	}
	if l.Remaining("k") != 0 {
		t.Errorf("Remaining = %d, want 0", l.Remaining("k"))
	}
	if !l.Allow("other") {
		t.Error("other key should have its own window")
	}
}

func TestLimiter_WindowExpires(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("k") {
		t.Fatal("first attempt should be allowed")
	}
	if l.Allow("k") {
		t.Fatal("second attempt should be blocked")
	}

	now = now.Add(2 * time.Minute)
	if !l.Allow("k") {
		t.Error("attempt after window should be allowed")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	l.Allow("k")
	l.Reset("k")
	if l.Remaining("k") != 1 {
		t.Errorf("Remaining after Reset = %d, want 1", l.Remaining("k"))
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(50, time.Minute)
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("k") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestInitLimiter_UserThenGroup(t *testing.T) {
	il := NewInitLimiterWithConfig(2, time.Minute, 3, time.Minute)
	defer il.Stop()

	const group = int64(-1001234567890)
	for i := 0; i < 2; i++ {
		if ok, _ := il.Check(group, 1); !ok {
			t.Fatalf("user attempt %d should pass", i+1)
		}
	}
	if ok, reason := il.Check(group, 1); ok || reason == "" {
		t.Error("third attempt by same user should be blocked with a reason")
	}

	// A second user uses the last group slot, a third is blocked by the group budget.
	if ok, _ := il.Check(group, 2); !ok {
		t.Error("second user should pass")
	}
	if ok, _ := il.Check(group, 3); ok {
		t.Error("group budget should be exhausted")
	}

	il.ResetUser(1)
	if il.userLimiter.Remaining("1") != 2 {
		t.Error("ResetUser should restore the user budget")
	}
}
