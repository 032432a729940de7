// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"strconv"
	"sync"
	"time"
)

// Limiter provides fixed-window rate limiting per key.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max attempts per window
	duration time.Duration // window duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a new rate limiter allowing limit attempts per duration.
// Call Stop to end the background cleanup goroutine.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow checks if an attempt for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many attempts are left for this key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || l.now().After(w.expiresAt) {
		return l.limit
	}
	if remaining := l.limit - w.count; remaining > 0 {
		return remaining
	}
	return 0
}

// Reset clears the rate limit for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// InitLimiter throttles /init attempts so the bootstrap secret cannot be
// brute-forced from chat. It tracks both the requesting user and the group:
//   - one user trying many guesses
//   - many accounts guessing inside one group
type InitLimiter struct {
	userLimiter  *Limiter
	groupLimiter *Limiter
}

// NewInitLimiter creates a limiter with the default budget:
// 5 attempts per user per 10 minutes, 20 attempts per group per 10 minutes.
func NewInitLimiter() *InitLimiter {
	return NewInitLimiterWithConfig(5, 10*time.Minute, 20, 10*time.Minute)
}

// NewInitLimiterWithConfig creates an init limiter with custom limits.
func NewInitLimiterWithConfig(userLimit int, userWindow time.Duration, groupLimit int, groupWindow time.Duration) *InitLimiter {
	return &InitLimiter{
		userLimiter:  New(userLimit, userWindow),
		groupLimiter: New(groupLimit, groupWindow),
	}
}

// Check reports whether an attempt by user in group may proceed.
// Returns (allowed, reason) where reason is shown to the user when blocked.
func (il *InitLimiter) Check(groupID, userID int64) (bool, string) {
	if !il.userLimiter.Allow(strconv.FormatInt(userID, 10)) {
		return false, "Too many init attempts. Please wait a few minutes."
	}
	if !il.groupLimiter.Allow(strconv.FormatInt(groupID, 10)) {
		return false, "Too many init attempts in this group. Please wait a few minutes."
	}
	return true, ""
}

// ResetUser clears the user's budget after a successful init.
func (il *InitLimiter) ResetUser(userID int64) {
	il.userLimiter.Reset(strconv.FormatInt(userID, 10))
}

// Stop ends both cleanup goroutines.
func (il *InitLimiter) Stop() {
	il.userLimiter.Stop()
	il.groupLimiter.Stop()
}
