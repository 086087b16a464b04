// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements fixed-window request counters: in-process,
// reset on restart, one window per (operation class, principal).
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned once a principal exceeds its window budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Class distinguishes the read and write counters.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// defaultLimits are the per-minute read/write budgets.
var defaultLimits = map[Class]int{
	ClassRead:  100,
	ClassWrite: 30,
}

// window is a counter's state for the remainder of one 60-second slot.
type window struct {
	count   int
	resetAt time.Time
}

// sweepThreshold bounds the counter map's memory footprint; a bounded
// sweep runs lazily once the map exceeds it.
const sweepThreshold = 10000

// Limiter enforces fixed-window counters keyed by (class, principal).
//
// Purpose: Process-local request throttling; documented as resetting on
// restart because state lives only in this map.
// Domain: Platform (Security)
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limits  map[Class]int
	now     func() time.Time
}

// NewLimiter creates a limiter using the default per-minute budgets.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		limits:  defaultLimits,
		now:     time.Now,
	}
}

// Allow increments the counter for (class, principal) and reports
// whether the request may proceed, along with the requests remaining
// in the current window and the window's reset instant (unix seconds).
func (l *Limiter) Allow(class Class, principal string) (allowed bool, remaining int, resetAt int64) {
	limit := l.limits[class]
	key := string(class) + ":" + principal

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.windows) > sweepThreshold {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 0, resetAt: now.Truncate(time.Minute).Add(time.Minute)}
		l.windows[key] = w
	}

	if w.count >= limit {
		return false, 0, w.resetAt.Unix()
	}
	w.count++
	return true, limit - w.count, w.resetAt.Unix()
}

// sweepLocked discards every window whose reset instant has already
// passed. Callers must hold mu.
func (l *Limiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
