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

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(start time.Time) *Limiter {
	l := NewLimiter()
	l.now = func() time.Time { return start }
	return l
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := newTestLimiter(time.Now())
	for i := 0; i < 30; i++ {
		allowed, _, _ := l.Allow(ClassWrite, "user-1")
		assert.True(t, allowed, "request %d should be allowed", i)
	}
	allowed, remaining, _ := l.Allow(ClassWrite, "user-1")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestLimiter_SeparateWindowsPerClassAndPrincipal(t *testing.T) {
	l := newTestLimiter(time.Now())
	for i := 0; i < 30; i++ {
		l.Allow(ClassWrite, "user-1")
	}
	allowed, _, _ := l.Allow(ClassRead, "user-1")
	assert.True(t, allowed, "read class has its own budget")

	allowed, _, _ = l.Allow(ClassWrite, "user-2")
	assert.True(t, allowed, "different principal has its own budget")
}

func TestLimiter_ResetsOnWindowBoundary(t *testing.T) {
	start := time.Now().Truncate(time.Minute)
	l := newTestLimiter(start)
	for i := 0; i < 30; i++ {
		l.Allow(ClassWrite, "user-1")
	}
	allowed, _, _ := l.Allow(ClassWrite, "user-1")
	assert.False(t, allowed)

	l.now = func() time.Time { return start.Add(time.Minute + time.Second) }
	allowed, remaining, _ := l.Allow(ClassWrite, "user-1")
	assert.True(t, allowed)
	assert.Equal(t, 29, remaining)
}

func TestLimiter_SweepDiscardsExpiredWindows(t *testing.T) {
	start := time.Now().Truncate(time.Minute)
	l := newTestLimiter(start)
	l.Allow(ClassRead, "user-1")
	assert.Len(t, l.windows, 1)

	l.now = func() time.Time { return start.Add(2 * time.Minute) }
	l.sweepLocked(l.now())
	assert.Len(t, l.windows, 0)
}
