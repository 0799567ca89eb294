package ratelimit

import (
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenThrottles(t *testing.T) {
	l := New(3, 10*time.Second)
	u := id.NewUserID()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(u), "burst token %d should be allowed", i)
	}
	assert.False(t, l.Allow(u), "4th message within the window should be throttled")
}

func TestAllowIsPerUser(t *testing.T) {
	l := New(1, 10*time.Second)
	a, b := id.NewUserID(), id.NewUserID()

	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a))
	assert.True(t, l.Allow(b), "a different user's bucket must be independent")
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := New(1, 10*time.Second)
	u := id.NewUserID()
	l.Allow(u)

	l.Sweep(-time.Second) // everything is "older" than a negative duration ago
	l.mu.Lock()
	_, ok := l.buckets[u]
	l.mu.Unlock()
	assert.False(t, ok)
}
