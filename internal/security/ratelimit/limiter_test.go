package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWindow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("t1"))
	assert.True(t, l.Allow("t1"))
	assert.False(t, l.Allow("t1"))
	assert.True(t, l.Allow("t2"))

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow("t1"))
}

func TestAllowStrictIsSeparate(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	defer l.Stop()

	assert.True(t, l.AllowStrict("login:a@example.com", 1, time.Minute))
	assert.False(t, l.AllowStrict("login:a@example.com", 1, time.Minute))
	assert.True(t, l.Allow("login:a@example.com"))

	l.Reset("login:a@example.com")
	assert.True(t, l.AllowStrict("login:a@example.com", 1, time.Minute))
}

func TestDisabledBudget(t *testing.T) {
	l := NewLimiter(0, time.Minute)
	defer l.Stop()
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("t1"))
	}
}
