package apns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyAttempts(t *testing.T) {
	assert.Equal(t, 1, RetryPolicy{}.attempts())
	assert.Equal(t, 1, RetryPolicy{MaxAttempts: 1}.attempts())
	assert.Equal(t, 4, DefaultRetryPolicy.attempts())
}

func TestRetryScheduleGrows(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		MaxAttempts:     5,
	}
	b := policy.newBackOff()
	prev := nextWait(b, 0)
	assert.Equal(t, 100*time.Millisecond, prev)
	for i := 0; i < 5; i++ {
		wait := nextWait(b, 0)
		assert.GreaterOrEqual(t, wait, prev)
		assert.LessOrEqual(t, wait, time.Second)
		prev = wait
	}
}

func TestNextWaitHonorsServerHint(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
	}
	b := policy.newBackOff()
	// a larger server hint wins over the scheduled wait
	assert.Equal(t, time.Minute, nextWait(b, time.Minute))
	// a smaller hint is ignored and the schedule has still advanced
	wait := nextWait(b, time.Millisecond)
	assert.GreaterOrEqual(t, wait, 10*time.Millisecond)
}
