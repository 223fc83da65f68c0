package speech

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayGrowsExponentially(t *testing.T) {
	p := NewReconnectionPolicy(1000, 30000)

	d1 := p.NextDelay(1)
	d2 := p.NextDelay(2)
	d3 := p.NextDelay(3)

	assert.Less(t, d1, d2)
	assert.Less(t, d2, d3)
	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 2*time.Second, d2)
	assert.Equal(t, 4*time.Second, d3)
}

func TestNextDelayCapped(t *testing.T) {
	p := NewReconnectionPolicy(1000, 30000)

	assert.Equal(t, 30*time.Second, p.NextDelay(6))
	assert.Equal(t, 30*time.Second, p.NextDelay(50))
}

func TestNextDelayClampsBadAttempt(t *testing.T) {
	p := NewReconnectionPolicy(2000, 30000)

	assert.Equal(t, 2*time.Second, p.NextDelay(0))
	assert.Equal(t, 2*time.Second, p.NextDelay(-3))
}

func TestShouldRetry(t *testing.T) {
	p := NewReconnectionPolicy(1000, 30000)

	assert.True(t, p.ShouldRetry(0, 3))
	assert.True(t, p.ShouldRetry(2, 3))
	assert.False(t, p.ShouldRetry(3, 3))
	assert.False(t, p.ShouldRetry(4, 3))
}

func TestPolicyDefaults(t *testing.T) {
	p := NewReconnectionPolicy(0, 0)

	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
}
