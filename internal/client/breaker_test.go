package client

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestBreaker_BlocksForDelay(t *testing.T) {
	mock := clock.NewMock()
	b := newBreaker(mock, time.Minute)

	assert.Zero(t, b.remaining())

	b.trip()
	assert.Equal(t, time.Minute, b.remaining())

	mock.Add(40 * time.Second)
	assert.Equal(t, 20*time.Second, b.remaining())

	mock.Add(20 * time.Second)
	assert.Zero(t, b.remaining())
	assert.True(t, b.blockedUntil.IsZero())
}

func TestBreaker_ZeroDelayNeverTrips(t *testing.T) {
	b := newBreaker(clock.NewMock(), 0)
	b.trip()
	assert.Zero(t, b.remaining())
}
