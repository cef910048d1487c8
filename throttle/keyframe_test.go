// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2018, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package throttle

import (
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
)

const (
	burst       = 3
	minInterval = 2 * time.Second
)

func newTestConfig() *Config {
	return &Config{
		Burst:       burst,
		MinInterval: minInterval,
	}
}

type keyframeCounter struct {
	requests int
}

func (k *keyframeCounter) RequestKeyframe() {
	k.requests++
}

func (k *keyframeCounter) Reset() {
	k.requests = 0
}

type throttleListener struct {
	events int
}

func (tc *throttleListener) WhenThrottled() {
	tc.events++
}

func newTestLimiter() (*keyframeCounter, *throttleListener, *KeyframeLimiter, *testClock) {
	clock := new(testClock)
	target := new(keyframeCounter)
	listener := new(throttleListener)
	return target, listener, NewKeyframeLimiterWithClock(target, newTestConfig(), listener, clock), clock
}

func request(limiter *KeyframeLimiter, n int) int {
	passed := 0
	for i := 0; i < n; i++ {
		if limiter.Request() {
			passed++
		}
	}
	return passed
}

func TestOnlyForwardsUntilBucketIsEmpty(t *testing.T) {
	target, listener, limiter, _ := newTestLimiter()

	assert.Equal(t, burst, request(limiter, burst+2))
	assert.Equal(t, burst, target.requests)
	assert.Equal(t, 2, listener.events)
	assert.Equal(t, int64(0), limiter.Available())
}

func TestWaitingRefillsBucket(t *testing.T) {
	target, listener, limiter, clock := newTestLimiter()

	request(limiter, burst) // empty bucket
	target.Reset()

	// Not long enough for a token.
	clock.Sleep(minInterval / 2)
	assert.Equal(t, 0, request(limiter, 1))
	assert.Equal(t, 1, listener.events)

	clock.Sleep(minInterval / 2)
	assert.Equal(t, 1, request(limiter, 2))
	assert.Equal(t, 1, target.requests)
	assert.Equal(t, 2, listener.events)
}

func TestBucketNeverExceedsBurst(t *testing.T) {
	target, _, limiter, clock := newTestLimiter()

	clock.Sleep(100 * minInterval)
	assert.Equal(t, int64(burst), limiter.Available())
	assert.Equal(t, burst, request(limiter, 10))
	assert.Equal(t, burst, target.requests)
}

func TestIdleIsNotCreditedTwice(t *testing.T) {
	target, listener, limiter, clock := newTestLimiter()

	for round := 1; round <= 3; round++ {
		clock.Sleep(50 * minInterval)
		assert.Equal(t, burst, request(limiter, burst+2))
		assert.Equal(t, round*burst, target.requests)
		assert.Equal(t, round*2, listener.events)
	}

	// Partly used, then idle long enough to refill.
	clock.Sleep(50 * minInterval)
	assert.Equal(t, 1, request(limiter, 1))
	clock.Sleep(50 * minInterval)
	assert.Equal(t, burst, request(limiter, burst+1))
}

func TestNilListener(t *testing.T) {
	clock := new(testClock)
	target := new(keyframeCounter)
	limiter := NewKeyframeLimiterWithClock(target, newTestConfig(), nil, clock)
	assert.Equal(t, burst, request(limiter, burst+1))
}

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig()
	assert.NoError(t, conf.Validate())

	conf.Burst = 0
	assert.Error(t, conf.Validate())

	conf = DefaultConfig()
	conf.MinInterval = 0
	assert.Error(t, conf.Validate())
}

var _ ratelimit.Clock = new(realClock)
var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

// Now implements Clock.Now by calling time.Now.
func (c *testClock) Now() time.Time {
	return c.now
}

// Now implements Clock.Sleep by calling time.Sleep.
func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}
