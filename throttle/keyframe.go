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
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/stereo-streamer/loglimiter"
)

// KeyframeRequester is anything that can be asked to emit a keyframe
// with its next encoded frame.
type KeyframeRequester interface {
	RequestKeyframe()
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

func NewKeyframeLimiter(
	target KeyframeRequester,
	conf *Config,
	listener ThrottledEventListener,
) *KeyframeLimiter {
	return NewKeyframeLimiterWithClock(target, conf, listener, new(realClock))
}

func NewKeyframeLimiterWithClock(
	target KeyframeRequester,
	conf *Config,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *KeyframeLimiter {
	if listener == nil {
		listener = new(nullListener)
	}

	return &KeyframeLimiter{
		target:   target,
		listener: listener,
		conf:     *conf,
		clock:    clock,
		bucket:   newBucket(conf, clock),
		logs:     loglimiter.New(time.Minute),
	}
}

// newBucket holds one token per keyframe, refilled every MinInterval.
func newBucket(conf *Config, clock ratelimit.Clock) *ratelimit.Bucket {
	return ratelimit.NewBucketWithClock(conf.MinInterval, int64(conf.Burst), clock)
}

// KeyframeLimiter passes keyframe requests on to the encoder unless
// viewers ask too often. Every keyframe costs a large burst of bandwidth
// so a misbehaving viewer can not be allowed to request one per frame.
type KeyframeLimiter struct {
	target   KeyframeRequester
	listener ThrottledEventListener
	conf     Config
	clock    ratelimit.Clock
	logs     *loglimiter.LogLimiter

	mu     sync.Mutex
	bucket *ratelimit.Bucket
}

// Request forwards a keyframe request and reports whether it was let
// through.
func (limiter *KeyframeLimiter) Request() bool {
	limiter.mu.Lock()
	bucket := limiter.bucket
	if bucket.Available() >= bucket.Capacity() {
		// A full bucket does not advance its fill clock, so the first take
		// would credit the whole idle period again. Start afresh instead.
		bucket = newBucket(&limiter.conf, limiter.clock)
		limiter.bucket = bucket
	}
	granted := bucket.TakeAvailable(1) > 0
	limiter.mu.Unlock()

	if granted {
		limiter.target.RequestKeyframe()
		return true
	}
	limiter.logs.Print("keyframe request throttled")
	limiter.listener.WhenThrottled()
	return false
}

// Available returns how many keyframe requests would be let through now.
func (limiter *KeyframeLimiter) Available() int64 {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return limiter.bucket.Available()
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Now implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
