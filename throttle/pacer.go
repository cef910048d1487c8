// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2026, The Cacophony Project
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
	"time"

	"github.com/juju/ratelimit"
)

// FramePacer limits a capture loop to a frame rate. Cameras that block
// until the sensor delivers a frame do not need one; simulated cameras
// do.
type FramePacer struct {
	bucket   *ratelimit.Bucket
	interval time.Duration
}

func NewFramePacer(fps int) *FramePacer {
	return NewFramePacerWithClock(fps, new(realClock))
}

func NewFramePacerWithClock(fps int, clock ratelimit.Clock) *FramePacer {
	if fps < 1 {
		fps = 1
	}
	interval := time.Second / time.Duration(fps)
	return &FramePacer{
		bucket:   ratelimit.NewBucketWithClock(interval, 1, clock),
		interval: interval,
	}
}

// Wait blocks until the next frame is due.
func (p *FramePacer) Wait() {
	p.bucket.Wait(1)
}

// Interval is the time between frames.
func (p *FramePacer) Interval() time.Duration {
	return p.interval
}
