// stereo-streamer - stream live stereo video to a remote viewer
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
	}
}

// LogLimiter will suppress log messages if the same log message is
// seen within some time interval. When a suppressed message is let
// through again the number of suppressed repeats is appended.
type LogLimiter struct {
	mu            sync.Mutex
	interval      time.Duration
	nowFunc       func() time.Time
	previousEntry string
	previousTime  time.Time
	suppressed    int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	if s == limiter.previousEntry {
		if now.Sub(limiter.previousTime) < limiter.interval {
			limiter.suppressed++
			return
		}
	} else {
		limiter.suppressed = 0
	}

	if limiter.suppressed > 0 {
		log.Printf("%s (%d repeats suppressed)", s, limiter.suppressed)
	} else {
		log.Print(s)
	}
	limiter.previousTime = now
	limiter.previousEntry = s
	limiter.suppressed = 0
}

// Suppressed returns how many repeats of the last message have been
// dropped since it was last logged.
func (limiter *LogLimiter) Suppressed() int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return limiter.suppressed
}
