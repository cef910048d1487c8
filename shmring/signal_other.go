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

//go:build !linux

package shmring

import (
	"sync/atomic"
	"time"
)

const pollInterval = 2 * time.Millisecond

// Without futexes the signal is polled.
func waitWhileZero(addr *uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		time.Sleep(remaining)
	}
	return nil
}

func wakeAll(addr *uint32) {}
