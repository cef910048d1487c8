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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerSpacesFrames(t *testing.T) {
	clock := new(testClock)
	start := clock.Now()
	pacer := NewFramePacerWithClock(10, clock)
	assert.Equal(t, 100*time.Millisecond, pacer.Interval())

	// The first frame is due straight away.
	pacer.Wait()
	assert.Equal(t, time.Duration(0), clock.Now().Sub(start))

	for i := 0; i < 4; i++ {
		pacer.Wait()
	}
	assert.Equal(t, 400*time.Millisecond, clock.Now().Sub(start))
}

func TestPacerDoesNotBurstAfterStall(t *testing.T) {
	clock := new(testClock)
	pacer := NewFramePacerWithClock(10, clock)
	pacer.Wait()

	clock.Sleep(time.Second)
	stalled := clock.Now()
	pacer.Wait()
	pacer.Wait()
	assert.Equal(t, 100*time.Millisecond, clock.Now().Sub(stalled))
}

func TestPacerMinimumRate(t *testing.T) {
	pacer := NewFramePacerWithClock(0, new(testClock))
	assert.Equal(t, time.Second, pacer.Interval())
}
