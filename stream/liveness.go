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

package stream

import (
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"

	"github.com/TheCacophonyProject/stereo-streamer/loglimiter"
)

// ProducerClock reports when a region was last published to. It is
// implemented by shmring.Region.
type ProducerClock interface {
	ProducerAge() (time.Duration, bool)
}

// LivenessMonitor turns frame wait timeouts into warnings about the
// capture process. A producer that has gone quiet for longer than the
// timeout is reported lost once, and found again when frames resume.
type LivenessMonitor struct {
	mu       sync.Mutex
	producer ProducerClock
	timeout  time.Duration
	lost     bool
	logs     *loglimiter.LogLimiter
	addEvent func(eventclient.Event) error
	nowFunc  func() time.Time
}

func NewLivenessMonitor(producer ProducerClock, timeout time.Duration) *LivenessMonitor {
	return &LivenessMonitor{
		producer: producer,
		timeout:  timeout,
		logs:     loglimiter.New(time.Minute),
		addEvent: eventclient.AddEvent,
		nowFunc:  time.Now,
	}
}

// Frame records that a frame arrived.
func (m *LivenessMonitor) Frame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lost {
		log.Print("frames from the camera have resumed")
		m.lost = false
	}
}

// Timeout records that a wait for a frame timed out.
func (m *LivenessMonitor) Timeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	age, ok := m.producer.ProducerAge()
	if !ok {
		m.logs.Print("waiting for the camera to publish its first frame")
		return
	}
	if age < m.timeout || m.lost {
		return
	}
	m.lost = true
	log.Printf("no frames from the camera for %s", age.Round(time.Second))
	err := m.addEvent(eventclient.Event{
		Timestamp: m.nowFunc(),
		Type:      "stereoCameraLost",
		Details: map[string]interface{}{
			"secondsSinceFrame": int(age / time.Second),
		},
	})
	if err != nil {
		m.logs.Printf("could not record camera lost event: %v", err)
	}
}

// Lost reports whether the camera is currently considered lost.
func (m *LivenessMonitor) Lost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost
}
