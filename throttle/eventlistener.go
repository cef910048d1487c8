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
	"log"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"
)

// EventRecorder uses the event api to record that keyframe requests were
// throttled at a particular time. At most one event is queued per
// interval.
type EventRecorder struct {
	Interval time.Duration
	last     time.Time
	nowFunc  func() time.Time
	addEvent func(eventclient.Event) error
}

func NewEventRecorder(interval time.Duration) *EventRecorder {
	return &EventRecorder{
		Interval: interval,
		nowFunc:  time.Now,
		addEvent: eventclient.AddEvent,
	}
}

func (er *EventRecorder) WhenThrottled() {
	now := er.nowFunc()
	if !er.last.IsZero() && now.Sub(er.last) < er.Interval {
		return
	}
	er.last = now

	err := er.addEvent(eventclient.Event{
		Timestamp: now,
		Type:      "keyframeThrottled",
		Details: map[string]interface{}{
			"description": map[string]interface{}{
				"type": "throttle",
			},
		},
	})
	if err != nil {
		log.Printf("could not record throttle event: %v", err)
	}
}
