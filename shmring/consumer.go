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

package shmring

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// waitSlice bounds a single kernel wait so context cancellation is
// noticed promptly.
const waitSlice = 50 * time.Millisecond

// Frame is a borrowed view of a published slot. Data is only valid until
// the producer has published SlotCount-1 further frames; use
// Consumer.Copy to take a checked copy.
type Frame struct {
	Slot int
	Seq  uint64
	Data []byte
}

// ConsumerStats counts what a consumer has seen.
type ConsumerStats struct {
	Frames   uint64
	Dropped  uint64
	Timeouts uint64
}

// Consumer reads frames using one of the region's reader signals.
type Consumer struct {
	region  *Region
	reader  int
	lastSeq uint64
	stats   ConsumerStats
}

// NewConsumer returns a consumer bound to reader signal index reader.
// Each concurrent reader must use its own index.
func NewConsumer(region *Region, reader int) (*Consumer, error) {
	if reader < 0 || reader >= region.readers {
		return nil, fmt.Errorf("shmring: reader index %d out of range (region has %d)", reader, region.readers)
	}
	c := &Consumer{
		region: region,
		reader: reader,
	}
	if seq := region.Seq(); seq > 0 {
		// The latest frame is still unread by this consumer.
		c.lastSeq = seq - 1
	}
	return c, nil
}

// Next blocks until the producer publishes a frame newer than the last
// one returned, timeout passes, or ctx is done. A timeout is reported as
// ok == false with a nil error.
func (c *Consumer) Next(ctx context.Context, timeout time.Duration) (Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, false, err
	}
	r := c.region
	sig := r.signal(c.reader)
	deadline := time.Now().Add(timeout)
	for {
		for atomic.LoadUint32(sig) == 0 {
			if r.isClosed() {
				return Frame{}, false, ErrClosed
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				c.stats.Timeouts++
				return Frame{}, false, nil
			}
			if remaining > waitSlice {
				remaining = waitSlice
			}
			if err := waitWhileZero(sig, remaining); err != nil {
				return Frame{}, false, err
			}
			if err := ctx.Err(); err != nil {
				return Frame{}, false, err
			}
		}

		atomic.StoreUint32(sig, 0)
		slot := int(atomic.LoadUint32(r.cursor()))
		if slot >= r.slotCount {
			return Frame{}, false, fmt.Errorf("%w: cursor %d out of range", ErrBadMagic, slot)
		}
		seq := atomic.LoadUint64(r.slotSeq(slot))
		if seq <= c.lastSeq {
			// Raised by a publish we have already consumed.
			continue
		}
		if c.stats.Frames > 0 && seq > c.lastSeq+1 {
			c.stats.Dropped += seq - c.lastSeq - 1
		}
		c.lastSeq = seq
		c.stats.Frames++
		return Frame{Slot: slot, Seq: seq, Data: r.slot(slot)}, true, nil
	}
}

// Valid reports whether f's slot can not yet have been overwritten.
func (c *Consumer) Valid(f Frame) bool {
	published := c.region.Seq()
	return published-f.Seq <= uint64(c.region.slotCount-2)
}

// Copy copies f into dst and reports whether the copy is free of tearing.
func (c *Consumer) Copy(f Frame, dst []byte) (int, bool) {
	n := copy(dst, f.Data)
	return n, c.Valid(f)
}

// RequestStream asks the producer to start publishing.
func (c *Consumer) RequestStream() {
	c.region.RequestStream()
}

// Stats returns counts since the consumer was created.
func (c *Consumer) Stats() ConsumerStats {
	return c.stats
}

// Reader returns the signal index this consumer waits on.
func (c *Consumer) Reader() int {
	return c.reader
}
