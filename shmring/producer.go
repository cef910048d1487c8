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
	"fmt"
	"sync/atomic"
	"time"
)

// Producer is the single writer of a region. It is not safe for
// concurrent use.
type Producer struct {
	region *Region
	write  int
	seq    uint64
	now    func() time.Time
}

// NewProducer starts writing into the slot after the one last published
// so a restarted producer never overwrites the frame readers may be
// holding.
func NewProducer(region *Region) *Producer {
	cur := int(atomic.LoadUint32(region.cursor()))
	return &Producer{
		region: region,
		write:  (cur + 1) % region.slotCount,
		seq:    region.Seq(),
		now:    time.Now,
	}
}

// Publish copies a full frame into the write slot and publishes it.
func (p *Producer) Publish(pixels []byte) error {
	if len(pixels) != p.region.slotSize {
		return fmt.Errorf("%w: frame is %d bytes, slot is %d", ErrSizeMismatch, len(pixels), p.region.slotSize)
	}
	return p.Fill(func(slot []byte) error {
		copy(slot, pixels)
		return nil
	})
}

// Fill hands the write slot to fill so callers can capture straight into
// shared memory. The slot is published only if fill returns nil.
func (p *Producer) Fill(fill func(slot []byte) error) error {
	if p.region.isClosed() {
		return ErrClosed
	}
	if err := fill(p.region.slot(p.write)); err != nil {
		return err
	}
	p.publish()
	return nil
}

// WriteSlot returns the index of the slot the next publish writes to.
func (p *Producer) WriteSlot() int {
	return p.write
}

func (p *Producer) publish() {
	r := p.region
	p.seq++
	atomic.StoreUint64(r.slotSeq(p.write), p.seq)
	atomic.StoreUint32(r.cursor(), uint32(p.write))
	atomic.StoreUint64(r.u64(offSeq), p.seq)
	atomic.StoreUint64(r.u64(offHeartbeat), uint64(p.now().UnixNano()))
	for i := 0; i < r.readers; i++ {
		sig := r.signal(i)
		atomic.StoreUint32(sig, 1)
		wakeAll(sig)
	}
	p.write = (p.write + 1) % r.slotCount
}
