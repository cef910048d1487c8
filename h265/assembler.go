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

package h265

// Assembler collects the payloads of one stream into whole NAL units.
// Payloads must be pushed in order. It is not safe for concurrent use;
// each stream owns its own Assembler.
type Assembler struct {
	buf     []byte
	pending bool
	dropped int
}

// Push adds a payload. nal is non-nil when a NAL unit has been completed
// and carries a start code. On a framing error any partial unit is
// dropped and the caller should carry on with the next payload.
func (a *Assembler) Push(payload []byte) (nal []byte, err error) {
	info, err := Describe(payload)
	if err != nil {
		a.drop()
		return nil, err
	}
	if !info.FU {
		a.drop()
		_, nal, _ = Reassemble(payload)
		return nal, nil
	}
	if info.Start {
		a.drop()
		_, start, _ := Reassemble(payload)
		a.buf = append(a.buf[:0], start...)
		a.pending = true
		return nil, nil
	}
	if !a.pending {
		return nil, framingError(payload, ErrMissingStart)
	}
	a.buf = append(a.buf, payload[FUHeaderSize:]...)
	if !info.End {
		return nil, nil
	}
	nal = make([]byte, len(a.buf))
	copy(nal, a.buf)
	a.buf = a.buf[:0]
	a.pending = false
	return nal, nil
}

// Pending reports whether a fragmented unit is part way through.
func (a *Assembler) Pending() bool {
	return a.pending
}

// Dropped returns how many partial units have been discarded.
func (a *Assembler) Dropped() int {
	return a.dropped
}

// Reset discards any partial unit, for example after packet loss.
func (a *Assembler) Reset() {
	a.drop()
}

func (a *Assembler) drop() {
	if a.pending {
		a.dropped++
	}
	a.buf = a.buf[:0]
	a.pending = false
}
