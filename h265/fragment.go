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

import (
	"errors"
	"fmt"
)

// ErrPayloadBudget is returned when the payload limit cannot hold an FU
// header plus at least one byte of data.
var ErrPayloadBudget = errors.New("h265: payload budget too small")

// Fragmenter splits NAL units into payloads of at most MaxPayload bytes.
type Fragmenter struct {
	max int
}

// NewFragmenter checks the payload limit once so Fragment can not fail.
func NewFragmenter(maxPayload int) (*Fragmenter, error) {
	if maxPayload < FUHeaderSize+1 {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrPayloadBudget, maxPayload, FUHeaderSize+1)
	}
	return &Fragmenter{max: maxPayload}, nil
}

// MaxPayload returns the payload limit.
func (f *Fragmenter) MaxPayload() int {
	return f.max
}

// Fragment returns nal unchanged if it fits, otherwise a run of FU
// payloads. The body is split as evenly as possible with the remainder
// spread one byte at a time over the first fragments.
func (f *Fragmenter) Fragment(nal []byte) [][]byte {
	if len(nal) == 0 {
		return nil
	}
	if len(nal) <= f.max {
		return [][]byte{nal}
	}

	body := nal[NALHeaderSize:]
	chunk := f.max - FUHeaderSize
	n := (len(body) + chunk - 1) / chunk
	base := len(body) / n
	rem := len(body) % n

	indicator0 := nal[0]&0x81 | TypeFU<<1
	indicator1 := nal[1]
	nalType := byte(HeaderType(nal[0]))

	out := make([][]byte, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		fuHeader := nalType
		if i == 0 {
			fuHeader |= fuStart
		}
		if i == n-1 {
			fuHeader |= fuEnd
		}
		p := make([]byte, FUHeaderSize+size)
		p[0] = indicator0
		p[1] = indicator1
		p[2] = fuHeader
		copy(p[FUHeaderSize:], body[off:off+size])
		off += size
		out = append(out, p)
	}
	return out
}

// FragmentAccessUnit splits an Annex-B access unit and fragments each of
// its NAL units in order.
func (f *Fragmenter) FragmentAccessUnit(au []byte) [][]byte {
	var out [][]byte
	s := NewSplitter(au)
	for {
		nal, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, f.Fragment(nal)...)
	}
}
