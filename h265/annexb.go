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

import "bytes"

var marker = []byte{0, 0, 1}

// Splitter walks the NAL units of an Annex-B buffer. Units are returned
// without their start code and alias the buffer.
type Splitter struct {
	buf []byte
	pos int
}

// NewSplitter skips anything before the first start code.
func NewSplitter(buf []byte) *Splitter {
	s := &Splitter{buf: buf, pos: len(buf)}
	if i := bytes.Index(buf, marker); i >= 0 {
		s.pos = i + len(marker)
	}
	return s
}

// Next returns the next non-empty unit. ok is false once the buffer is
// exhausted.
func (s *Splitter) Next() (nal []byte, ok bool) {
	for s.pos < len(s.buf) {
		start := s.pos
		end := len(s.buf)
		if i := bytes.Index(s.buf[start:], marker); i >= 0 {
			end = start + i
			s.pos = end + len(marker)
			// A four byte start code owns the zero before the marker.
			if end > start && s.buf[end-1] == 0 {
				end--
			}
		} else {
			s.pos = len(s.buf)
		}
		if end > start {
			return s.buf[start:end], true
		}
	}
	return nil, false
}

// Split returns every NAL unit in buf.
func Split(buf []byte) [][]byte {
	var nals [][]byte
	s := NewSplitter(buf)
	for {
		nal, ok := s.Next()
		if !ok {
			return nals
		}
		nals = append(nals, nal)
	}
}

// Join writes nals back out as an Annex-B buffer with four byte start
// codes.
func Join(nals [][]byte) []byte {
	n := 0
	for _, nal := range nals {
		n += len(StartCode) + len(nal)
	}
	out := make([]byte, 0, n)
	for _, nal := range nals {
		out = append(out, StartCode...)
		out = append(out, nal...)
	}
	return out
}
