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
	"github.com/pion/rtp"
)

var (
	_ rtp.Payloader    = (*Payloader)(nil)
	_ rtp.Depacketizer = (*Depacketizer)(nil)
)

// Payloader lets an rtp.Packetizer carry H.265 access units.
type Payloader struct {
	frag *Fragmenter
}

// Payload splits an Annex-B access unit into payloads of at most mtu
// bytes. An mtu too small to hold a fragment yields nothing.
func (p *Payloader) Payload(mtu uint16, au []byte) [][]byte {
	if p.frag == nil || p.frag.MaxPayload() != int(mtu) {
		frag, err := NewFragmenter(int(mtu))
		if err != nil {
			return nil
		}
		p.frag = frag
	}
	return p.frag.FragmentAccessUnit(au)
}

// Depacketizer rebuilds NAL units from RTP payloads of a single stream.
type Depacketizer struct {
	Assembler
}

// Unmarshal returns a complete NAL unit with start code, or nil while a
// fragmented unit is still being collected.
func (d *Depacketizer) Unmarshal(payload []byte) ([]byte, error) {
	return d.Push(payload)
}

// IsPartitionHead reports whether payload starts a NAL unit.
func (d *Depacketizer) IsPartitionHead(payload []byte) bool {
	info, err := Describe(payload)
	return err == nil && info.Start
}

// IsPartitionTail uses the RTP marker, which is set on the last packet
// of an access unit.
func (d *Depacketizer) IsPartitionTail(marker bool, payload []byte) bool {
	return marker
}
