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

// The region starts with one page of header followed by the slots.
//
//	0    magic          uint32
//	4    version        uint32
//	8    slot size      uint64
//	16   slot count     uint32
//	20   reader count   uint32
//	24   cursor         uint32 (atomic)
//	28   stream request uint32 (atomic, futex)
//	32   publish seq    uint64 (atomic)
//	40   heartbeat      uint64 (atomic, unix nanos)
//	48   metadata len   uint32
//	64   reader signals MaxReaders x uint32 (atomic, futex)
//	128  slot seqs      MaxSlots x uint64 (atomic)
//	256  metadata       up to headerSize-256 bytes
const (
	regionMagic   uint32 = 0x4d485353 // "SSHM"
	layoutVersion uint32 = 1

	headerSize = 4096

	offMagic         = 0
	offVersion       = 4
	offSlotSize      = 8
	offSlotCount     = 16
	offReaders       = 20
	offCursor        = 24
	offStreamRequest = 28
	offSeq           = 32
	offHeartbeat     = 40
	offMetadataLen   = 48
	offSignals       = 64
	offSlotSeqs      = 128
	offMetadata      = 256

	// MaxReaders is the number of independent frame-ready signals a
	// region can carry.
	MaxReaders = 16

	// MaxSlots bounds the slot count of a region.
	MaxSlots = 8

	// MaxMetadata is the largest metadata blob stored in the header.
	MaxMetadata = headerSize - offMetadata

	// DefaultSlots is the double buffer.
	DefaultSlots = 2
)

func regionSize(slotSize, slotCount int) int {
	return headerSize + slotSize*slotCount
}

func slotOffset(slotSize, slot int) int {
	return headerSize + slot*slotSize
}
