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

// Package h265 splits H.265 Annex-B bitstreams into NAL units, fragments
// them into size bounded wire payloads and rebuilds decodable NAL units
// on the receiving side.
package h265

const (
	// NALHeaderSize is the size of an H.265 NAL unit header.
	NALHeaderSize = 2

	// FUHeaderSize is the FU indicator plus the FU header.
	FUHeaderSize = 3

	// DefaultPacketMax is the largest wire payload by default.
	DefaultPacketMax = 1300

	// MaxSingleType is the highest NAL type sent unfragmented.
	MaxSingleType = 40

	TypeAggregation = 48
	TypeFU          = 49
)

// NAL unit types of interest.
const (
	TypeBLAWLP    = 16
	TypeIDRWRADL  = 19
	TypeIDRNLP    = 20
	TypeCRA       = 21
	TypeVPS       = 32
	TypeSPS       = 33
	TypePPS       = 34
	TypeAUD       = 35
	TypeSEIPrefix = 39
	TypeSEISuffix = 40
)

const (
	fuStart = 0x80
	fuEnd   = 0x40
)

// StartCode is prefixed to every NAL unit handed to a decoder.
var StartCode = []byte{0, 0, 0, 1}

// HeaderType extracts the 6 bit NAL type from the first header byte.
func HeaderType(b0 byte) int {
	return int(b0>>1) & 0x3f
}

// Type returns the NAL type of nal, or -1 if nal is too short to carry a
// header.
func Type(nal []byte) int {
	if len(nal) < NALHeaderSize {
		return -1
	}
	return HeaderType(nal[0])
}

// IsIRAP reports whether t is a random access point picture.
func IsIRAP(t int) bool {
	return t >= TypeBLAWLP && t <= TypeCRA
}

// IsParameterSet reports whether t is a VPS, SPS or PPS.
func IsParameterSet(t int) bool {
	return t == TypeVPS || t == TypeSPS || t == TypePPS
}

// TypeName is used in log lines.
func TypeName(t int) string {
	switch {
	case t == TypeVPS:
		return "VPS"
	case t == TypeSPS:
		return "SPS"
	case t == TypePPS:
		return "PPS"
	case t == TypeAUD:
		return "AUD"
	case t == TypeSEIPrefix || t == TypeSEISuffix:
		return "SEI"
	case t == TypeFU:
		return "FU"
	case t == TypeAggregation:
		return "AP"
	case t == TypeIDRWRADL || t == TypeIDRNLP:
		return "IDR"
	case t == TypeCRA:
		return "CRA"
	case IsIRAP(t):
		return "BLA"
	case t >= 0 && t < TypeBLAWLP:
		return "slice"
	}
	return "reserved"
}
