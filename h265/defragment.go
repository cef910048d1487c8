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

var (
	ErrPayloadTooShort = errors.New("payload too short")
	ErrUnsupportedType = errors.New("unsupported NAL type")
	ErrInconsistentFU  = errors.New("fragment marked as both start and end")
	ErrMissingStart    = errors.New("fragment without a start fragment")
)

// FramingError describes a wire payload that could not be turned back
// into NAL data. The payload should be dropped.
type FramingError struct {
	Type int
	Len  int
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error (type %d, %d bytes): %v", e.Type, e.Len, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

func framingError(payload []byte, err error) error {
	t := -1
	if len(payload) > 0 {
		t = HeaderType(payload[0])
	}
	return &FramingError{Type: t, Len: len(payload), Err: err}
}

// PayloadInfo is what the headers of a wire payload say about it.
type PayloadInfo struct {
	// NALType is the type of the carried NAL unit. For fragments this is
	// the original type from the FU header.
	NALType int
	FU      bool
	Start   bool
	End     bool
}

// Describe parses the headers of a wire payload.
func Describe(payload []byte) (PayloadInfo, error) {
	if len(payload) < NALHeaderSize {
		return PayloadInfo{}, framingError(payload, ErrPayloadTooShort)
	}
	t := HeaderType(payload[0])
	switch {
	case t == TypeFU:
		if len(payload) < FUHeaderSize {
			return PayloadInfo{}, framingError(payload, ErrPayloadTooShort)
		}
		fu := payload[2]
		info := PayloadInfo{
			NALType: int(fu & 0x3f),
			FU:      true,
			Start:   fu&fuStart != 0,
			End:     fu&fuEnd != 0,
		}
		if info.Start && info.End {
			return PayloadInfo{}, framingError(payload, ErrInconsistentFU)
		}
		return info, nil
	case t <= MaxSingleType:
		return PayloadInfo{NALType: t, Start: true, End: true}, nil
	}
	return PayloadInfo{}, framingError(payload, ErrUnsupportedType)
}

// Reassemble turns one wire payload into decoder bytes. Single NAL
// payloads and start fragments come back with a start code and a rebuilt
// NAL header and isStart set. Continuation fragments return just their
// data, aliasing payload. Reassemble keeps no state.
func Reassemble(payload []byte) (isStart bool, data []byte, err error) {
	info, err := Describe(payload)
	if err != nil {
		return false, nil, err
	}
	if !info.FU {
		out := make([]byte, 0, len(StartCode)+len(payload))
		out = append(out, StartCode...)
		return true, append(out, payload...), nil
	}
	if !info.Start {
		return false, payload[FUHeaderSize:], nil
	}
	out := make([]byte, 0, len(StartCode)+NALHeaderSize+len(payload)-FUHeaderSize)
	out = append(out, StartCode...)
	out = append(out, payload[0]&0x81|byte(info.NALType)<<1, payload[1])
	return true, append(out, payload[FUHeaderSize:]...), nil
}
