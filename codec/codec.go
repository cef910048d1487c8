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

// Package codec defines how the streamer talks to video encoders and
// decoders. Implementations register themselves in a Registry at
// startup; see package codec/ffmpeg.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

// Codec identifiers.
const (
	HEVC = "hevc"
	H264 = "h264"
)

// Frame is one raw planar picture.
type Frame struct {
	Width       int
	Height      int
	PixelFormat string
	Data        []byte
	PTS         time.Duration

	// Keyframe forces the encoder to emit a random access point.
	Keyframe bool
}

// Validate checks Data holds exactly one picture.
func (f *Frame) Validate() error {
	want := headers.FrameBytes(f.PixelFormat, f.Width, f.Height)
	if want == 0 {
		return fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}
	if len(f.Data) != want {
		return fmt.Errorf("frame is %d bytes, %dx%d %s needs %d", len(f.Data), f.Width, f.Height, f.PixelFormat, want)
	}
	return nil
}

// AccessUnit is the Annex-B encoded form of one picture.
type AccessUnit struct {
	Data []byte
	PTS  time.Duration
	Key  bool
}

// Encoder turns frames into access units. An encoder is bound to the
// dimensions it was created with.
type Encoder interface {
	Encode(f *Frame) ([]AccessUnit, error)
	Flush() ([]AccessUnit, error)
	Close() error
}

// Decoder turns Annex-B NAL units into frames. A single NAL may yield
// no frame until the rest of its picture arrives.
type Decoder interface {
	Decode(nal []byte, pts time.Duration) ([]*Frame, error)
	Close() error
}

// EncoderConfig describes the stream an encoder is created for.
type EncoderConfig struct {
	Width            int
	Height           int
	FPS              int
	PixelFormat      string
	KeyframeInterval int
	Preset           string
	Tune             string
	CRF              int
	Threads          int
	Lossless         bool
}

func (conf EncoderConfig) Validate() error {
	if conf.Width <= 0 || conf.Height <= 0 {
		return fmt.Errorf("invalid encoder size %dx%d", conf.Width, conf.Height)
	}
	if conf.Width%2 != 0 || conf.Height%2 != 0 {
		return fmt.Errorf("encoder size %dx%d must be even", conf.Width, conf.Height)
	}
	if conf.FPS <= 0 {
		return errors.New("encoder fps must be positive")
	}
	if headers.FrameBytes(conf.PixelFormat, conf.Width, conf.Height) == 0 {
		return fmt.Errorf("unsupported pixel format %q", conf.PixelFormat)
	}
	return nil
}

type EncoderFactory func(conf EncoderConfig) (Encoder, error)

type DecoderFactory func() (Decoder, error)
