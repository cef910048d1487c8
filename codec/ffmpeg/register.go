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

// Package ffmpeg provides HEVC and H.264 encoders and decoders backed by
// the FFmpeg libraries.
package ffmpeg

import (
	"github.com/asticode/go-astiav"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
)

var encoders = map[string]encoderSpec{
	codec.HEVC: {name: "libx265", id: astiav.CodecIDHevc, options: hevcOptions},
	codec.H264: {name: "libx264", id: astiav.CodecIDH264, options: h264Options},
}

var decoders = map[string]astiav.CodecID{
	codec.HEVC: astiav.CodecIDHevc,
	codec.H264: astiav.CodecIDH264,
}

// Register adds the FFmpeg codecs to r.
func Register(r *codec.Registry) error {
	for id, spec := range encoders {
		spec := spec
		err := r.RegisterEncoder(id, func(conf codec.EncoderConfig) (codec.Encoder, error) {
			enc, err := newEncoder(spec, conf)
			if err != nil {
				return nil, err
			}
			return enc, nil
		})
		if err != nil {
			return err
		}
	}
	for id, codecID := range decoders {
		codecID := codecID
		err := r.RegisterDecoder(id, func() (codec.Decoder, error) {
			dec, err := newDecoder(codecID)
			if err != nil {
				return nil, err
			}
			return dec, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SetLogLevel quietens FFmpeg's own logging.
func SetLogLevel(verbose bool) {
	if verbose {
		astiav.SetLogLevel(astiav.LogLevelInfo)
	} else {
		astiav.SetLogLevel(astiav.LogLevelError)
	}
}
