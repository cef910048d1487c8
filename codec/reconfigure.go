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

package codec

import (
	"log"
	"sync/atomic"
)

// ReconfiguringEncoder creates its encoder lazily from the first frame
// and replaces it whenever the frame geometry changes. It also carries
// keyframe requests, which may arrive from any goroutine.
type ReconfiguringEncoder struct {
	factory   EncoderFactory
	base      EncoderConfig
	enc       Encoder
	current   EncoderConfig
	keyframe  int32
	reconfigs int
}

func NewReconfiguringEncoder(factory EncoderFactory, base EncoderConfig) *ReconfiguringEncoder {
	return &ReconfiguringEncoder{
		factory: factory,
		base:    base,
	}
}

// RequestKeyframe makes the next encoded frame a keyframe.
func (e *ReconfiguringEncoder) RequestKeyframe() {
	atomic.StoreInt32(&e.keyframe, 1)
}

// Encode encodes f, first flushing and replacing the encoder if f no
// longer matches it. Access units flushed from the old encoder come
// first in the result.
func (e *ReconfiguringEncoder) Encode(f *Frame) ([]AccessUnit, error) {
	var out []AccessUnit
	if e.enc == nil || e.current.Width != f.Width || e.current.Height != f.Height || e.current.PixelFormat != f.PixelFormat {
		if e.enc != nil {
			flushed, err := e.closeEncoder()
			if err != nil {
				log.Printf("flushing encoder: %v", err)
			}
			out = append(out, flushed...)
		}
		conf := e.base
		conf.Width = f.Width
		conf.Height = f.Height
		conf.PixelFormat = f.PixelFormat
		enc, err := e.factory(conf)
		if err != nil {
			return out, err
		}
		e.enc = enc
		e.current = conf
		e.reconfigs++
		log.Printf("encoder configured for %dx%d %s", conf.Width, conf.Height, conf.PixelFormat)
	}

	if atomic.SwapInt32(&e.keyframe, 0) == 1 {
		f.Keyframe = true
	}
	aus, err := e.enc.Encode(f)
	return append(out, aus...), err
}

// Reconfigurations counts how many encoders have been created.
func (e *ReconfiguringEncoder) Reconfigurations() int {
	return e.reconfigs
}

func (e *ReconfiguringEncoder) Flush() ([]AccessUnit, error) {
	if e.enc == nil {
		return nil, nil
	}
	return e.enc.Flush()
}

func (e *ReconfiguringEncoder) Close() error {
	if e.enc == nil {
		return nil
	}
	_, err := e.closeEncoder()
	return err
}

func (e *ReconfiguringEncoder) closeEncoder() ([]AccessUnit, error) {
	flushed, err := e.enc.Flush()
	if cerr := e.enc.Close(); err == nil {
		err = cerr
	}
	e.enc = nil
	return flushed, err
}
