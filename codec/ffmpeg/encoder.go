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

package ffmpeg

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

// Timestamps use the 90 kHz RTP video clock.
const clockRate = 90000

var timeBase = astiav.NewRational(1, clockRate)

func toClock(d time.Duration) int64 {
	return int64(d) * clockRate / int64(time.Second)
}

func fromClock(pts int64) time.Duration {
	return time.Duration(pts * int64(time.Second) / clockRate)
}

type encoderSpec struct {
	name    string
	id      astiav.CodecID
	options func(codec.EncoderConfig) []option
}

// Encoder wraps an FFmpeg encoder context.
type Encoder struct {
	conf   codec.EncoderConfig
	ctx    *astiav.CodecContext
	frame  *astiav.Frame
	pkt    *astiav.Packet
	closer *astikit.Closer
}

func newEncoder(spec encoderSpec, conf codec.EncoderConfig) (enc *Encoder, err error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.PixelFormat != headers.PixelFormatYUV420P {
		return nil, fmt.Errorf("%s encoder needs %s input, not %s", spec.name, headers.PixelFormatYUV420P, conf.PixelFormat)
	}

	c := astikit.NewCloser()
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	cdc := astiav.FindEncoderByName(spec.name)
	if cdc == nil {
		if cdc = astiav.FindEncoder(spec.id); cdc == nil {
			return nil, fmt.Errorf("no %s encoder available", spec.name)
		}
	}

	ctx := astiav.AllocCodecContext(cdc)
	if ctx == nil {
		return nil, errors.New("encoder: codec context is nil")
	}
	c.Add(ctx.Free)

	ctx.SetWidth(conf.Width)
	ctx.SetHeight(conf.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(timeBase)
	ctx.SetFramerate(astiav.NewRational(conf.FPS, 1))
	ctx.SetGopSize(conf.KeyframeInterval)
	ctx.SetMaxBFrames(0)
	if conf.Threads > 0 {
		ctx.SetThreadCount(conf.Threads)
	}
	flags := ctx.Flags()
	flags = flags.Add(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags(flags)

	opts := astiav.NewDictionary()
	defer opts.Free()
	if err := setOptions(opts, spec.options(conf)); err != nil {
		return nil, fmt.Errorf("encoder: %s: %w", spec.name, err)
	}

	if err := ctx.Open(cdc, opts); err != nil {
		return nil, fmt.Errorf("encoder: opening %s failed: %w", spec.name, err)
	}

	frame := astiav.AllocFrame()
	c.Add(frame.Free)
	frame.SetWidth(conf.Width)
	frame.SetHeight(conf.Height)
	frame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := frame.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("encoder: allocating frame: %w", err)
	}

	pkt := astiav.AllocPacket()
	c.Add(pkt.Free)

	return &Encoder{
		conf:   conf,
		ctx:    ctx,
		frame:  frame,
		pkt:    pkt,
		closer: c,
	}, nil
}

func (e *Encoder) Encode(f *codec.Frame) ([]codec.AccessUnit, error) {
	if f.Width != e.conf.Width || f.Height != e.conf.Height || f.PixelFormat != e.conf.PixelFormat {
		return nil, fmt.Errorf("encoder: frame is %dx%d %s, encoder is %dx%d %s",
			f.Width, f.Height, f.PixelFormat, e.conf.Width, e.conf.Height, e.conf.PixelFormat)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if err := e.frame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("encoder: frame not writable: %w", err)
	}
	if err := e.frame.Data().SetBytes(f.Data, 1); err != nil {
		return nil, fmt.Errorf("encoder: filling frame: %w", err)
	}
	e.frame.SetPts(toClock(f.PTS))
	if f.Keyframe {
		e.frame.SetPictureType(astiav.PictureTypeI)
	} else {
		e.frame.SetPictureType(astiav.PictureTypeNone)
	}

	if err := e.ctx.SendFrame(e.frame); err != nil {
		return nil, fmt.Errorf("encoder: sending frame failed: %w", err)
	}
	return e.receive()
}

// Flush drains delayed packets. The encoder can not be used afterwards.
func (e *Encoder) Flush() ([]codec.AccessUnit, error) {
	if err := e.ctx.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return nil, fmt.Errorf("encoder: flushing failed: %w", err)
	}
	return e.receive()
}

func (e *Encoder) receive() ([]codec.AccessUnit, error) {
	var out []codec.AccessUnit
	for {
		if err := e.ctx.ReceivePacket(e.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return out, nil
			}
			return out, fmt.Errorf("encoder: receiving packet failed: %w", err)
		}
		data := make([]byte, len(e.pkt.Data()))
		copy(data, e.pkt.Data())
		out = append(out, codec.AccessUnit{
			Data: data,
			PTS:  fromClock(e.pkt.Pts()),
			Key:  e.pkt.Flags().Has(astiav.PacketFlagKey),
		})
		e.pkt.Unref()
	}
}

func (e *Encoder) Close() error {
	return e.closer.Close()
}
