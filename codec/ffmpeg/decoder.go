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

// Decoder wraps an FFmpeg decoder context. Each Decode call should carry
// a whole access unit.
type Decoder struct {
	ctx    *astiav.CodecContext
	pkt    *astiav.Packet
	frame  *astiav.Frame
	closer *astikit.Closer
}

func newDecoder(id astiav.CodecID) (dec *Decoder, err error) {
	c := astikit.NewCloser()
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	cdc := astiav.FindDecoder(id)
	if cdc == nil {
		return nil, fmt.Errorf("no decoder for %s", id)
	}
	ctx := astiav.AllocCodecContext(cdc)
	if ctx == nil {
		return nil, errors.New("decoder: codec context is nil")
	}
	c.Add(ctx.Free)
	ctx.SetTimeBase(timeBase)
	flags := ctx.Flags()
	flags = flags.Add(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags(flags)

	opts := astiav.NewDictionary()
	defer opts.Free()
	if err := setOptions(opts, decoderOptions); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	if err := ctx.Open(cdc, opts); err != nil {
		return nil, fmt.Errorf("decoder: opening codec context failed: %w", err)
	}

	pkt := astiav.AllocPacket()
	c.Add(pkt.Free)
	frame := astiav.AllocFrame()
	c.Add(frame.Free)

	return &Decoder{
		ctx:    ctx,
		pkt:    pkt,
		frame:  frame,
		closer: c,
	}, nil
}

func (d *Decoder) Decode(data []byte, pts time.Duration) ([]*codec.Frame, error) {
	if err := d.pkt.FromData(data); err != nil {
		return nil, fmt.Errorf("decoder: packet from data: %w", err)
	}
	defer d.pkt.Unref()
	d.pkt.SetPts(toClock(pts))

	if err := d.ctx.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("decoder: sending packet failed: %w", err)
	}

	var out []*codec.Frame
	for {
		err := d.ctx.ReceiveFrame(d.frame)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decoder: receiving frame failed: %w", err)
		}
		f, err := d.toFrame()
		d.frame.Unref()
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func (d *Decoder) toFrame() (*codec.Frame, error) {
	var pixelFormat string
	switch d.frame.PixelFormat() {
	case astiav.PixelFormatYuv420P, astiav.PixelFormatYuvj420P:
		pixelFormat = headers.PixelFormatYUV420P
	case astiav.PixelFormatGray8:
		pixelFormat = headers.PixelFormatGray8
	default:
		return nil, fmt.Errorf("decoder: unsupported output format %s", d.frame.PixelFormat())
	}
	b, err := d.frame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("decoder: reading frame: %w", err)
	}
	return &codec.Frame{
		Width:       d.frame.Width(),
		Height:      d.frame.Height(),
		PixelFormat: pixelFormat,
		Data:        b,
		PTS:         fromClock(d.frame.Pts()),
		Keyframe:    d.frame.PictureType() == astiav.PictureTypeI,
	}, nil
}

func (d *Decoder) Close() error {
	return d.closer.Close()
}
