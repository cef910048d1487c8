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

package stream

import (
	"fmt"
	"image"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

// SnapshotImage turns a raw frame into an image. Planar YUV frames give
// their luma plane only.
func SnapshotImage(data []byte, h *headers.HeaderInfo) (image.Image, error) {
	w, ht := h.ResX(), h.ResY()
	if len(data) != h.FrameSize() {
		return nil, fmt.Errorf("frame is %d bytes, expected %d", len(data), h.FrameSize())
	}
	rect := image.Rect(0, 0, w, ht)
	switch h.PixelFormat() {
	case headers.PixelFormatYUV420P, headers.PixelFormatGray8:
		img := image.NewGray(rect)
		copy(img.Pix, data[:w*ht])
		return img, nil
	case headers.PixelFormatRGB24:
		img := image.NewRGBA(rect)
		for i := 0; i < w*ht; i++ {
			img.Pix[4*i] = data[3*i]
			img.Pix[4*i+1] = data[3*i+1]
			img.Pix[4*i+2] = data[3*i+2]
			img.Pix[4*i+3] = 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported pixel format %q", h.PixelFormat())
}

// Snapshot returns the most recent frame as an image.
func (p *Pipeline) Snapshot() (image.Image, error) {
	data, h, err := p.Latest()
	if err != nil {
		return nil, err
	}
	return SnapshotImage(data, h)
}
