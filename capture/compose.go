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

package capture

import (
	"fmt"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

// ComposeSideBySide lays the left and right views, each width x height,
// into dst as a single 2*width x height frame with the left view first.
// Planar formats are composed plane by plane.
func ComposeSideBySide(dst, left, right []byte, pixelFormat string, width, height int) error {
	eye := headers.FrameBytes(pixelFormat, width, height)
	if eye == 0 {
		return fmt.Errorf("unsupported pixel format %q", pixelFormat)
	}
	if len(left) != eye || len(right) != eye {
		return fmt.Errorf("views must be %d bytes, got %d and %d", eye, len(left), len(right))
	}
	if len(dst) != 2*eye {
		return fmt.Errorf("frame must be %d bytes, got %d", 2*eye, len(dst))
	}

	switch pixelFormat {
	case headers.PixelFormatYUV420P:
		luma := width * height
		chroma := (width / 2) * (height / 2)
		composePlane(dst[:2*luma], left[:luma], right[:luma], width, height)
		off := luma
		for i := 0; i < 2; i++ {
			composePlane(
				dst[2*off:2*(off+chroma)],
				left[off:off+chroma],
				right[off:off+chroma],
				width/2, height/2)
			off += chroma
		}
	case headers.PixelFormatRGB24:
		composePlane(dst, left, right, width*3, height)
	default:
		composePlane(dst, left, right, width, height)
	}
	return nil
}

func composePlane(dst, left, right []byte, rowBytes, rows int) {
	for y := 0; y < rows; y++ {
		src := y * rowBytes
		out := 2 * src
		copy(dst[out:out+rowBytes], left[src:src+rowBytes])
		copy(dst[out+rowBytes:out+2*rowBytes], right[src:src+rowBytes])
	}
}
