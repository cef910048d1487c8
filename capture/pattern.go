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
	"math/rand"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

const (
	barWidth  = 16
	disparity = 8
	barSpeed  = 4
)

// patternCamera draws vertical bars that move a little every frame. The
// right view is shifted by a fixed disparity.
type patternCamera struct {
	conf  *Config
	count int
	left  []byte
	right []byte
}

func newPatternCamera(conf *Config) (Camera, error) {
	return &patternCamera{conf: conf}, nil
}

func (c *patternCamera) Open() error {
	size := headers.FrameBytes(c.conf.PixelFormat, c.conf.Width, c.conf.Height)
	c.left = make([]byte, size)
	c.right = make([]byte, size)
	c.count = 0
	return nil
}

func (c *patternCamera) Capture(frame []byte) error {
	offset := c.count * barSpeed
	drawBars(c.left, c.conf, offset)
	drawBars(c.right, c.conf, offset+disparity)
	c.count++
	return ComposeSideBySide(frame, c.left, c.right, c.conf.PixelFormat, c.conf.Width, c.conf.Height)
}

func (c *patternCamera) Close() error {
	return nil
}

func barLevel(x int) byte {
	return byte(((x / barWidth) % 8) * 32)
}

func drawBars(view []byte, conf *Config, offset int) {
	w, h := conf.Width, conf.Height
	switch conf.PixelFormat {
	case headers.PixelFormatRGB24:
		for y := 0; y < h; y++ {
			row := view[y*w*3 : (y+1)*w*3]
			for x := 0; x < w; x++ {
				v := barLevel(x + offset)
				row[3*x], row[3*x+1], row[3*x+2] = v, v, 255-v
			}
		}
	default:
		for y := 0; y < h; y++ {
			row := view[y*w : (y+1)*w]
			for x := range row {
				row[x] = barLevel(x + offset)
			}
		}
		// Neutral chroma.
		for i := w * h; i < len(view); i++ {
			view[i] = 128
		}
	}
}

// randomCamera fills every frame with noise, which is the worst case for
// the encoder.
type randomCamera struct {
	rnd *rand.Rand
}

func newRandomCamera(conf *Config) (Camera, error) {
	return &randomCamera{rnd: rand.New(rand.NewSource(int64(conf.Width*conf.Height + conf.FPS)))}, nil
}

func (c *randomCamera) Open() error {
	return nil
}

func (c *randomCamera) Capture(frame []byte) error {
	_, err := c.rnd.Read(frame)
	return err
}

func (c *randomCamera) Close() error {
	return nil
}
