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
	"io"
	"os"

	"github.com/TheCacophonyProject/stereo-streamer/rawframes"
)

// fileCamera replays a file written by frame-writer, starting again
// from the first frame at the end.
type fileCamera struct {
	conf   *Config
	f      *os.File
	reader *rawframes.Reader
}

func newFileCamera(conf *Config) (Camera, error) {
	return &fileCamera{conf: conf}, nil
}

func (c *fileCamera) Open() error {
	f, err := os.Open(c.conf.File)
	if err != nil {
		return err
	}
	reader, err := rawframes.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", c.conf.File, err)
	}
	h := reader.Header()
	if h.Width != c.conf.FrameWidth() || h.Height != c.conf.Height || h.PixelFormat != c.conf.PixelFormat {
		f.Close()
		return fmt.Errorf("%s holds %dx%d %s frames, expected %dx%d %s", c.conf.File,
			h.Width, h.Height, h.PixelFormat,
			c.conf.FrameWidth(), c.conf.Height, c.conf.PixelFormat)
	}
	c.f = f
	c.reader = reader
	return nil
}

func (c *fileCamera) Capture(frame []byte) error {
	if c.reader == nil {
		return fmt.Errorf("%s is not open", c.conf.File)
	}
	_, err := c.reader.ReadFrame(frame)
	if err != io.EOF {
		return err
	}
	if err := c.rewind(); err != nil {
		return err
	}
	_, err = c.reader.ReadFrame(frame)
	if err == io.EOF {
		return fmt.Errorf("%s has no frames", c.conf.File)
	}
	return err
}

func (c *fileCamera) rewind() error {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, err := rawframes.NewReader(c.f)
	if err != nil {
		return err
	}
	c.reader = reader
	return nil
}

func (c *fileCamera) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	c.reader = nil
	return err
}
