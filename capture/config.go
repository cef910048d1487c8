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
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/window"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

// Config describes the camera. Width and Height are per view; the
// published frame is twice as wide.
type Config struct {
	Variant        string `yaml:"variant"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	FPS            int    `yaml:"fps"`
	PixelFormat    string `yaml:"pixel-format"`
	PowerPin       string `yaml:"power-pin"`
	WindowStart    string `yaml:"window-start"`
	WindowEnd      string `yaml:"window-end"`
	File           string `yaml:"file"`
	Brand          string `yaml:"brand"`
	Model          string `yaml:"model"`
	FPSLogInterval int    `yaml:"fps-log-interval"`
}

func DefaultConfig() Config {
	return Config{
		Variant:        "pattern",
		Width:          1280,
		Height:         720,
		FPS:            30,
		PixelFormat:    headers.PixelFormatYUV420P,
		Brand:          "cacophony",
		Model:          "simulated",
		FPSLogInterval: 600,
	}
}

func (c *Config) Validate() error {
	if _, ok := variants[c.Variant]; !ok {
		return fmt.Errorf("unknown camera variant %q (known: %v)", c.Variant, Variants())
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("width and height must be positive")
	}
	if c.FPS <= 0 || c.FPS > 255 {
		return errors.New("fps must be between 1 and 255")
	}
	if headers.FrameBytes(c.PixelFormat, c.Width, c.Height) == 0 {
		return fmt.Errorf("unsupported pixel-format %q", c.PixelFormat)
	}
	if c.PixelFormat == headers.PixelFormatYUV420P && (c.Width%2 != 0 || c.Height%2 != 0) {
		return errors.New("yuv420p needs an even width and height")
	}
	if c.Variant == "file" && c.File == "" {
		return errors.New("file variant needs a file")
	}
	if c.WindowStart != "" && c.WindowEnd == "" {
		return errors.New("window-start is set but window-end isn't")
	}
	if c.WindowEnd != "" && c.WindowStart == "" {
		return errors.New("window-end is set but window-start isn't")
	}
	if c.FPSLogInterval < 0 {
		return errors.New("fps-log-interval can't be negative")
	}
	return nil
}

// FrameWidth is the width of the side by side frame.
func (c *Config) FrameWidth() int {
	return 2 * c.Width
}

// FrameSize is the number of bytes in a side by side frame.
func (c *Config) FrameSize() int {
	return headers.FrameBytes(c.PixelFormat, c.FrameWidth(), c.Height)
}

// Header describes the published frames.
func (c *Config) Header() *headers.HeaderInfo {
	return headers.New(c.FrameWidth(), c.Height, c.FPS, c.PixelFormat, c.Brand, c.Model)
}

// Window returns the capture window, or nil when capture should run at
// all times. Start and end may be relative to sunrise and sunset so the
// device location is needed.
func (c *Config) Window(latitude, longitude float64) (*window.Window, error) {
	if c.WindowStart == "" && c.WindowEnd == "" {
		return nil, nil
	}
	return window.New(c.WindowStart, c.WindowEnd, latitude, longitude)
}
