// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2020, The Cacophony Project
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

// Package headers describes the camera feeding a frame region. The
// description is stored as YAML in the region header so consumers can
// size their encoders without talking to the camera process.
package headers

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v1"
)

const (
	XResolution = "ResX"
	YResolution = "ResY"
	FrameSize   = "FrameSize"
	FPS         = "FPS"
	PixelFormat = "PixelFormat"
	Layout      = "Layout"
	Brand       = "Brand"
	Model       = "Model"
)

// Pixel formats a camera can publish.
const (
	PixelFormatYUV420P = "yuv420p"
	PixelFormatRGB24   = "rgb24"
	PixelFormatGray8   = "gray8"
)

// LayoutSideBySide means the left and right views share each frame,
// left view first.
const LayoutSideBySide = "side-by-side"

// HeaderInfo contains the camera description fields stored with a
// frame region.
type HeaderInfo struct {
	resX        int
	resY        int
	fps         int
	framesize   int
	pixelFormat string
	layout      string
	brand       string
	model       string
}

// New builds a description of a camera publishing resX by resY frames.
// The frame size is derived from the pixel format.
func New(resX, resY, fps int, pixelFormat, brand, model string) *HeaderInfo {
	return &HeaderInfo{
		resX:        resX,
		resY:        resY,
		fps:         fps,
		framesize:   FrameBytes(pixelFormat, resX, resY),
		pixelFormat: pixelFormat,
		layout:      LayoutSideBySide,
		brand:       brand,
		model:       model,
	}
}

// FrameBytes returns the size of one frame, or 0 for an unknown format.
func FrameBytes(pixelFormat string, width, height int) int {
	switch pixelFormat {
	case PixelFormatYUV420P:
		return width*height + 2*((width/2)*(height/2))
	case PixelFormatRGB24:
		return width * height * 3
	case PixelFormatGray8:
		return width * height
	}
	return 0
}

// ResX is the width of the composed frame.
func (h *HeaderInfo) ResX() int {
	return h.resX
}

// ResY is the height of the composed frame.
func (h *HeaderInfo) ResY() int {
	return h.resY
}

func (h *HeaderInfo) FPS() int {
	return h.fps
}

// FrameSize returns the number of bytes in each frame.
func (h *HeaderInfo) FrameSize() int {
	return h.framesize
}

func (h *HeaderInfo) PixelFormat() string {
	return h.pixelFormat
}

func (h *HeaderInfo) Layout() string {
	return h.layout
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

// Marshal returns the YAML form terminated by a blank line, as read by
// ReadHeaderInfo.
func (h *HeaderInfo) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(map[string]interface{}{
		XResolution: h.resX,
		YResolution: h.resY,
		FPS:         h.fps,
		FrameSize:   h.framesize,
		PixelFormat: h.pixelFormat,
		Layout:      h.layout,
		Brand:       h.brand,
		Model:       h.model,
	})
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Parse reads a description from a buffer such as region metadata.
func Parse(buf []byte) (*HeaderInfo, error) {
	return ReadHeaderInfo(bufio.NewReader(bytes.NewReader(buf)))
}

func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err == io.EOF && buf.Len()+len(line) > 0 {
			buf.WriteString(line)
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.Trim(line, " ") == "\n" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	info := &HeaderInfo{
		resX:        toInt(h[XResolution]),
		resY:        toInt(h[YResolution]),
		fps:         toInt(h[FPS]),
		framesize:   toInt(h[FrameSize]),
		pixelFormat: toStr(h[PixelFormat]),
		layout:      toStr(h[Layout]),
		brand:       toStr(h[Brand]),
		model:       toStr(h[Model]),
	}
	if info.resX <= 0 || info.resY <= 0 || info.framesize <= 0 {
		return nil, errors.New("camera description missing resolution or frame size")
	}
	return info, nil
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}
