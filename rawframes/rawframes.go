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

// Package rawframes reads and writes uncompressed frame files. A file is
// a header section followed by frame sections, each made of CPTV style
// fields. Frame data follows the fields of its section.
package rawframes

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheCacophonyProject/go-cptv"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
)

const (
	rawMagic        = "STRF"
	rawVersion byte = 0x01

	headerSection = 'H'
	frameSection  = 'F'

	// PixelFormat is the header field holding the pixel format name.
	PixelFormat byte = 'p'
)

var ErrBadMagic = errors.New("not a raw frame file")

// Header describes the frames in a file.
type Header struct {
	Timestamp   time.Time
	Width       int
	Height      int
	FPS         int
	PixelFormat string
	Brand       string
	Model       string
	DeviceName  string
	DeviceID    int
}

// HeaderFromInfo builds a file header from a camera description.
func HeaderFromInfo(info *headers.HeaderInfo, t time.Time) *Header {
	return &Header{
		Timestamp:   t,
		Width:       info.ResX(),
		Height:      info.ResY(),
		FPS:         info.FPS(),
		PixelFormat: info.PixelFormat(),
		Brand:       info.Brand(),
		Model:       info.Model(),
	}
}

// FrameSize is the number of bytes in each frame.
func (h *Header) FrameSize() int {
	return headers.FrameBytes(h.PixelFormat, h.Width, h.Height)
}

// NewWriter returns a Writer ready to generate a raw frame file.
func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{
		w: w,
	}
}

// Writer handles the low-level construction of raw frame sections and
// fields.
type Writer struct {
	w         io.WriteCloser
	frameSize int
}

func (b *Writer) WriteHeader(h *Header) error {
	if h.FrameSize() <= 0 {
		return fmt.Errorf("unsupported frame format %q %dx%d", h.PixelFormat, h.Width, h.Height)
	}
	b.frameSize = h.FrameSize()

	fields := cptv.NewFieldWriter()
	fields.Timestamp(cptv.Timestamp, h.Timestamp)
	fields.Uint32(cptv.XResolution, uint32(h.Width))
	fields.Uint32(cptv.YResolution, uint32(h.Height))
	fields.Uint8(cptv.FPS, uint8(h.FPS))
	fields.Uint8(cptv.Compression, 0)
	fields.Uint32(cptv.DeviceID, uint32(h.DeviceID))
	for code, s := range map[byte]string{
		PixelFormat:     h.PixelFormat,
		cptv.Brand:      h.Brand,
		cptv.Model:      h.Model,
		cptv.DeviceName: h.DeviceName,
	} {
		if err := fields.String(code, s); err != nil {
			return err
		}
	}

	fieldData, numFields := fields.Bytes()
	_, err := b.w.Write(append(
		[]byte(rawMagic),
		rawVersion,
		headerSection,
		byte(numFields),
	))
	if err != nil {
		return err
	}
	_, err = b.w.Write(fieldData)
	return err
}

// WriteFrame appends one frame captured at t.
func (b *Writer) WriteFrame(frame []byte, t time.Time) error {
	if b.frameSize == 0 {
		return errors.New("header not written")
	}
	if len(frame) != b.frameSize {
		return fmt.Errorf("frame is %d bytes, expected %d", len(frame), b.frameSize)
	}

	fields := cptv.NewFieldWriter()
	fields.Uint32(cptv.FrameSize, uint32(len(frame)))
	fields.Timestamp(cptv.Timestamp, t)
	fieldData, numFields := fields.Bytes()
	if _, err := b.w.Write([]byte{frameSection, byte(numFields)}); err != nil {
		return err
	}
	if _, err := b.w.Write(fieldData); err != nil {
		return err
	}
	_, err := b.w.Write(frame)
	return err
}

func (b *Writer) Close() error {
	return b.w.Close()
}

// Reader reads frames back from a raw frame file.
type Reader struct {
	r      *bufio.Reader
	header *Header
}

// NewReader reads the file header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	start := make([]byte, len(rawMagic)+2)
	if _, err := io.ReadFull(br, start); err != nil {
		return nil, err
	}
	if string(start[:len(rawMagic)]) != rawMagic {
		return nil, ErrBadMagic
	}
	if v := start[len(rawMagic)]; v != rawVersion {
		return nil, fmt.Errorf("unsupported raw frame version %d", v)
	}
	if start[len(rawMagic)+1] != headerSection {
		return nil, errors.New("missing header section")
	}

	fields, err := cptv.ReadFields(br)
	if err != nil {
		return nil, err
	}
	h, err := parseHeader(fields)
	if err != nil {
		return nil, err
	}
	return &Reader{r: br, header: h}, nil
}

func parseHeader(fields cptv.Fields) (*Header, error) {
	h := new(Header)
	var err error
	if h.Timestamp, err = fields.Timestamp(cptv.Timestamp); err != nil {
		return nil, err
	}
	x, err := fields.Uint32(cptv.XResolution)
	if err != nil {
		return nil, err
	}
	y, err := fields.Uint32(cptv.YResolution)
	if err != nil {
		return nil, err
	}
	fps, err := fields.Uint8(cptv.FPS)
	if err != nil {
		return nil, err
	}
	h.Width, h.Height, h.FPS = int(x), int(y), int(fps)
	if h.PixelFormat, err = fields.String(PixelFormat); err != nil {
		return nil, err
	}
	// Descriptive fields are optional.
	h.Brand, _ = fields.String(cptv.Brand)
	h.Model, _ = fields.String(cptv.Model)
	h.DeviceName, _ = fields.String(cptv.DeviceName)
	if id, err := fields.Uint32(cptv.DeviceID); err == nil {
		h.DeviceID = int(id)
	}

	if h.FrameSize() <= 0 {
		return nil, fmt.Errorf("unsupported frame format %q %dx%d", h.PixelFormat, h.Width, h.Height)
	}
	return h, nil
}

func (r *Reader) Header() *Header {
	return r.header
}

// ReadFrame reads the next frame into out, which must be FrameSize
// bytes. io.EOF is returned at the end of the file.
func (r *Reader) ReadFrame(out []byte) (time.Time, error) {
	section, err := r.r.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	if section != frameSection {
		return time.Time{}, fmt.Errorf("unexpected section %q", section)
	}
	fields, err := cptv.ReadFields(r.r)
	if err != nil {
		return time.Time{}, unexpectedEOF(err)
	}
	size, err := fields.Uint32(cptv.FrameSize)
	if err != nil {
		return time.Time{}, err
	}
	if int(size) != len(out) {
		return time.Time{}, fmt.Errorf("frame is %d bytes, expected %d", size, len(out))
	}
	t, _ := fields.Timestamp(cptv.Timestamp)
	if _, err := io.ReadFull(r.r, out); err != nil {
		return time.Time{}, unexpectedEOF(err)
	}
	return t, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
