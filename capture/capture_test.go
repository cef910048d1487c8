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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/rawframes"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
)

func smallConfig(pixelFormat string) *Config {
	conf := DefaultConfig()
	conf.Width = 4
	conf.Height = 2
	conf.FPS = 200
	conf.PixelFormat = pixelFormat
	conf.FPSLogInterval = 0
	return &conf
}

func TestComposeYUV(t *testing.T) {
	// 4x2 views: 8 luma bytes, 2 bytes per chroma plane.
	left := []byte{
		1, 1, 1, 1,
		2, 2, 2, 2,
		10, 10,
		20, 20,
	}
	right := []byte{
		3, 3, 3, 3,
		4, 4, 4, 4,
		11, 11,
		21, 21,
	}
	dst := make([]byte, 2*len(left))
	require.NoError(t, ComposeSideBySide(dst, left, right, headers.PixelFormatYUV420P, 4, 2))
	assert.Equal(t, []byte{
		1, 1, 1, 1, 3, 3, 3, 3,
		2, 2, 2, 2, 4, 4, 4, 4,
		10, 10, 11, 11,
		20, 20, 21, 21,
	}, dst)
}

func TestComposeRGB(t *testing.T) {
	left := []byte{1, 2, 3, 4, 5, 6}
	right := []byte{7, 8, 9, 10, 11, 12}
	dst := make([]byte, 12)
	require.NoError(t, ComposeSideBySide(dst, left, right, headers.PixelFormatRGB24, 1, 2))
	assert.Equal(t, []byte{1, 2, 3, 7, 8, 9, 4, 5, 6, 10, 11, 12}, dst)
}

func TestComposeGray(t *testing.T) {
	dst := make([]byte, 4)
	require.NoError(t, ComposeSideBySide(dst, []byte{1, 2}, []byte{3, 4}, headers.PixelFormatGray8, 1, 2))
	assert.Equal(t, []byte{1, 3, 2, 4}, dst)
}

func TestComposeBadSizes(t *testing.T) {
	assert.Error(t, ComposeSideBySide(make([]byte, 4), []byte{1}, []byte{3, 4}, headers.PixelFormatGray8, 1, 2))
	assert.Error(t, ComposeSideBySide(make([]byte, 5), []byte{1, 2}, []byte{3, 4}, headers.PixelFormatGray8, 1, 2))
	assert.Error(t, ComposeSideBySide(make([]byte, 4), []byte{1, 2}, []byte{3, 4}, "nv12", 1, 2))
}

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())
	assert.Equal(t, 2560, conf.FrameWidth())
	assert.Equal(t, 2560*720*3/2, conf.FrameSize())

	cases := map[string]func(c *Config){
		"variant":      func(c *Config) { c.Variant = "zed" },
		"width":        func(c *Config) { c.Width = 0 },
		"odd":          func(c *Config) { c.Height = 719 },
		"fps":          func(c *Config) { c.FPS = 0 },
		"format":       func(c *Config) { c.PixelFormat = "nv12" },
		"file":         func(c *Config) { c.Variant = "file" },
		"window start": func(c *Config) { c.WindowStart = "09:10" },
		"window end":   func(c *Config) { c.WindowEnd = "09:10" },
	}
	for name, change := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			change(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNoWindow(t *testing.T) {
	conf := DefaultConfig()
	w, err := conf.Window(0, 0)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{"file", "pattern", "random"}, Variants())
	conf := DefaultConfig()
	conf.Variant = "nope"
	_, _, err := NewCamera(&conf)
	assert.Error(t, err)
}

func TestPatternViewsDiffer(t *testing.T) {
	conf := smallConfig(headers.PixelFormatGray8)
	conf.Width = 64
	camera, v, err := NewCamera(conf)
	require.NoError(t, err)
	assert.True(t, v.Paced)
	require.NoError(t, camera.Open())
	defer camera.Close()

	first := make([]byte, conf.FrameSize())
	require.NoError(t, camera.Capture(first))
	// Left and right halves of the first row.
	assert.NotEqual(t, first[:64], first[64:128])

	second := make([]byte, conf.FrameSize())
	require.NoError(t, camera.Capture(second))
	assert.NotEqual(t, first, second)
}

func TestPatternNeutralChroma(t *testing.T) {
	conf := smallConfig(headers.PixelFormatYUV420P)
	camera, _, err := NewCamera(conf)
	require.NoError(t, err)
	require.NoError(t, camera.Open())

	frame := make([]byte, conf.FrameSize())
	require.NoError(t, camera.Capture(frame))
	luma := conf.FrameWidth() * conf.Height
	assert.Equal(t, bytes.Repeat([]byte{128}, len(frame)-luma), frame[luma:])
}

func writeRawFile(t *testing.T, conf *Config, frames ...byte) string {
	name := filepath.Join(t.TempDir(), "frames.raw")
	f, err := os.Create(name)
	require.NoError(t, err)
	w := rawframes.NewWriter(f)
	require.NoError(t, w.WriteHeader(rawframes.HeaderFromInfo(conf.Header(), time.Now())))
	for _, b := range frames {
		require.NoError(t, w.WriteFrame(bytes.Repeat([]byte{b}, conf.FrameSize()), time.Now()))
	}
	require.NoError(t, w.Close())
	return name
}

func TestFileCameraLoops(t *testing.T) {
	conf := smallConfig(headers.PixelFormatYUV420P)
	conf.Variant = "file"
	conf.File = writeRawFile(t, conf, 1, 2)

	camera, _, err := NewCamera(conf)
	require.NoError(t, err)
	require.NoError(t, camera.Open())
	defer camera.Close()

	frame := make([]byte, conf.FrameSize())
	var got []byte
	for i := 0; i < 5; i++ {
		require.NoError(t, camera.Capture(frame))
		got = append(got, frame[0])
	}
	assert.Equal(t, []byte{1, 2, 1, 2, 1}, got)
}

func TestFileCameraWrongShape(t *testing.T) {
	conf := smallConfig(headers.PixelFormatYUV420P)
	conf.Variant = "file"
	conf.File = writeRawFile(t, conf, 1)

	other := *conf
	other.Width = 8
	camera, _, err := NewCamera(&other)
	require.NoError(t, err)
	assert.Error(t, camera.Open())
}

func TestFileCameraEmpty(t *testing.T) {
	conf := smallConfig(headers.PixelFormatGray8)
	conf.Variant = "file"
	conf.File = writeRawFile(t, conf)

	camera, _, err := NewCamera(conf)
	require.NoError(t, err)
	require.NoError(t, camera.Open())
	assert.Error(t, camera.Capture(make([]byte, conf.FrameSize())))
}

func newRegion(t *testing.T, conf *Config) *shmring.Region {
	opts := &shmring.Options{Dir: t.TempDir()}
	r, err := shmring.Allocate("capture", conf.FrameSize(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Unlink()
		r.Close()
	})
	return r
}

func TestWorkerSizeMismatch(t *testing.T) {
	conf := smallConfig(headers.PixelFormatGray8)
	region := newRegion(t, conf)
	other := *conf
	other.Width = 8
	_, err := NewWorker(region, &randomCamera{}, &other, false)
	assert.True(t, errors.Is(err, shmring.ErrSizeMismatch))
}

func TestWorkerWaitsForStreamRequest(t *testing.T) {
	conf := smallConfig(headers.PixelFormatGray8)
	region := newRegion(t, conf)
	camera, v, err := NewCamera(conf)
	require.NoError(t, err)
	require.NoError(t, camera.Open())
	w, err := NewWorker(region, camera, conf, v.Paced)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, w.Run(ctx))
	assert.Equal(t, uint64(0), w.Frames())
	assert.Equal(t, uint64(0), region.Seq())
}

func TestWorkerPublishesFrames(t *testing.T) {
	conf := smallConfig(headers.PixelFormatYUV420P)
	region := newRegion(t, conf)
	camera, v, err := NewCamera(conf)
	require.NoError(t, err)
	require.NoError(t, camera.Open())
	w, err := NewWorker(region, camera, conf, v.Paced)
	require.NoError(t, err)
	notified := 0
	w.Notify = func() { notified++ }
	w.NotifyInterval = 2
	w.FPSLogInterval = 3

	consumer, err := shmring.NewConsumer(region, 0)
	require.NoError(t, err)
	consumer.RequestStream()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var seqs []uint64
	for len(seqs) < 3 {
		f, ok, err := consumer.Next(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, f.Data, conf.FrameSize())
		seqs = append(seqs, f.Seq)
	}
	cancel()
	assert.Equal(t, context.Canceled, <-done)

	for i := 1; i < len(seqs); i++ {
		assert.True(t, seqs[i] > seqs[i-1])
	}
	assert.True(t, w.Frames() >= 3)
	assert.True(t, notified >= 1)
}

type failingCamera struct{}

func (failingCamera) Open() error                { return nil }
func (failingCamera) Capture(frame []byte) error { return errors.New("sensor timeout") }
func (failingCamera) Close() error               { return nil }

func TestWorkerCaptureError(t *testing.T) {
	conf := smallConfig(headers.PixelFormatGray8)
	region := newRegion(t, conf)
	region.RequestStream()
	w, err := NewWorker(region, failingCamera{}, conf, false)
	require.NoError(t, err)

	err = w.Run(context.Background())
	var ce *CaptureError
	require.True(t, errors.As(err, &ce))
	assert.EqualError(t, ce.Err, "sensor timeout")
	assert.Equal(t, uint64(0), region.Seq())
}
