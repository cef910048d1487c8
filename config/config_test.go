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

package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/stereo-streamer/capture"
	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/location"
	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *conf)
}

func TestAllSet(t *testing.T) {
	// All config set at non-default values.
	conf, err := ParseConfig([]byte(`
region:
  name: "zed"
  dir: "/tmp/regions"
  slots: 4
  readers: 3
camera:
  variant: "random"
  width: 640
  height: 360
  fps: 15
  pixel-format: "rgb24"
  power-pin: "GPIO17"
  window-start: "-30m"
  window-end: "+30m"
  brand: "stereolabs"
  model: "zed"
  fps-log-interval: 100
stream:
  codec: "h264"
  transport: "datachannel"
  wait-timeout: 2s
  liveness-timeout: 10s
  keyframe-burst: 1
writer:
  output-dir: "/data/raw"
  min-disk-space: 50
  max-frames: 10
`))
	require.NoError(t, err)

	assert.Equal(t, RegionConfig{Name: "zed", Dir: "/tmp/regions", Slots: 4, Readers: 3}, conf.Region)
	assert.Equal(t, capture.Config{
		Variant:        "random",
		Width:          640,
		Height:         360,
		FPS:            15,
		PixelFormat:    "rgb24",
		PowerPin:       "GPIO17",
		WindowStart:    "-30m",
		WindowEnd:      "+30m",
		Brand:          "stereolabs",
		Model:          "zed",
		FPSLogInterval: 100,
	}, conf.Camera)

	expectedStream := stream.DefaultConfig()
	expectedStream.Codec = codec.H264
	expectedStream.Transport = stream.TransportDataChannel
	expectedStream.WaitTimeout = 2 * time.Second
	expectedStream.LivenessTimeout = 10 * time.Second
	expectedStream.Keyframes.Burst = 1
	assert.Equal(t, expectedStream, conf.Stream)

	assert.Equal(t, WriterConfig{OutputDir: "/data/raw", MinDiskSpace: 50, MaxFrames: 10}, conf.Writer)

	opts := conf.Region.Options([]byte("meta"))
	assert.Equal(t, 4, opts.SlotCount)
	assert.Equal(t, 3, opts.Readers)
	assert.Equal(t, []byte("meta"), opts.Metadata)
}

func TestInvalid(t *testing.T) {
	for name, buf := range map[string]string{
		"readers":  "region:\n  readers: 1\n",
		"slots":    "region:\n  slots: 1\n",
		"camera":   "camera:\n  variant: lepton\n",
		"stream":   "stream:\n  codec: vp9\n",
		"writer":   "writer:\n  max-frames: 0\n",
		"no name":  "region:\n  name: \"\"\n",
		"not yaml": "region: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(buf))
			assert.Error(t, err)
		})
	}
}

func TestParseConfigFiles(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "stereo-streamer.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte("camera:\n  fps: 10\n"), 0644))

	conf, err := ParseConfigFiles(filename, filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, conf.Camera.FPS)
	assert.Equal(t, location.DefaultLocationConfig(), conf.Location)

	locationFile := filepath.Join(dir, "location.yaml")
	require.NoError(t, ioutil.WriteFile(locationFile, []byte("latitude: 10\nlongitude: 20\n"), 0644))
	conf, err = ParseConfigFiles(filename, locationFile)
	require.NoError(t, err)
	assert.Equal(t, float32(10), conf.Location.Latitude)

	_, err = ParseConfigFiles(filepath.Join(dir, "nope.yaml"), locationFile)
	assert.Error(t, err)
}
