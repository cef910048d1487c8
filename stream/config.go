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
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/h265"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/throttle"
)

// Transports a viewer can receive video over.
const (
	TransportRTP         = "rtp"
	TransportDataChannel = "datachannel"
)

type Config struct {
	Codec            string          `yaml:"codec"`
	PacketMax        int             `yaml:"packet-max"`
	Transport        string          `yaml:"transport"`
	WaitTimeout      time.Duration   `yaml:"wait-timeout"`
	LivenessTimeout  time.Duration   `yaml:"liveness-timeout"`
	KeyframeInterval int             `yaml:"keyframe-interval"`
	Preset           string          `yaml:"preset"`
	Tune             string          `yaml:"tune"`
	CRF              int             `yaml:"crf"`
	Threads          int             `yaml:"threads"`
	MaxBuffered      uint64          `yaml:"max-buffered"`
	ICEServers       []string        `yaml:"ice-servers"`
	SignalAddress    string          `yaml:"signal-address"`
	SnapshotDir      string          `yaml:"snapshot-dir"`
	Keyframes        throttle.Config `yaml:",inline"`
}

func DefaultConfig() Config {
	return Config{
		Codec:            codec.HEVC,
		PacketMax:        h265.DefaultPacketMax,
		Transport:        TransportRTP,
		WaitTimeout:      time.Second,
		LivenessTimeout:  5 * time.Second,
		KeyframeInterval: 30,
		Preset:           "ultrafast",
		Tune:             "zerolatency",
		CRF:              23,
		MaxBuffered:      1000000,
		SignalAddress:    ":8080",
		SnapshotDir:      "/var/spool/stereo-streamer",
		Keyframes:        throttle.DefaultConfig(),
	}
}

func (conf *Config) Validate() error {
	if conf.Codec != codec.HEVC && conf.Codec != codec.H264 {
		return fmt.Errorf("unsupported codec %q", conf.Codec)
	}
	if err := checkPacketMax(conf.PacketMax); err != nil {
		return fmt.Errorf("packet-max: %w", err)
	}
	if conf.Transport != TransportRTP && conf.Transport != TransportDataChannel {
		return fmt.Errorf("unknown transport %q", conf.Transport)
	}
	if conf.WaitTimeout <= 0 {
		return errors.New("wait-timeout must be positive")
	}
	if conf.LivenessTimeout < conf.WaitTimeout {
		return errors.New("liveness-timeout can't be shorter than wait-timeout")
	}
	if conf.KeyframeInterval < 1 {
		return errors.New("keyframe-interval must be at least 1")
	}
	if conf.MaxBuffered == 0 {
		return errors.New("max-buffered must be positive")
	}
	return conf.Keyframes.Validate()
}

// EncoderConfig is the encoder setup for frames described by h.
func (conf *Config) EncoderConfig(h *headers.HeaderInfo) codec.EncoderConfig {
	return codec.EncoderConfig{
		Width:            h.ResX(),
		Height:           h.ResY(),
		FPS:              h.FPS(),
		PixelFormat:      h.PixelFormat(),
		KeyframeInterval: conf.KeyframeInterval,
		Preset:           conf.Preset,
		Tune:             conf.Tune,
		CRF:              conf.CRF,
		Threads:          conf.Threads,
	}
}
