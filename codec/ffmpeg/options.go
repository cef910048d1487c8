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

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
)

// x265 tuned for encoding speed on noisy sensor data.
func x265Params(conf codec.EncoderConfig) string {
	params := []string{
		"log-level=warning",
		"repeat-headers=1",
		"aud=1",
		"no-sao=1",
		"no-weightp=1",
		"no-weightb=1",
		"bframes=0",
		"ref=1",
		"me=dia",
		"subme=0",
		"no-rect=1",
		"no-amp=1",
		"rd=1",
		"fast-intra=1",
		"no-cutree=1",
		"no-scenecut=1",
		fmt.Sprintf("keyint=%d", conf.KeyframeInterval),
		fmt.Sprintf("min-keyint=%d", conf.KeyframeInterval),
		"ctu=32",
		"max-tu-size=16",
		"qg-size=32",
		"frame-threads=0",
		"rc-lookahead=0",
	}
	if conf.Lossless {
		params = append(params, "lossless=1")
	}
	return strings.Join(params, ":")
}

// option is one codec private option passed to avcodec_open2.
type option struct {
	key   string
	value string
}

func setOptions(d *astiav.Dictionary, opts []option) error {
	for _, o := range opts {
		if err := d.Set(o.key, o.value, 0); err != nil {
			return fmt.Errorf("setting %s=%q: %w", o.key, o.value, err)
		}
	}
	return nil
}

func hevcOptions(conf codec.EncoderConfig) []option {
	opts := []option{
		{"preset", orDefault(conf.Preset, "superfast")},
		{"tune", orDefault(conf.Tune, "zerolatency")},
		{"x265-params", x265Params(conf)},
	}
	if !conf.Lossless {
		opts = append(opts, option{"crf", strconv.Itoa(conf.CRF)})
	}
	return opts
}

func h264Options(conf codec.EncoderConfig) []option {
	return []option{
		{"preset", orDefault(conf.Preset, "ultrafast")},
		{"tune", orDefault(conf.Tune, "zerolatency")},
		{"profile", "baseline"},
		{"crf", strconv.Itoa(conf.CRF)},
		{"maxrate", "4M"},
		{"bufsize", "8M"},
		{"x264-params", fmt.Sprintf("keyint=%d:min-keyint=%d:scenecut=0",
			conf.KeyframeInterval, conf.KeyframeInterval)},
	}
}

// Decoders check the bitstream carefully so damaged units are reported
// rather than concealed.
var decoderOptions = []option{
	{"err_detect", "careful"},
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
