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
	"strings"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
)

func optionMap(opts []option) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.key] = o.value
	}
	return m
}

func TestSetOptions(t *testing.T) {
	d := astiav.NewDictionary()
	defer d.Free()

	require.NoError(t, setOptions(d, decoderOptions))
	e := d.Get("err_detect", nil, 0)
	require.NotNil(t, e)
	assert.Equal(t, "careful", e.Value())

	require.NoError(t, setOptions(d, []option{{"preset", "fast"}, {"preset", "slow"}}))
	assert.Equal(t, "slow", d.Get("preset", nil, 0).Value())
}

func TestHEVCOptions(t *testing.T) {
	conf := codec.EncoderConfig{CRF: 28, KeyframeInterval: 15}
	opts := optionMap(hevcOptions(conf))
	assert.Equal(t, "superfast", opts["preset"])
	assert.Equal(t, "28", opts["crf"])
	assert.True(t, strings.Contains(opts["x265-params"], "keyint=15"))

	conf.Lossless = true
	conf.Preset = "medium"
	opts = optionMap(hevcOptions(conf))
	assert.Equal(t, "medium", opts["preset"])
	_, ok := opts["crf"]
	assert.False(t, ok)
	assert.True(t, strings.Contains(opts["x265-params"], "lossless=1"))
}

func TestH264Options(t *testing.T) {
	opts := optionMap(h264Options(codec.EncoderConfig{CRF: 23, KeyframeInterval: 30}))
	assert.Equal(t, "ultrafast", opts["preset"])
	assert.Equal(t, "baseline", opts["profile"])
	assert.Equal(t, "keyint=30:min-keyint=30:scenecut=0", opts["x264-params"])
}
