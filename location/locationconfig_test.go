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

package location

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileGivesDefault(t *testing.T) {
	conf, err := ParseLocationFile(filepath.Join(t.TempDir(), "location.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLocationConfig(), conf)
}

func TestParseLocationFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "location.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte("latitude: -36.5\nlongitude: 174.75\n"), 0644))
	conf, err := ParseLocationFile(filename)
	require.NoError(t, err)
	lat, lon := conf.Coordinates()
	assert.Equal(t, -36.5, lat)
	assert.Equal(t, 174.75, lon)
}

func TestZeroLocationUsesDefault(t *testing.T) {
	conf := LocationConfig{}
	require.NoError(t, conf.ParseConfig([]byte("latitude: 0\nlongitude: 0\n")))
	assert.Equal(t, DefaultLocationConfig(), conf)
}

func TestOutOfRange(t *testing.T) {
	conf := LocationConfig{Latitude: 91}
	assert.Error(t, conf.Validate())
	conf = LocationConfig{Longitude: -181}
	assert.Error(t, conf.Validate())
}
