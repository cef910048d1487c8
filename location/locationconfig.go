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

// Package location reads the device location, which places sunrise and
// sunset relative capture windows.
package location

import (
	"errors"
	"io/ioutil"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	defaultConfig = "/etc/cacophony/location.yaml"
	maxLatitude   = 90
	maxLongitude  = 180

	//Christchurch
	defaultLatitude  = -43.5321
	defaultLongitude = 172.6362
)

type LocationConfig struct {
	Latitude     float32   `yaml:"latitude"`
	Longitude    float32   `yaml:"longitude"`
	LocTimestamp time.Time `yaml:"timestamp"`
	Altitude     float32   `yaml:"altitude"`
	Accuracy     float32   `yaml:"accuracy"`
}

func DefaultLocationFile() string {
	return defaultConfig
}

func DefaultLocationConfig() LocationConfig {
	return LocationConfig{
		Latitude:  defaultLatitude,
		Longitude: defaultLongitude,
		Accuracy:  10,
	}
}

// ParseLocationFile reads filename. A missing file gives the default
// location.
func ParseLocationFile(filename string) (LocationConfig, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return LocationConfig{}, err
	}
	conf := DefaultLocationConfig()
	if err := conf.ParseConfig(buf); err != nil {
		return LocationConfig{}, err
	}
	return conf, conf.Validate()
}

func (conf *LocationConfig) IsLocationEmpty() bool {
	return conf.Latitude == 0 && conf.Longitude == 0
}

// ParseConfig reads yaml and falls back to the default location if the
// result is (0, 0).
func (conf *LocationConfig) ParseConfig(buf []byte) error {
	err := yaml.Unmarshal(buf, conf)
	if err == nil && conf.IsLocationEmpty() {
		*conf = DefaultLocationConfig()
	}
	return err
}

func (conf *LocationConfig) Validate() error {
	if conf.Latitude < -maxLatitude || conf.Latitude > maxLatitude {
		return errors.New("latitude outside of normal range")
	}
	if conf.Longitude < -maxLongitude || conf.Longitude > maxLongitude {
		return errors.New("longitude outside of normal range")
	}
	return nil
}

// Coordinates returns the latitude and longitude as expected by
// window.New.
func (conf *LocationConfig) Coordinates() (float64, float64) {
	return float64(conf.Latitude), float64(conf.Longitude)
}
