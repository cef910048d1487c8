// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2018, The Cacophony Project
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

package throttle

import (
	"errors"
	"time"
)

// Config controls how often viewers may force a keyframe.
type Config struct {
	Burst       int           `yaml:"keyframe-burst"`
	MinInterval time.Duration `yaml:"keyframe-min-interval"`
}

func DefaultConfig() Config {
	return Config{
		Burst:       3,
		MinInterval: 2 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.Burst < 1 {
		return errors.New("keyframe-burst must be at least 1")
	}
	if conf.MinInterval <= 0 {
		return errors.New("keyframe-min-interval must be positive")
	}
	return nil
}
