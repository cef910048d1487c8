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

// Package capture drives a stereo camera and publishes its frames into a
// shared memory region.
package capture

import (
	"fmt"
	"sort"
)

// Camera produces side by side stereo frames.
type Camera interface {
	Open() error
	// Capture fills frame, which is Config.FrameSize bytes, with the next
	// image pair.
	Capture(frame []byte) error
	Close() error
}

// Variant is a camera backend that can be chosen in the config.
type Variant struct {
	New func(conf *Config) (Camera, error)
	// Paced is set for sources that produce frames as fast as they are
	// asked for and need the worker to hold them to the configured rate.
	Paced bool
}

var variants = map[string]Variant{
	"pattern": {New: newPatternCamera, Paced: true},
	"random":  {New: newRandomCamera, Paced: true},
	"file":    {New: newFileCamera, Paced: true},
}

// Variants lists the known camera variant names.
func Variants() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCamera creates the camera named in conf. The camera is not opened.
func NewCamera(conf *Config) (Camera, Variant, error) {
	v, ok := variants[conf.Variant]
	if !ok {
		return nil, Variant{}, fmt.Errorf("unknown camera variant %q", conf.Variant)
	}
	camera, err := v.New(conf)
	if err != nil {
		return nil, Variant{}, err
	}
	return camera, v, nil
}
