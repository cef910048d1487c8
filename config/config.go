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

// Package config reads the shared stereo-streamer configuration file.
// Each daemon uses the sections it needs.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/stereo-streamer/capture"
	"github.com/TheCacophonyProject/stereo-streamer/location"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

const DefaultConfigFile = "/etc/stereo-streamer.yaml"

// Reader indexes used by the daemons attached to a region.
const (
	StreamerReader = 0
	WriterReader   = 1
)

type RegionConfig struct {
	Name    string `yaml:"name"`
	Dir     string `yaml:"dir"`
	Slots   int    `yaml:"slots"`
	Readers int    `yaml:"readers"`
}

type WriterConfig struct {
	OutputDir    string `yaml:"output-dir"`
	MinDiskSpace uint64 `yaml:"min-disk-space"`
	MaxFrames    int    `yaml:"max-frames"`
}

type Config struct {
	Region   RegionConfig            `yaml:"region"`
	Camera   capture.Config          `yaml:"camera"`
	Stream   stream.Config           `yaml:"stream"`
	Writer   WriterConfig            `yaml:"writer"`
	Location location.LocationConfig `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Region: RegionConfig{
			Name:    "stereo-frames",
			Dir:     shmring.DefaultDir,
			Slots:   shmring.DefaultSlots,
			Readers: 2,
		},
		Camera: capture.DefaultConfig(),
		Stream: stream.DefaultConfig(),
		Writer: WriterConfig{
			OutputDir:    "/var/spool/stereo-raw",
			MinDiskSpace: 200,
			MaxFrames:    3000,
		},
		Location: location.DefaultLocationConfig(),
	}
}

func (conf *Config) Validate() error {
	if conf.Region.Name == "" {
		return errors.New("region name must be set")
	}
	if conf.Region.Slots < 2 || conf.Region.Slots > shmring.MaxSlots {
		return fmt.Errorf("region slots must be in range 2 - %d", shmring.MaxSlots)
	}
	if conf.Region.Readers <= WriterReader || conf.Region.Readers > shmring.MaxReaders {
		return fmt.Errorf("region readers must be in range %d - %d", WriterReader+1, shmring.MaxReaders)
	}
	if err := conf.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := conf.Stream.Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if conf.Writer.MaxFrames < 1 {
		return errors.New("writer max-frames must be at least 1")
	}
	return conf.Location.Validate()
}

// Options returns the region options, carrying metadata when allocating.
func (r *RegionConfig) Options(metadata []byte) *shmring.Options {
	return &shmring.Options{
		Dir:       r.Dir,
		SlotCount: r.Slots,
		Readers:   r.Readers,
		Metadata:  metadata,
	}
}

// ParseConfigFiles reads the main config file and the device location.
// The location file may be missing.
func ParseConfigFiles(filename, locationFilename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	loc, err := location.ParseLocationFile(locationFilename)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	conf, err := ParseConfig(buf)
	if err != nil {
		return nil, err
	}
	conf.Location = loc
	return conf, nil
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := DefaultConfig()
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
