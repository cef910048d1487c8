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
	goconfig "github.com/TheCacophonyProject/go-config"
)

// DefaultDeviceConfigDir holds the device wide Cacophony configuration.
const DefaultDeviceConfigDir = goconfig.DefaultConfigDir

type Device struct {
	ID   int
	Name string
}

// ReadDevice returns the device identity registered with the Cacophony
// API.
func ReadDevice(configDir string) (*Device, error) {
	configRW, err := goconfig.New(configDir)
	if err != nil {
		return nil, err
	}
	var deviceConfig goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &deviceConfig); err != nil {
		return nil, err
	}
	return &Device{
		ID:   deviceConfig.ID,
		Name: deviceConfig.Name,
	}, nil
}
