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

package main

import (
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	snapshotName          = "still.png"
	allowedSnapshotPeriod = 500 * time.Millisecond
)

type imageSource interface {
	Snapshot() (image.Image, error)
}

// snapshotter saves the latest frame as a PNG, at most once per
// allowedSnapshotPeriod.
type snapshotter struct {
	mu           sync.Mutex
	dir          string
	source       imageSource
	previousTime time.Time
	nowFunc      func() time.Time
}

func newSnapshotter(dir string, source imageSource) *snapshotter {
	return &snapshotter{
		dir:     dir,
		source:  source,
		nowFunc: time.Now,
	}
}

func (s *snapshotter) path() string {
	return filepath.Join(s.dir, snapshotName)
}

func (s *snapshotter) take() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if now.Sub(s.previousTime) < allowedSnapshotPeriod {
		return nil
	}
	img, err := s.source.Snapshot()
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial image.
	tmp, err := os.CreateTemp(s.dir, snapshotName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		return err
	}

	// the time will be changed only if the attempt is successful
	s.previousTime = now
	return nil
}

func (s *snapshotter) delete() {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		log.Printf("error deleting snapshot image: %v", err)
	}
}
