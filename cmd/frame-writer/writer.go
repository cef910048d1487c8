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
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/TheCacophonyProject/stereo-streamer/loglimiter"
	"github.com/TheCacophonyProject/stereo-streamer/rawframes"
)

const (
	fileExt = ".stereoraw"
	mb      = 1024 * 1024
)

// frameWriter writes frames to a sequence of raw frame files, starting a
// new file every maxFrames frames. No file is started while the disk is
// short of space.
type frameWriter struct {
	dir          string
	header       rawframes.Header
	maxFrames    int
	minDiskSpace uint64
	freeSpace    func(dir string) (uint64, error)
	logs         *loglimiter.LogLimiter

	current *rawframes.Writer
	frames  int
	files   int
}

func newFrameWriter(dir string, header rawframes.Header, maxFrames int, minDiskSpaceMB uint64) *frameWriter {
	return &frameWriter{
		dir:          dir,
		header:       header,
		maxFrames:    maxFrames,
		minDiskSpace: minDiskSpaceMB * mb,
		freeSpace:    freeDiskSpace,
		logs:         loglimiter.New(time.Minute),
	}
}

func freeDiskSpace(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// write adds a frame, reporting false if it was dropped for lack of
// space.
func (w *frameWriter) write(frame []byte, t time.Time) (bool, error) {
	if w.current == nil {
		ok, err := w.open(t)
		if err != nil || !ok {
			return false, err
		}
	}
	if err := w.current.WriteFrame(frame, t); err != nil {
		return false, err
	}
	w.frames++
	if w.frames >= w.maxFrames {
		return true, w.closeFile()
	}
	return true, nil
}

func (w *frameWriter) open(t time.Time) (bool, error) {
	free, err := w.freeSpace(w.dir)
	if err != nil {
		return false, err
	}
	if free < w.minDiskSpace {
		w.logs.Printf("only %d MB free in %s, not recording", free/mb, w.dir)
		return false, nil
	}

	name := nextFileName(w.dir, t)
	f, err := newBufferedFile(name)
	if err != nil {
		return false, err
	}
	rw := rawframes.NewWriter(f)
	header := w.header
	header.Timestamp = t
	if err := rw.WriteHeader(&header); err != nil {
		rw.Close()
		return false, err
	}
	log.Printf("writing %s", name)
	w.current = rw
	w.frames = 0
	w.files++
	return true, nil
}

func (w *frameWriter) closeFile() error {
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

func (w *frameWriter) Close() error {
	return w.closeFile()
}

func nextFileName(outDir string, t time.Time) string {
	name := fmt.Sprintf("%s%s", t.Format("2006-01-02T15:04:05.000"), fileExt)
	return filepath.Join(outDir, name)
}
