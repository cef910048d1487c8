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
	"bufio"
	"os"
)

const (
	bufferSize = 4 * 1024 * 1024
	tmpSuffix  = ".tmp"
)

func newBufferedFile(filename string) (*bufferedFile, error) {
	f, err := os.Create(filename + tmpSuffix)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{
		name: filename,
		f:    f,
		w:    bufio.NewWriterSize(f, bufferSize),
	}, nil
}

// bufferedFile is written under a temporary name and renamed into place
// on Close so readers only see complete files.
type bufferedFile struct {
	name string
	f    *os.File
	w    *bufio.Writer
}

func (bf *bufferedFile) Write(p []byte) (int, error) {
	return bf.w.Write(p)
}

func (bf *bufferedFile) Close() error {
	if err := bf.w.Flush(); err != nil {
		bf.f.Close()
		return err
	}
	if err := bf.f.Close(); err != nil {
		return err
	}
	return os.Rename(bf.name+tmpSuffix, bf.name)
}
