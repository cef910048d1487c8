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

package shmring

import (
	"math"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The futexes live in a MAP_SHARED file mapping so the shared (non
// private) operations are used.
const (
	futexWait = 0
	futexWake = 1
)

// waitWhileZero sleeps in the kernel while *addr is zero, for at most
// timeout. Spurious wakeups are fine; callers re-check.
func waitWhileZero(addr *uint32, timeout time.Duration) error {
	ts := unix.NsecToTimespec(int64(timeout))
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		0,
		uintptr(unsafe.Pointer(&ts)),
		0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	}
	return errno
}

func wakeAll(addr *uint32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake,
		math.MaxInt32,
		0, 0, 0)
}
