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

// Package shmring implements a named shared memory region holding a
// small ring of fixed size frame slots. One producer process publishes
// frames by alternating between slots; consumers wait on a per-reader
// frame-ready signal and read whichever slot was published last.
//
// Only the atomic cursor and the signals are synchronised. Pixel data is
// never locked: a slot is only rewritten after every other slot has been
// published, so a reader that finishes within one frame period never
// sees a partially written frame.
package shmring

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDir is where regions are created on Linux.
const DefaultDir = "/dev/shm"

var (
	ErrNotFound     = errors.New("shmring: region not found")
	ErrBadMagic     = errors.New("shmring: not a frame region")
	ErrBadVersion   = errors.New("shmring: unsupported region layout")
	ErrSizeMismatch = errors.New("shmring: slot size mismatch")
	ErrNotOwner     = errors.New("shmring: only the allocator may unlink a region")
	ErrClosed       = errors.New("shmring: region closed")
)

// Options tweak region creation and attachment. The zero value is
// usable.
type Options struct {
	// Dir overrides the directory backing the region. Defaults to
	// DefaultDir.
	Dir string

	// SlotCount defaults to DefaultSlots.
	SlotCount int

	// Readers is the number of reader signals. Defaults to 1.
	Readers int

	// Metadata is stored in the header at allocation time. Typically a
	// camera description, see package headers.
	Metadata []byte
}

func (o *Options) dir() string {
	if o == nil || o.Dir == "" {
		return DefaultDir
	}
	return o.Dir
}

// Region is a mapped frame region. Close must be called when done; only
// the allocating process may Unlink it.
type Region struct {
	name      string
	path      string
	f         *os.File
	mem       []byte
	slotSize  int
	slotCount int
	readers   int
	owner     bool
	closed    int32
}

// Allocate creates a new named region with slotCount slots of slotSize
// bytes. It fails if a region of the same name already exists.
func Allocate(name string, slotSize int, opts *Options) (*Region, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	slotCount := DefaultSlots
	readers := 1
	var metadata []byte
	if opts != nil {
		if opts.SlotCount != 0 {
			slotCount = opts.SlotCount
		}
		if opts.Readers != 0 {
			readers = opts.Readers
		}
		metadata = opts.Metadata
	}
	if slotSize <= 0 {
		return nil, fmt.Errorf("shmring: invalid slot size %d", slotSize)
	}
	if slotCount < 2 || slotCount > MaxSlots {
		return nil, fmt.Errorf("shmring: slot count must be in range 2 - %d", MaxSlots)
	}
	if readers < 1 || readers > MaxReaders {
		return nil, fmt.Errorf("shmring: readers must be in range 1 - %d", MaxReaders)
	}
	if len(metadata) > MaxMetadata {
		return nil, fmt.Errorf("shmring: metadata too large (%d > %d)", len(metadata), MaxMetadata)
	}

	path := filepath.Join(opts.dir(), name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0660)
	if err != nil {
		return nil, fmt.Errorf("shmring: creating %s: %w", path, err)
	}
	size := regionSize(slotSize, slotCount)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmring: mapping %s: %w", path, err)
	}

	le := binary.LittleEndian
	le.PutUint32(mem[offVersion:], layoutVersion)
	le.PutUint64(mem[offSlotSize:], uint64(slotSize))
	le.PutUint32(mem[offSlotCount:], uint32(slotCount))
	le.PutUint32(mem[offReaders:], uint32(readers))
	le.PutUint32(mem[offMetadataLen:], uint32(len(metadata)))
	copy(mem[offMetadata:], metadata)

	r := &Region{
		name:      name,
		path:      path,
		f:         f,
		mem:       mem,
		slotSize:  slotSize,
		slotCount: slotCount,
		readers:   readers,
		owner:     true,
	}
	// Magic goes last so an attacher never sees a half written header.
	atomic.StoreUint32(r.u32(offMagic), regionMagic)
	return r, nil
}

// Attach maps an existing region by name. If slotSize is non-zero the
// region's slot size must match it.
func Attach(name string, slotSize int, opts *Options) (*Region, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(opts.dir(), name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadMagic, path, info.Size())
	}

	header, err := unix.Mmap(int(f.Fd()), 0, headerSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmring: mapping %s: %w", path, err)
	}
	le := binary.LittleEndian
	magic := atomic.LoadUint32((*uint32)(unsafe.Pointer(&header[offMagic])))
	version := le.Uint32(header[offVersion:])
	gotSlotSize := int(le.Uint64(header[offSlotSize:]))
	slotCount := int(le.Uint32(header[offSlotCount:]))
	readers := int(le.Uint32(header[offReaders:]))
	unix.Munmap(header)

	fail := func(err error) (*Region, error) {
		f.Close()
		return nil, err
	}
	switch {
	case magic != regionMagic:
		return fail(fmt.Errorf("%w: %s", ErrBadMagic, path))
	case version != layoutVersion:
		return fail(fmt.Errorf("%w: version %d", ErrBadVersion, version))
	case slotCount < 2 || slotCount > MaxSlots || readers < 1 || readers > MaxReaders || gotSlotSize <= 0:
		return fail(fmt.Errorf("%w: corrupt header in %s", ErrBadMagic, path))
	case slotSize != 0 && slotSize != gotSlotSize:
		return fail(fmt.Errorf("%w: expected %d bytes, region has %d", ErrSizeMismatch, slotSize, gotSlotSize))
	}
	size := regionSize(gotSlotSize, slotCount)
	if info.Size() != int64(size) {
		return fail(fmt.Errorf("%w: region is %d bytes, header describes %d", ErrSizeMismatch, info.Size(), size))
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fail(fmt.Errorf("shmring: mapping %s: %w", path, err))
	}
	return &Region{
		name:      name,
		path:      path,
		f:         f,
		mem:       mem,
		slotSize:  gotSlotSize,
		slotCount: slotCount,
		readers:   readers,
	}, nil
}

// Remove deletes a region's backing file if it exists. It is intended
// for clearing a region left behind by a crashed allocator.
func Remove(name string, opts *Options) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(opts.dir(), name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return fmt.Errorf("shmring: invalid region name %q", name)
	}
	return nil
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// SlotSize returns the size of each slot in bytes.
func (r *Region) SlotSize() int { return r.slotSize }

// SlotCount returns the number of slots.
func (r *Region) SlotCount() int { return r.slotCount }

// Readers returns the number of reader signals.
func (r *Region) Readers() int { return r.readers }

// Owner reports whether this handle allocated the region.
func (r *Region) Owner() bool { return r.owner }

// Metadata returns a copy of the metadata stored at allocation.
func (r *Region) Metadata() []byte {
	n := int(binary.LittleEndian.Uint32(r.mem[offMetadataLen:]))
	if n > MaxMetadata {
		n = MaxMetadata
	}
	out := make([]byte, n)
	copy(out, r.mem[offMetadata:offMetadata+n])
	return out
}

// Seq returns the sequence number of the most recent publish. Zero means
// nothing has been published yet.
func (r *Region) Seq() uint64 {
	return atomic.LoadUint64(r.u64(offSeq))
}

// ProducerAge returns how long ago the producer last published. ok is
// false if no producer has ever published to the region.
func (r *Region) ProducerAge() (age time.Duration, ok bool) {
	ns := atomic.LoadUint64(r.u64(offHeartbeat))
	if ns == 0 {
		return 0, false
	}
	return time.Since(time.Unix(0, int64(ns))), true
}

// RequestStream asks the producer to start capturing.
func (r *Region) RequestStream() {
	addr := r.u32(offStreamRequest)
	atomic.StoreUint32(addr, 1)
	wakeAll(addr)
}

// ReleaseStream tells the producer nobody is watching anymore.
func (r *Region) ReleaseStream() {
	atomic.StoreUint32(r.u32(offStreamRequest), 0)
}

// StreamRequested reports whether a consumer has requested frames.
func (r *Region) StreamRequested() bool {
	return atomic.LoadUint32(r.u32(offStreamRequest)) != 0
}

// WaitStreamRequested blocks until a consumer calls RequestStream or ctx
// is done.
func (r *Region) WaitStreamRequested(ctx context.Context) error {
	addr := r.u32(offStreamRequest)
	for atomic.LoadUint32(addr) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.isClosed() {
			return ErrClosed
		}
		if err := waitWhileZero(addr, waitSlice); err != nil {
			return err
		}
	}
	return nil
}

// Close unmaps the region. It does not remove it.
func (r *Region) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	err := unix.Munmap(r.mem)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the region's name so no new process can attach. Mapped
// handles stay valid until closed.
func (r *Region) Unlink() error {
	if !r.owner {
		return ErrNotOwner
	}
	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stale reports whether the region's name no longer refers to this
// mapping, because it was unlinked or allocated again.
func (r *Region) Stale() bool {
	mine, err := r.f.Stat()
	if err != nil {
		return true
	}
	current, err := os.Stat(r.path)
	if err != nil {
		return true
	}
	return !os.SameFile(mine, current)
}

func (r *Region) isClosed() bool {
	return atomic.LoadInt32(&r.closed) != 0
}

func (r *Region) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[off]))
}

func (r *Region) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.mem[off]))
}

func (r *Region) cursor() *uint32 {
	return r.u32(offCursor)
}

func (r *Region) signal(reader int) *uint32 {
	return r.u32(offSignals + 4*reader)
}

func (r *Region) slotSeq(slot int) *uint64 {
	return r.u64(offSlotSeqs + 8*slot)
}

func (r *Region) slot(slot int) []byte {
	off := slotOffset(r.slotSize, slot)
	return r.mem[off : off+r.slotSize : off+r.slotSize]
}
