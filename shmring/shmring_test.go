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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSlotSize = 64

func newTestRegion(t *testing.T, readers int) (*Region, *Options) {
	opts := &Options{Dir: t.TempDir(), Readers: readers, Metadata: []byte("brand: test\n")}
	r, err := Allocate("frames", testSlotSize, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Unlink()
		r.Close()
	})
	return r, opts
}

func frameOf(b byte) []byte {
	return bytes.Repeat([]byte{b}, testSlotSize)
}

func TestAllocateAndAttach(t *testing.T) {
	r, opts := newTestRegion(t, 2)
	assert.True(t, r.Owner())

	a, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Owner())
	assert.Equal(t, testSlotSize, a.SlotSize())
	assert.Equal(t, DefaultSlots, a.SlotCount())
	assert.Equal(t, 2, a.Readers())
	assert.Equal(t, []byte("brand: test\n"), a.Metadata())
	assert.Equal(t, ErrNotOwner, a.Unlink())
}

func TestAllocateExisting(t *testing.T) {
	_, opts := newTestRegion(t, 1)
	_, err := Allocate("frames", testSlotSize, opts)
	assert.Error(t, err)
}

func TestAllocateInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := Allocate("a/b", testSlotSize, &Options{Dir: dir})
	assert.Error(t, err)
	_, err = Allocate("x", 0, &Options{Dir: dir})
	assert.Error(t, err)
	_, err = Allocate("x", testSlotSize, &Options{Dir: dir, SlotCount: 1})
	assert.Error(t, err)
	_, err = Allocate("x", testSlotSize, &Options{Dir: dir, Readers: MaxReaders + 1})
	assert.Error(t, err)
	_, err = Allocate("x", testSlotSize, &Options{Dir: dir, Metadata: make([]byte, MaxMetadata+1)})
	assert.Error(t, err)
}

func TestAttachMissing(t *testing.T) {
	_, err := Attach("nope", 0, &Options{Dir: t.TempDir()})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAttachUnrelatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), make([]byte, 2*headerSize), 0600))
	_, err := Attach("other", 0, &Options{Dir: dir})
	assert.True(t, errors.Is(err, ErrBadMagic))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "short"), []byte("hello"), 0600))
	_, err = Attach("short", 0, &Options{Dir: dir})
	assert.True(t, errors.Is(err, ErrBadMagic))
}

func TestAttachSizeMismatch(t *testing.T) {
	_, opts := newTestRegion(t, 1)
	_, err := Attach("frames", testSlotSize*2, opts)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}

func TestTimeoutIsNotAnError(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	start := time.Now()
	_, ok, err := c.Next(context.Background(), 20*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
	assert.Equal(t, uint64(1), c.Stats().Timeouts)
}

func TestLatestFrameWins(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	require.NoError(t, p.Publish(frameOf('A')))
	require.NoError(t, p.Publish(frameOf('B')))

	f, ok, err := c.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, frameOf('B'), f.Data)
	assert.Equal(t, uint64(2), f.Seq)

	// Both publishes collapsed into one signal.
	_, ok, err = c.Next(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLateConsumerGetsLatestFrame(t *testing.T) {
	r, opts := newTestRegion(t, 1)
	p := NewProducer(r)
	require.NoError(t, p.Publish(frameOf('X')))
	require.NoError(t, p.Publish(frameOf('Y')))

	a, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer a.Close()
	c, err := NewConsumer(a, 0)
	require.NoError(t, err)

	f, ok, err := c.Next(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, frameOf('Y'), f.Data)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint64(0), c.Stats().Dropped)

	_, ok, err = c.Next(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReplacementConsumerWaitsForNextFrame(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	first, err := NewConsumer(r, 0)
	require.NoError(t, err)
	require.NoError(t, p.Publish(frameOf('A')))
	_, ok, _ := first.Next(context.Background(), time.Second)
	require.True(t, ok)

	// The signal was used up by the previous consumer on this index.
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)
	_, ok, err = c.Next(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Publish(frameOf('B')))
	f, ok, err := c.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, frameOf('B'), f.Data)
	assert.Equal(t, uint64(0), c.Stats().Dropped)
}

func TestDropsCounted(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	require.NoError(t, p.Publish(frameOf(1)))
	_, ok, _ := c.Next(context.Background(), time.Second)
	require.True(t, ok)

	for i := 2; i <= 5; i++ {
		require.NoError(t, p.Publish(frameOf(byte(i))))
	}
	f, ok, _ := c.Next(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(5), f.Seq)
	assert.Equal(t, uint64(3), c.Stats().Dropped)
	assert.Equal(t, uint64(2), c.Stats().Frames)
}

func TestSlotsAlternate(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	var slots []int
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Publish(frameOf(byte(i))))
		f, ok, err := c.Next(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		slots = append(slots, f.Slot)
	}
	assert.Equal(t, []int{1, 0, 1, 0}, slots)
}

func TestReadFrameNotOverwrittenByNextPublish(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	require.NoError(t, p.Publish(frameOf('A')))
	f, ok, _ := c.Next(context.Background(), time.Second)
	require.True(t, ok)

	require.NoError(t, p.Publish(frameOf('B')))
	assert.Equal(t, frameOf('A'), f.Data)
	assert.False(t, c.Valid(f))

	dst := make([]byte, testSlotSize)
	_, valid := c.Copy(f, dst)
	assert.False(t, valid)
}

func TestCopyValidBeforeNextPublish(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	require.NoError(t, p.Publish(frameOf('A')))
	f, ok, _ := c.Next(context.Background(), time.Second)
	require.True(t, ok)

	dst := make([]byte, testSlotSize)
	n, valid := c.Copy(f, dst)
	assert.Equal(t, testSlotSize, n)
	assert.True(t, valid)
	assert.Equal(t, frameOf('A'), dst)
}

func TestReadersHaveOwnSignals(t *testing.T) {
	r, _ := newTestRegion(t, 2)
	p := NewProducer(r)
	c0, err := NewConsumer(r, 0)
	require.NoError(t, err)
	c1, err := NewConsumer(r, 1)
	require.NoError(t, err)
	_, err = NewConsumer(r, 2)
	assert.Error(t, err)

	require.NoError(t, p.Publish(frameOf('A')))
	f0, ok0, _ := c0.Next(context.Background(), time.Second)
	f1, ok1, _ := c1.Next(context.Background(), time.Second)
	require.True(t, ok0)
	require.True(t, ok1)
	assert.Equal(t, f0.Seq, f1.Seq)
}

func TestNextWakesOnPublish(t *testing.T) {
	r, opts := newTestRegion(t, 1)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	// Publish from a second mapping as another process would.
	w, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer w.Close()
	p := NewProducer(w)
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Publish(frameOf('Z'))
	}()

	f, ok, err := c.Next(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, frameOf('Z'), f.Data)
}

func TestCancelDoesNotLoseSignal(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok, err := c.Next(ctx, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded, err)

	require.NoError(t, p.Publish(frameOf('A')))
	f, ok, err := c.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, frameOf('A'), f.Data)
}

func TestProducerRestartResumes(t *testing.T) {
	r, opts := newTestRegion(t, 1)
	c, err := NewConsumer(r, 0)
	require.NoError(t, err)

	w, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	p := NewProducer(w)
	require.NoError(t, p.Publish(frameOf('A')))
	f, ok, _ := c.Next(context.Background(), time.Second)
	require.True(t, ok)
	require.NoError(t, w.Close())

	w, err = Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer w.Close()
	p = NewProducer(w)
	assert.NotEqual(t, f.Slot, p.WriteSlot())
	require.NoError(t, p.Publish(frameOf('B')))

	f, ok, _ = c.Next(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, frameOf('B'), f.Data)
}

func TestPublishWrongSize(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	err := p.Publish([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrSizeMismatch))
	assert.Equal(t, uint64(0), r.Seq())
}

func TestFillErrorDoesNotPublish(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	p := NewProducer(r)
	boom := errors.New("boom")
	assert.Equal(t, boom, p.Fill(func([]byte) error { return boom }))
	assert.Equal(t, uint64(0), r.Seq())
	assert.Equal(t, 1, p.WriteSlot())
}

func TestStreamRequest(t *testing.T) {
	r, opts := newTestRegion(t, 1)
	w, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.StreamRequested())
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.RequestStream()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.WaitStreamRequested(ctx))
	assert.True(t, w.StreamRequested())

	r.ReleaseStream()
	assert.False(t, w.StreamRequested())

	ctx, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.Equal(t, context.DeadlineExceeded, w.WaitStreamRequested(ctx))
}

func TestProducerAge(t *testing.T) {
	r, _ := newTestRegion(t, 1)
	_, ok := r.ProducerAge()
	assert.False(t, ok)

	p := NewProducer(r)
	p.now = func() time.Time { return time.Now().Add(-time.Minute) }
	require.NoError(t, p.Publish(frameOf(0)))
	age, ok := r.ProducerAge()
	assert.True(t, ok)
	assert.True(t, age >= time.Minute)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	r, err := Allocate("stale", testSlotSize, &Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.NoError(t, Remove("stale", &Options{Dir: dir}))
	require.NoError(t, Remove("stale", &Options{Dir: dir}))
	_, err = Attach("stale", 0, &Options{Dir: dir})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStaleAfterReallocate(t *testing.T) {
	r, opts := newTestRegion(t, 1)
	attached, err := Attach("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer attached.Close()
	assert.False(t, attached.Stale())

	require.NoError(t, r.Unlink())
	assert.True(t, attached.Stale())

	again, err := Allocate("frames", testSlotSize, opts)
	require.NoError(t, err)
	defer func() {
		again.Unlink()
		again.Close()
	}()
	assert.True(t, attached.Stale())
	assert.False(t, again.Stale())
}
