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

// Package stream reads frames from a shared memory region, encodes them
// and sends the result to each connected viewer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/loglimiter"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
)

var ErrNoFrame = errors.New("no frames yet")

// Encoder is a codec.Encoder that can be asked for a keyframe.
type Encoder interface {
	codec.Encoder
	RequestKeyframe()
}

// Stats counts what the pipeline has done since it started.
type Stats struct {
	FramesIn      uint64
	FramesTorn    uint64
	FramesDropped uint64
	Timeouts      uint64
	AccessUnits   uint64
	Keyframes     uint64
	EncodeErrors  uint64
	PayloadsSent  uint64
	BytesSent     uint64
	SinkErrors    uint64
	Sessions      int
}

// Map returns the stats keyed by name, as sent over D-Bus.
func (s Stats) Map() map[string]uint64 {
	return map[string]uint64{
		"frames-in":      s.FramesIn,
		"frames-torn":    s.FramesTorn,
		"frames-dropped": s.FramesDropped,
		"timeouts":       s.Timeouts,
		"access-units":   s.AccessUnits,
		"keyframes":      s.Keyframes,
		"encode-errors":  s.EncodeErrors,
		"payloads-sent":  s.PayloadsSent,
		"bytes-sent":     s.BytesSent,
		"sink-errors":    s.SinkErrors,
		"sessions":       uint64(s.Sessions),
	}
}

// Pipeline moves frames from a region consumer through the encoder to
// the sinks. Frames are only encoded while at least one sink is
// attached.
type Pipeline struct {
	region   *shmring.Region
	consumer *shmring.Consumer
	encoder  Encoder
	header   *headers.HeaderInfo
	waitTime time.Duration
	liveness *LivenessMonitor
	logs     *loglimiter.LogLimiter

	frame []byte

	mu     sync.Mutex
	sinks  map[string]Sink
	latest []byte
	stats  Stats
}

func NewPipeline(
	region *shmring.Region,
	consumer *shmring.Consumer,
	encoder Encoder,
	header *headers.HeaderInfo,
	conf *Config,
) (*Pipeline, error) {
	if header.FrameSize() != region.SlotSize() {
		return nil, fmt.Errorf("%w: camera frames are %d bytes, region slots are %d",
			shmring.ErrSizeMismatch, header.FrameSize(), region.SlotSize())
	}
	if header.FPS() <= 0 {
		return nil, errors.New("camera description has no frame rate")
	}
	return &Pipeline{
		region:   region,
		consumer: consumer,
		encoder:  encoder,
		header:   header,
		waitTime: conf.WaitTimeout,
		liveness: NewLivenessMonitor(region, conf.LivenessTimeout),
		logs:     loglimiter.New(time.Minute),
		frame:    make([]byte, region.SlotSize()),
		sinks:    make(map[string]Sink),
	}, nil
}

// AddSink attaches a viewer. The camera is asked to start if it is
// idle and the next frame is encoded as a keyframe.
func (p *Pipeline) AddSink(id string, s Sink) {
	p.mu.Lock()
	if old, ok := p.sinks[id]; ok {
		old.Close()
	}
	p.sinks[id] = s
	p.mu.Unlock()

	log.Printf("viewer %s attached", id)
	p.consumer.RequestStream()
	p.encoder.RequestKeyframe()
}

// RemoveSink detaches and closes a viewer. When the last viewer leaves
// the camera is released.
func (p *Pipeline) RemoveSink(id string) {
	p.mu.Lock()
	s, ok := p.sinks[id]
	delete(p.sinks, id)
	remaining := len(p.sinks)
	p.mu.Unlock()
	if !ok {
		return
	}

	s.Close()
	log.Printf("viewer %s detached", id)
	if remaining == 0 {
		p.region.ReleaseStream()
	}
}

// Sinks returns the ids of the attached viewers.
func (p *Pipeline) Sinks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sinks))
	for id := range p.sinks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequestKeyframe is passed straight to the encoder. Callers facing the
// network should go through a throttle.KeyframeLimiter.
func (p *Pipeline) RequestKeyframe() {
	p.encoder.RequestKeyframe()
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Sessions = len(p.sinks)
	return s
}

// Latest returns a copy of the most recent frame and its description.
func (p *Pipeline) Latest() ([]byte, *headers.HeaderInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil, nil, ErrNoFrame
	}
	out := make([]byte, len(p.latest))
	copy(out, p.latest)
	return out, p.header, nil
}

// Run reads frames until ctx is done. Closing the region also stops it.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.closeSinks()
	for {
		f, ok, err := p.consumer.Next(ctx, p.waitTime)
		if err != nil {
			return err
		}
		if !ok {
			p.count(func(s *Stats) { s.Timeouts++ })
			p.liveness.Timeout()
			continue
		}
		p.liveness.Frame()
		dropped := p.consumer.Stats().Dropped
		p.count(func(s *Stats) { s.FramesDropped = dropped })
		p.handleFrame(f)
	}
}

func (p *Pipeline) handleFrame(f shmring.Frame) {
	if _, ok := p.consumer.Copy(f, p.frame); !ok {
		// The producer lapped us while copying.
		p.count(func(s *Stats) { s.FramesTorn++ })
		return
	}

	p.mu.Lock()
	p.stats.FramesIn++
	if p.latest == nil {
		p.latest = make([]byte, len(p.frame))
	}
	copy(p.latest, p.frame)
	viewers := len(p.sinks)
	p.mu.Unlock()

	if viewers == 0 {
		return
	}

	aus, err := p.encoder.Encode(&codec.Frame{
		Width:       p.header.ResX(),
		Height:      p.header.ResY(),
		PixelFormat: p.header.PixelFormat(),
		Data:        p.frame,
		PTS:         p.pts(f.Seq),
	})
	if err != nil {
		p.count(func(s *Stats) { s.EncodeErrors++ })
		p.logs.Printf("encoding failed: %v", err)
	}
	for _, au := range aus {
		p.broadcast(au)
	}
}

// pts derives a presentation time from the publish sequence so frames
// the consumer skipped still leave a gap in the timeline.
func (p *Pipeline) pts(seq uint64) time.Duration {
	return time.Duration(seq) * time.Second / time.Duration(p.header.FPS())
}

func (p *Pipeline) broadcast(au codec.AccessUnit) {
	p.mu.Lock()
	sinks := make(map[string]Sink, len(p.sinks))
	for id, s := range p.sinks {
		sinks[id] = s
	}
	p.stats.AccessUnits++
	if au.Key {
		p.stats.Keyframes++
	}
	p.mu.Unlock()

	for id, s := range sinks {
		n, err := s.WriteAccessUnit(au)
		p.count(func(st *Stats) {
			st.PayloadsSent += uint64(n)
			if err == nil {
				st.BytesSent += uint64(len(au.Data))
			}
		})
		if err != nil {
			p.count(func(st *Stats) { st.SinkErrors++ })
			log.Printf("sending to viewer %s failed: %v", id, err)
			p.RemoveSink(id)
		}
	}
}

func (p *Pipeline) count(f func(s *Stats)) {
	p.mu.Lock()
	f(&p.stats)
	p.mu.Unlock()
}

func (p *Pipeline) closeSinks() {
	for _, id := range p.Sinks() {
		p.RemoveSink(id)
	}
}
