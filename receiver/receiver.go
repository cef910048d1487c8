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

// Package receiver rebuilds access units from a viewer's incoming RTP
// packets or data channel messages and decodes them.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/h265"
	"github.com/TheCacophonyProject/stereo-streamer/loglimiter"
	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

const clockRate = 90000

type Stats struct {
	Packets       uint64
	Lost          uint64
	FramingErrors uint64
	AccessUnits   uint64
	Frames        uint64
	DecodeErrors  uint64
}

// TrackReader is implemented by webrtc.TrackRemote.
type TrackReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Receiver handles a single video stream. Packets must be handed over
// in arrival order from one goroutine.
type Receiver struct {
	codecID      string
	depacketizer rtp.Depacketizer
	decoder      codec.Decoder
	onFrame      func(*codec.Frame)
	onLoss       func()
	logs         *loglimiter.LogLimiter

	au      []byte
	lastSeq uint16
	haveSeq bool

	mu    sync.Mutex
	stats Stats
}

// New returns a receiver for codecID that passes each decoded frame to
// onFrame.
func New(codecID string, decoder codec.Decoder, onFrame func(*codec.Frame)) (*Receiver, error) {
	r := &Receiver{
		codecID: codecID,
		decoder: decoder,
		onFrame: onFrame,
		logs:    loglimiter.New(time.Minute),
	}
	if err := r.resetDepacketizer(); err != nil {
		return nil, err
	}
	return r, nil
}

// OnLoss sets a function called when packets go missing, typically to
// send a picture loss indication.
func (r *Receiver) OnLoss(f func()) {
	r.onLoss = f
}

func (r *Receiver) resetDepacketizer() error {
	switch r.codecID {
	case codec.HEVC:
		if d, ok := r.depacketizer.(*h265.Depacketizer); ok {
			d.Reset()
		} else {
			r.depacketizer = &h265.Depacketizer{}
		}
	case codec.H264:
		r.depacketizer = &codecs.H264Packet{}
	default:
		return fmt.Errorf("%w: %q", codec.ErrUnknownCodec, r.codecID)
	}
	return nil
}

// HandlePacket adds one RTP packet. The access unit is decoded when the
// packet carrying the marker bit arrives. A gap in sequence numbers
// throws away the access unit in progress.
func (r *Receiver) HandlePacket(p *rtp.Packet) {
	r.count(func(s *Stats) { s.Packets++ })
	if r.haveSeq && p.SequenceNumber != r.lastSeq+1 {
		lost := p.SequenceNumber - r.lastSeq - 1
		r.count(func(s *Stats) { s.Lost += uint64(lost) })
		r.logs.Printf("lost %d packets before %d", lost, p.SequenceNumber)
		r.au = r.au[:0]
		r.resetDepacketizer()
		if r.onLoss != nil {
			r.onLoss()
		}
	}
	r.lastSeq = p.SequenceNumber
	r.haveSeq = true

	nal, err := r.depacketizer.Unmarshal(p.Payload)
	if err != nil {
		r.count(func(s *Stats) { s.FramingErrors++ })
		r.logs.Printf("bad payload: %v", err)
	} else {
		r.au = append(r.au, nal...)
	}
	if !p.Marker {
		return
	}
	if len(r.au) > 0 {
		r.decode(r.au, time.Duration(p.Timestamp)*time.Second/clockRate)
	}
	r.au = r.au[:0]
}

// HandleMessage decodes a data channel message.
func (r *Receiver) HandleMessage(msg []byte) error {
	au, err := stream.UnmarshalMessage(msg)
	if err != nil {
		r.count(func(s *Stats) { s.FramingErrors++ })
		return err
	}
	r.decode(au.Data, au.PTS)
	return nil
}

// ReadTrack feeds packets from track until it ends.
func (r *Receiver) ReadTrack(track TrackReader) error {
	for {
		p, _, err := track.ReadRTP()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		r.HandlePacket(p)
	}
}

func (r *Receiver) decode(au []byte, pts time.Duration) {
	r.count(func(s *Stats) { s.AccessUnits++ })
	frames, err := r.decoder.Decode(au, pts)
	if err != nil {
		r.count(func(s *Stats) { s.DecodeErrors++ })
		r.logs.Printf("decoding failed: %v", err)
	}
	for _, f := range frames {
		r.count(func(s *Stats) { s.Frames++ })
		if r.onFrame != nil {
			r.onFrame(f)
		}
	}
}

func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Receiver) count(f func(s *Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Receiver) Close() error {
	return r.decoder.Close()
}
