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

package stream

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/h265"
)

const (
	clockRate = 90000

	// RTP header without extensions.
	rtpHeaderSize = 12

	// MaxPacketMax is the largest payload that still fits a 16 bit MTU
	// once the RTP header is added.
	MaxPacketMax = math.MaxUint16 - rtpHeaderSize

	MimeTypeH265 = "video/H265"
	MimeTypeH264 = "video/H264"
)

var ErrSinkClosed = errors.New("sink closed")

// Sink sends encoded access units to one viewer.
type Sink interface {
	// WriteAccessUnit returns the number of wire payloads sent.
	WriteAccessUnit(au codec.AccessUnit) (int, error)
	Close() error
}

// MimeType returns the RTP mime type for a codec id.
func MimeType(codecID string) (string, error) {
	switch codecID {
	case codec.HEVC:
		return MimeTypeH265, nil
	case codec.H264:
		return MimeTypeH264, nil
	}
	return "", fmt.Errorf("%w: %q", codec.ErrUnknownCodec, codecID)
}

func newPayloader(codecID string) (rtp.Payloader, error) {
	switch codecID {
	case codec.HEVC:
		return &h265.Payloader{}, nil
	case codec.H264:
		return &codecs.H264Payloader{}, nil
	}
	return nil, fmt.Errorf("%w: %q", codec.ErrUnknownCodec, codecID)
}

// RTPWriter is satisfied by webrtc.TrackLocalStaticRTP.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// RTPSink packetizes access units onto an RTP track. Payloads never
// exceed the configured packet size.
type RTPSink struct {
	w          RTPWriter
	packetizer rtp.Packetizer
}

func NewRTPSink(w RTPWriter, codecID string, packetMax int, ssrc uint32) (*RTPSink, error) {
	if err := checkPacketMax(packetMax); err != nil {
		return nil, err
	}
	payloader, err := newPayloader(codecID)
	if err != nil {
		return nil, err
	}
	// The packetizer budget includes the RTP header.
	mtu := uint16(packetMax + rtpHeaderSize)
	return &RTPSink{
		w:          w,
		packetizer: rtp.NewPacketizer(mtu, 0, ssrc, payloader, rtp.NewRandomSequencer(), clockRate),
	}, nil
}

func checkPacketMax(packetMax int) error {
	if packetMax > MaxPacketMax {
		return fmt.Errorf("%d is above the largest RTP payload %d", packetMax, MaxPacketMax)
	}
	_, err := h265.NewFragmenter(packetMax)
	return err
}

func (s *RTPSink) WriteAccessUnit(au codec.AccessUnit) (int, error) {
	packets := s.packetizer.Packetize(au.Data, 0)
	ts := uint32(int64(au.PTS) * clockRate / int64(time.Second))
	for i, p := range packets {
		p.Timestamp = ts
		if err := s.w.WriteRTP(p); err != nil {
			return i, err
		}
	}
	return len(packets), nil
}

func (s *RTPSink) Close() error {
	return nil
}

// DataChannel is the part of webrtc.DataChannel the sink needs.
type DataChannel interface {
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}

// DataChannelSink sends each access unit as one data channel message.
// While more than maxBuffered bytes are queued on the channel it waits
// for the queue to drain.
type DataChannelSink struct {
	dc          DataChannel
	maxBuffered uint64
	poll        time.Duration
	low         chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
}

func NewDataChannelSink(dc DataChannel, maxBuffered uint64) *DataChannelSink {
	s := &DataChannelSink{
		dc:          dc,
		maxBuffered: maxBuffered,
		poll:        10 * time.Millisecond,
		low:         make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(maxBuffered)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.low <- struct{}{}:
		default:
		}
	})
	return s
}

func (s *DataChannelSink) WriteAccessUnit(au codec.AccessUnit) (int, error) {
	for s.dc.BufferedAmount() > s.maxBuffered {
		select {
		case <-s.closed:
			return 0, ErrSinkClosed
		case <-s.low:
		case <-time.After(s.poll):
		}
	}
	select {
	case <-s.closed:
		return 0, ErrSinkClosed
	default:
	}
	if err := s.dc.Send(MarshalMessage(au)); err != nil {
		return 0, err
	}
	return 1, nil
}

// Close stops any wait for the channel to drain.
func (s *DataChannelSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
