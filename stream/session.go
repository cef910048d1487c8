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
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/throttle"
)

const (
	payloadTypeH265 = 126
	payloadTypeH264 = 102

	// KeyframeMessage may be sent by a viewer on the data channel.
	KeyframeMessage = "keyframe"
)

var ErrUnknownSession = errors.New("unknown session")

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// CodecParameters returns what is registered with the media engine for
// a codec id.
func CodecParameters(codecID string) (webrtc.RTPCodecParameters, error) {
	mime, err := MimeType(codecID)
	if err != nil {
		return webrtc.RTPCodecParameters{}, err
	}
	params := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     mime,
			ClockRate:    clockRate,
			RTCPFeedback: videoFeedback,
		},
		PayloadType: payloadTypeH265,
	}
	if codecID == codec.H264 {
		params.PayloadType = payloadTypeH264
		params.SDPFmtpLine = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"
	}
	return params, nil
}

// NewAPI builds a webrtc API that only offers the given video codec, with
// the default interceptors for NACK and RTCP reports.
func NewAPI(codecID string) (*webrtc.API, error) {
	params, err := CodecParameters(codecID)
	if err != nil {
		return nil, err
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(params, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// SessionManager answers viewer offers and attaches each connected viewer
// to the pipeline.
type SessionManager struct {
	api       *webrtc.API
	pipeline  *Pipeline
	keyframes *throttle.KeyframeLimiter
	conf      *Config

	mu       sync.Mutex
	sessions map[string]*webrtc.PeerConnection
}

func NewSessionManager(api *webrtc.API, pipeline *Pipeline, keyframes *throttle.KeyframeLimiter, conf *Config) *SessionManager {
	return &SessionManager{
		api:       api,
		pipeline:  pipeline,
		keyframes: keyframes,
		conf:      conf,
		sessions:  make(map[string]*webrtc.PeerConnection),
	}
}

func (m *SessionManager) iceServers() []webrtc.ICEServer {
	if len(m.conf.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: m.conf.ICEServers}}
}

// Offer answers a viewer's SDP offer. The returned id names the session
// for Close.
func (m *SessionManager) Offer(ctx context.Context, offer string) (id string, answer string, err error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers()})
	if err != nil {
		return "", "", err
	}
	defer func() {
		if err != nil {
			pc.Close()
		}
	}()
	id = uuid.New().String()

	var onConnected func()
	switch m.conf.Transport {
	case TransportRTP:
		sink, err := m.addTrack(pc)
		if err != nil {
			return "", "", err
		}
		onConnected = func() { m.pipeline.AddSink(id, sink) }
	case TransportDataChannel:
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			m.handleDataChannel(id, dc)
		})
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("viewer %s connection %s", id, s)
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil {
				onConnected()
			}
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			go m.Close(id)
		}
	})

	if err = pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", "", err
	}
	desc, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", "", err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(desc); err != nil {
		return "", "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", "", ctx.Err()
	}

	m.mu.Lock()
	m.sessions[id] = pc
	m.mu.Unlock()
	return id, pc.LocalDescription().SDP, nil
}

func (m *SessionManager) addTrack(pc *webrtc.PeerConnection) (*RTPSink, error) {
	params, err := CodecParameters(m.conf.Codec)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticRTP(params.RTPCodecCapability, "video", "stereo")
	if err != nil {
		return nil, err
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	var ssrc uint32
	if enc := sender.GetParameters().Encodings; len(enc) > 0 {
		ssrc = uint32(enc[0].SSRC)
	}
	sink, err := NewRTPSink(track, m.conf.Codec, m.conf.PacketMax, ssrc)
	if err != nil {
		return nil, err
	}
	go m.readRTCP(sender)
	return sink, nil
}

// readRTCP drains the sender so the interceptors see RTCP, and turns
// picture loss reports into keyframe requests.
func (m *SessionManager) readRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				m.keyframes.Request()
			}
		}
	}
}

func (m *SessionManager) handleDataChannel(id string, dc *webrtc.DataChannel) {
	log.Printf("viewer %s opened data channel %q", id, dc.Label())
	dc.OnOpen(func() {
		m.pipeline.AddSink(id, NewDataChannelSink(dc, m.conf.MaxBuffered))
	})
	dc.OnClose(func() {
		m.pipeline.RemoveSink(id)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString && string(msg.Data) == KeyframeMessage {
			m.keyframes.Request()
		}
	})
}

// RequestKeyframe asks for a keyframe on behalf of a viewer.
func (m *SessionManager) RequestKeyframe() bool {
	return m.keyframes.Request()
}

// Close ends a session.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	pc, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	m.pipeline.RemoveSink(id)
	if !ok {
		return ErrUnknownSession
	}
	return pc.Close()
}

// Sessions returns the ids of the open sessions.
func (m *SessionManager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *SessionManager) CloseAll() {
	for _, id := range m.Sessions() {
		m.Close(id)
	}
}
