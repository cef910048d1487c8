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
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/codec/ffmpeg"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/receiver"
	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

const (
	dataChannelLabel = "video-stream"
	offerTimeout     = 15 * time.Second
	closeTimeout     = 5 * time.Second
)

var version = "<not set>"

type Args struct {
	Signal        string        `arg:"positional" help:"dbus, or the streamer's http:// or ws:// signaling address"`
	Codec         string        `arg:"--codec" help:"video codec the streamer is configured with"`
	Transport     string        `arg:"--transport" help:"rtp or datachannel"`
	ICEServers    []string      `arg:"--ice-server" help:"STUN or TURN servers"`
	Duration      time.Duration `arg:"--duration" help:"stop after this long"`
	StatsInterval time.Duration `arg:"--stats-interval" help:"how often to log receive stats"`
	SnapshotDir   string        `arg:"--snapshot-dir" help:"save the last decoded frame here on exit"`
	Verbose       bool          `arg:"-v,--verbose" help:"include codec library log output"`
	Timestamps    bool          `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		Signal:        "dbus",
		Codec:         codec.HEVC,
		Transport:     stream.TransportRTP,
		StatsInterval: 10 * time.Second,
	}
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0)
	}
	log.Printf("running version: %s", version)
	if args.Transport != stream.TransportRTP && args.Transport != stream.TransportDataChannel {
		return fmt.Errorf("unknown transport %q", args.Transport)
	}
	ffmpeg.SetLogLevel(args.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if args.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.Duration)
		defer cancel()
	}

	registry := codec.NewRegistry()
	if err := ffmpeg.Register(registry); err != nil {
		return err
	}
	decoder, err := registry.NewDecoder(args.Codec)
	if err != nil {
		return err
	}
	frames := &lastFrame{}
	recv, err := receiver.New(args.Codec, decoder, frames.set)
	if err != nil {
		decoder.Close()
		return err
	}
	defer recv.Close()

	api, err := stream.NewAPI(args.Codec)
	if err != nil {
		return err
	}
	var iceServers []webrtc.ICEServer
	if len(args.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: args.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return err
	}
	defer pc.Close()

	failed := make(chan struct{})
	var failOnce sync.Once
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("connection %s", s)
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			failOnce.Do(func() { close(failed) })
		}
	})
	if err := setupReceive(pc, recv, args.Transport); err != nil {
		return err
	}

	sig, err := newSignaller(ctx, args.Signal)
	if err != nil {
		return err
	}
	id, err := connect(ctx, pc, sig)
	if err != nil {
		return err
	}
	log.Printf("session %s started", id)
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := sig.Close(cctx, id); err != nil {
			log.Printf("closing session: %v", err)
		}
	}()

	t := time.NewTicker(args.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logStats(recv.Stats())
			return saveSnapshot(args.SnapshotDir, frames.get())
		case <-failed:
			logStats(recv.Stats())
			return fmt.Errorf("connection to the streamer was lost")
		case <-t.C:
			logStats(recv.Stats())
		}
	}
}

// setupReceive wires the peer connection to the receiver for the chosen
// transport. Over RTP a loss triggers a picture loss report so the
// streamer sends a fresh keyframe.
func setupReceive(pc *webrtc.PeerConnection, recv *receiver.Receiver, transport string) error {
	if transport == stream.TransportDataChannel {
		ordered := true
		dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return err
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				return
			}
			if err := recv.HandleMessage(msg.Data); err != nil {
				log.Printf("bad message: %v", err)
				dc.SendText(stream.KeyframeMessage)
			}
		})
		return nil
	}

	_, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return err
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("receiving %s track", track.Codec().MimeType)
		ssrc := uint32(track.SSRC())
		recv.OnLoss(func() {
			err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
			if err != nil {
				log.Printf("sending picture loss: %v", err)
			}
		})
		if err := recv.ReadTrack(track); err != nil {
			log.Printf("reading track: %v", err)
		}
	})
	return nil
}

// connect sends our offer once ICE gathering is done and applies the
// streamer's answer.
func connect(ctx context.Context, pc *webrtc.PeerConnection, sig signaller) (string, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	octx, cancel := context.WithTimeout(ctx, offerTimeout)
	defer cancel()
	id, answer, err := sig.Offer(octx, pc.LocalDescription().SDP)
	if err != nil {
		return "", fmt.Errorf("offer rejected: %w", err)
	}
	err = pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer})
	if err != nil {
		sig.Close(ctx, id)
		return "", err
	}
	return id, nil
}

func logStats(s receiver.Stats) {
	log.Printf("packets %d, lost %d, framing errors %d, access units %d, frames %d, decode errors %d",
		s.Packets, s.Lost, s.FramingErrors, s.AccessUnits, s.Frames, s.DecodeErrors)
}

type lastFrame struct {
	mu    sync.Mutex
	frame *codec.Frame
}

func (l *lastFrame) set(f *codec.Frame) {
	l.mu.Lock()
	l.frame = f
	l.mu.Unlock()
}

func (l *lastFrame) get() *codec.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame
}

// saveSnapshot writes f as a PNG named after its presentation time.
func saveSnapshot(dir string, f *codec.Frame) error {
	if dir == "" || f == nil {
		return nil
	}
	h := headers.New(f.Width, f.Height, 0, f.PixelFormat, "", "")
	img, err := stream.SnapshotImage(f.Data, h)
	if err != nil {
		return err
	}
	name := filepath.Join(dir, fmt.Sprintf("frame-%d.png", f.PTS.Milliseconds()))
	out, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	log.Printf("saved %s", name)
	return out.Close()
}
