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
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
	"github.com/TheCacophonyProject/stereo-streamer/codec/ffmpeg"
	"github.com/TheCacophonyProject/stereo-streamer/config"
	"github.com/TheCacophonyProject/stereo-streamer/location"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
	"github.com/TheCacophonyProject/stereo-streamer/signaling"
	"github.com/TheCacophonyProject/stereo-streamer/stream"
	"github.com/TheCacophonyProject/stereo-streamer/throttle"
)

const (
	sdNotifyInterval      = 5 * time.Second
	throttleEventInterval = time.Hour
	shutdownTimeout       = 5 * time.Second
)

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	LocationFile string `arg:"-l,--location-config" help:"path to location configuration file"`
	DeviceConfig string `arg:"-d,--device-config" help:"path to device configuration directory"`
	NoSignaling  bool   `arg:"--no-signaling" help:"only accept offers over D-Bus"`
	Verbose      bool   `arg:"-v,--verbose" help:"include codec library log output"`
	Timestamps   bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = config.DefaultConfigFile
	args.LocationFile = location.DefaultLocationFile()
	args.DeviceConfig = config.DefaultDeviceConfigDir
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
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := config.ParseConfigFiles(args.ConfigFile, args.LocationFile)
	if err != nil {
		return err
	}
	device, err := config.ReadDevice(args.DeviceConfig)
	if err != nil {
		log.Printf("could not read device identity: %v", err)
		device = &config.Device{}
	}
	logConfig(conf, device)
	ffmpeg.SetLogLevel(args.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region, err := allocateRegion(conf)
	if err != nil {
		return err
	}
	defer func() {
		region.Unlink()
		region.Close()
	}()

	consumer, err := shmring.NewConsumer(region, config.StreamerReader)
	if err != nil {
		return err
	}
	header := conf.Camera.Header()

	registry := codec.NewRegistry()
	if err := ffmpeg.Register(registry); err != nil {
		return err
	}
	factory, err := registry.EncoderFactory(conf.Stream.Codec)
	if err != nil {
		return err
	}
	encoder := codec.NewReconfiguringEncoder(factory, conf.Stream.EncoderConfig(header))
	defer encoder.Close()

	pipeline, err := stream.NewPipeline(region, consumer, encoder, header, &conf.Stream)
	if err != nil {
		return err
	}
	keyframes := throttle.NewKeyframeLimiter(pipeline, &conf.Stream.Keyframes, throttle.NewEventRecorder(throttleEventInterval))
	api, err := stream.NewAPI(conf.Stream.Codec)
	if err != nil {
		return err
	}
	sessions := stream.NewSessionManager(api, pipeline, keyframes, &conf.Stream)
	defer sessions.CloseAll()

	snapshots := newSnapshotter(conf.Stream.SnapshotDir, pipeline)
	snapshots.delete()
	err = startService(&service{
		sessions:  sessions,
		stats:     func() map[string]uint64 { return pipeline.Stats().Map() },
		snapshots: snapshots,
	})
	if err != nil {
		return err
	}

	if !args.NoSignaling {
		srv := &http.Server{
			Addr:    conf.Stream.SignalAddress,
			Handler: signaling.NewServer(sessions, offerTimeout),
		}
		go func() {
			log.Printf("signaling on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("signaling server failed: %v", err)
				stop()
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	go notifyWatchdog(ctx)

	log.Print("waiting for viewers")
	err = pipeline.Run(ctx)
	if ctx.Err() != nil {
		log.Print("shutting down")
		return nil
	}
	return err
}

// allocateRegion creates the frame region, clearing one left behind by
// a previous run. The camera daemon attaches to it.
func allocateRegion(conf *config.Config) (*shmring.Region, error) {
	meta, err := conf.Camera.Header().Marshal()
	if err != nil {
		return nil, err
	}
	opts := conf.Region.Options(meta)
	if err := shmring.Remove(conf.Region.Name, opts); err != nil {
		return nil, err
	}
	return shmring.Allocate(conf.Region.Name, conf.Camera.FrameSize(), opts)
}

func notifyWatchdog(ctx context.Context) {
	t := time.NewTicker(sdNotifyInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			daemon.SdNotify(false, "WATCHDOG=1")
		}
	}
}

func logConfig(conf *config.Config, device *config.Device) {
	log.Printf("device: %s (%d)", device.Name, device.ID)
	log.Printf("region: %s/%s (%d slots, %d readers)", conf.Region.Dir, conf.Region.Name, conf.Region.Slots, conf.Region.Readers)
	log.Printf("frames: %dx%d %s at %d fps", conf.Camera.FrameWidth(), conf.Camera.Height, conf.Camera.PixelFormat, conf.Camera.FPS)
	log.Printf("codec: %s over %s, packet max %d", conf.Stream.Codec, conf.Stream.Transport, conf.Stream.PacketMax)
	log.Printf("keyframe requests: burst %d, one per %s", conf.Stream.Keyframes.Burst, conf.Stream.Keyframes.MinInterval)
	log.Printf("snapshot dir: %s", conf.Stream.SnapshotDir)
}
