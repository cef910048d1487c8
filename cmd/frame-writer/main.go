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
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/stereo-streamer/config"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/location"
	"github.com/TheCacophonyProject/stereo-streamer/rawframes"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
)

const (
	attachRetry = time.Second
	waitTimeout = time.Second
	inFlight    = 16
)

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	DeviceConfig string `arg:"-d,--device-config" help:"path to device configuration directory"`
	Request      bool   `arg:"-r,--request" help:"keep the camera running rather than only recording while streaming"`
	Timestamps   bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = config.DefaultConfigFile
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
	conf, err := config.ParseConfigFiles(args.ConfigFile, location.DefaultLocationFile())
	if err != nil {
		return err
	}
	device, err := config.ReadDevice(args.DeviceConfig)
	if err != nil {
		return err
	}
	logConfig(conf, device)
	if err := os.MkdirAll(conf.Writer.OutputDir, 0755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		region, err := attachRegion(ctx, conf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = handleRegion(ctx, region, conf, device, args.Request)
		region.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("region ended with: %v", err)
	}
}

var errRegionStale = errors.New("region was replaced")

func attachRegion(ctx context.Context, conf *config.Config) (*shmring.Region, error) {
	log.Print("waiting for region")
	for {
		region, err := shmring.Attach(conf.Region.Name, 0, conf.Region.Options(nil))
		if err == nil {
			return region, nil
		}
		if !errors.Is(err, shmring.ErrNotFound) && !errors.Is(err, shmring.ErrBadMagic) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(attachRetry):
		}
	}
}

func handleRegion(ctx context.Context, region *shmring.Region, conf *config.Config, device *config.Device, request bool) error {
	info, err := headers.Parse(region.Metadata())
	if err != nil {
		return err
	}
	if info.FrameSize() != region.SlotSize() {
		return shmring.ErrSizeMismatch
	}
	log.Printf("region from %s %s (%dx%d@%dfps %s)", info.Brand(), info.Model(), info.ResX(), info.ResY(), info.FPS(), info.PixelFormat())

	consumer, err := shmring.NewConsumer(region, config.WriterReader)
	if err != nil {
		return err
	}

	header := rawframes.HeaderFromInfo(info, time.Now())
	header.DeviceName = device.Name
	header.DeviceID = device.ID
	fw := newFrameWriter(conf.Writer.OutputDir, *header, conf.Writer.MaxFrames, conf.Writer.MinDiskSpace)

	type stamped struct {
		frame []byte
		t     time.Time
	}
	writeFrames := make(chan stamped, inFlight)
	spentFrames := make(chan []byte, inFlight)
	for i := 0; i < inFlight; i++ {
		spentFrames <- make([]byte, info.FrameSize())
	}
	writeErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer fw.Close()
		for f := range writeFrames {
			if _, err := fw.write(f.frame, f.t); err != nil {
				writeErr <- err
				// Keep draining so the reader never blocks.
				for f := range writeFrames {
					spentFrames <- f.frame
				}
				return
			}
			spentFrames <- f.frame
		}
	}()
	defer func() {
		close(writeFrames)
		<-done
	}()

	count := 0
	t0 := time.Now()
	for {
		if request && !region.StreamRequested() {
			consumer.RequestStream()
		}
		f, ok, err := consumer.Next(ctx, waitTimeout)
		if err != nil {
			return err
		}
		if !ok {
			if region.Stale() {
				return errRegionStale
			}
			continue
		}

		frame := <-spentFrames
		if _, valid := consumer.Copy(f, frame); !valid {
			spentFrames <- frame
			continue
		}
		select {
		case err := <-writeErr:
			return err
		case writeFrames <- stamped{frame, time.Now()}:
		}

		count++
		if count == 100 {
			t1 := time.Now()
			log.Printf("%.1f Hz", float64(count)/t1.Sub(t0).Seconds())
			t0 = t1
			count = 0
		}
		if dropped := consumer.Stats().Dropped; dropped > 0 && count == 0 {
			log.Printf("%d frames dropped so far", dropped)
		}
	}
}

func logConfig(conf *config.Config, device *config.Device) {
	log.Printf("device name: %s", device.Name)
	log.Printf("region: %s/%s", conf.Region.Dir, conf.Region.Name)
	log.Printf("output dir: %s", conf.Writer.OutputDir)
	log.Printf("min disk space: %d MB", conf.Writer.MinDiskSpace)
	log.Printf("frames per file: %d", conf.Writer.MaxFrames)
}
