// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/window"
	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/TheCacophonyProject/stereo-streamer/capture"
	"github.com/TheCacophonyProject/stereo-streamer/config"
	"github.com/TheCacophonyProject/stereo-streamer/headers"
	"github.com/TheCacophonyProject/stereo-streamer/location"
	"github.com/TheCacophonyProject/stereo-streamer/shmring"
)

const (
	attachRetry   = time.Second
	staleCheck    = 5 * time.Second
	idleSdNotify  = 10 * time.Second
	powerOffDelay = 2 * time.Second
	startupDelay  = 8 * time.Second
)

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	LocationFile string `arg:"-l,--location-config" help:"path to location configuration file"`
	Quick        bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps   bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = config.DefaultConfigFile
	args.LocationFile = location.DefaultLocationFile()
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

	log.Printf("version: %s", version)
	conf, err := config.ParseConfigFiles(args.ConfigFile, args.LocationFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	win, err := conf.Camera.Window(conf.Location.Coordinates())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}

	if !args.Quick {
		if err := cycleCameraPower(conf.Camera.PowerPin); err != nil {
			return err
		}
	}

	for {
		region, err := attachRegion(ctx, conf)
		if err != nil {
			return err
		}
		err = runRegion(ctx, conf, region, win)
		region.Close()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		log.Print("region was replaced, attaching again")
	}
}

// runRegion captures into region until it goes stale. Capture failures
// power cycle the camera and start again.
func runRegion(ctx context.Context, conf *config.Config, region *shmring.Region, win *window.Window) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchRegion(ctx, cancel, region)

	for {
		camera, variant, err := capture.NewCamera(&conf.Camera)
		if err != nil {
			return err
		}
		log.Printf("opening %s camera", conf.Camera.Variant)
		if err := camera.Open(); err != nil {
			return err
		}

		err = runCamera(ctx, conf, region, camera, variant, win)
		log.Print("closing camera")
		camera.Close()

		var captureErr *capture.CaptureError
		if !errors.As(err, &captureErr) {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Printf("recording error: %v", err)
		if err := cycleCameraPower(conf.Camera.PowerPin); err != nil {
			return err
		}
	}
}

func runCamera(
	ctx context.Context,
	conf *config.Config,
	region *shmring.Region,
	camera capture.Camera,
	variant capture.Variant,
	win *window.Window,
) error {
	worker, err := capture.NewWorker(region, camera, &conf.Camera, variant.Paced)
	if err != nil {
		return err
	}
	worker.Window = win
	worker.Notify = sdNotify
	return worker.Run(ctx)
}

// watchRegion pets the watchdog while no one is watching, when the
// worker doesn't, and cancels once the region has been replaced.
func watchRegion(ctx context.Context, cancel context.CancelFunc, region *shmring.Region) {
	stale := time.NewTicker(staleCheck)
	defer stale.Stop()
	idle := time.NewTicker(idleSdNotify)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			if !region.StreamRequested() {
				sdNotify()
			}
		case <-stale.C:
			if region.Stale() {
				cancel()
				return
			}
		}
	}
}

// attachRegion waits for the streamer to allocate the region and checks
// it describes this camera.
func attachRegion(ctx context.Context, conf *config.Config) (*shmring.Region, error) {
	waiting := false
	for {
		region, err := shmring.Attach(conf.Region.Name, conf.Camera.FrameSize(), conf.Region.Options(nil))
		if err == nil {
			if err := checkHeader(region, conf); err != nil {
				region.Close()
				return nil, err
			}
			log.Printf("attached to region %s", region.Name())
			return region, nil
		}
		if !errors.Is(err, shmring.ErrNotFound) && !errors.Is(err, shmring.ErrBadMagic) {
			return nil, err
		}
		if !waiting {
			log.Printf("waiting for region %s", conf.Region.Name)
			waiting = true
		}
		sdNotify()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(attachRetry):
		}
	}
}

func checkHeader(region *shmring.Region, conf *config.Config) error {
	h, err := headers.Parse(region.Metadata())
	if err != nil {
		return fmt.Errorf("reading region camera description: %w", err)
	}
	want := conf.Camera.Header()
	if h.ResX() != want.ResX() || h.ResY() != want.ResY() || h.PixelFormat() != want.PixelFormat() {
		return fmt.Errorf("region expects %dx%d %s, camera gives %dx%d %s",
			h.ResX(), h.ResY(), h.PixelFormat(), want.ResX(), want.ResY(), want.PixelFormat())
	}
	return nil
}

func sdNotify() {
	daemon.SdNotify(false, "WATCHDOG=1")
}

func logConfig(conf *config.Config) {
	log.Printf("region: %s/%s", conf.Region.Dir, conf.Region.Name)
	log.Printf("camera: %s %dx%d per view at %d fps (%s)",
		conf.Camera.Variant, conf.Camera.Width, conf.Camera.Height, conf.Camera.FPS, conf.Camera.PixelFormat)
	log.Printf("power pin: %s", conf.Camera.PowerPin)
	if conf.Camera.WindowStart != "" {
		log.Printf("capture window: %s to %s", conf.Camera.WindowStart, conf.Camera.WindowEnd)
	}
}

func cycleCameraPower(pinName string) error {
	if pinName == "" {
		return nil
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("unknown camera power pin %q", pinName)
	}

	log.Print("turning camera power off")
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to set camera power pin low: %v", err)
	}
	time.Sleep(powerOffDelay)

	log.Print("turning camera power on")
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set camera power pin high: %v", err)
	}

	log.Print("waiting for camera startup")
	time.Sleep(startupDelay)
	log.Print("camera should be ready")
	return nil
}
