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

package capture

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/window"

	"github.com/TheCacophonyProject/stereo-streamer/shmring"
	"github.com/TheCacophonyProject/stereo-streamer/throttle"
)

// CaptureError is returned by Worker.Run when the camera failed. The
// camera may recover after being reopened or power cycled.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return "capture failed: " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Worker moves frames from a camera into a region. Capture only runs
// while a consumer has requested the stream and, when a window is set,
// while the window is active.
type Worker struct {
	region   *shmring.Region
	producer *shmring.Producer
	camera   Camera
	pacer    *throttle.FramePacer

	// Window limits capture to part of the day when set.
	Window *window.Window
	// Notify is called every NotifyInterval frames, for example to pet
	// the systemd watchdog.
	Notify         func()
	NotifyInterval int
	// FPSLogInterval is the number of frames between capture rate log
	// lines. Zero disables them.
	FPSLogInterval int

	frames uint64
	now    func() time.Time
}

// NewWorker checks the region matches the camera configuration.
func NewWorker(region *shmring.Region, camera Camera, conf *Config, paced bool) (*Worker, error) {
	if region.SlotSize() != conf.FrameSize() {
		return nil, fmt.Errorf("%w: region slots are %d bytes, camera frames are %d",
			shmring.ErrSizeMismatch, region.SlotSize(), conf.FrameSize())
	}
	w := &Worker{
		region:         region,
		producer:       shmring.NewProducer(region),
		camera:         camera,
		NotifyInterval: 5 * conf.FPS,
		FPSLogInterval: conf.FPSLogInterval,
		now:            time.Now,
	}
	if paced {
		w.pacer = throttle.NewFramePacer(conf.FPS)
	}
	return w, nil
}

// Frames returns the number of frames published.
func (w *Worker) Frames() uint64 {
	return atomic.LoadUint64(&w.frames)
}

// Run captures until ctx is done or the camera fails.
func (w *Worker) Run(ctx context.Context) error {
	notifyCount := 0
	rateCount := 0
	t0 := w.now()
	for {
		if !w.region.StreamRequested() {
			log.Print("waiting for stream request")
			if err := w.region.WaitStreamRequested(ctx); err != nil {
				return err
			}
			log.Print("stream requested, capturing")
			rateCount = 0
			t0 = w.now()
		}

		if w.Window != nil && !w.Window.Active() {
			until := w.Window.Until()
			log.Printf("outside capture window, sleeping for %s", until.Round(time.Second))
			if err := sleep(ctx, until); err != nil {
				return err
			}
			continue
		}

		if w.pacer != nil {
			w.pacer.Wait()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.producer.Fill(w.camera.Capture); err != nil {
			if err == shmring.ErrClosed {
				return err
			}
			return &CaptureError{err}
		}
		atomic.AddUint64(&w.frames, 1)

		if w.Notify != nil && w.NotifyInterval > 0 {
			if notifyCount++; notifyCount >= w.NotifyInterval {
				w.Notify()
				notifyCount = 0
			}
		}

		if w.FPSLogInterval > 0 {
			if rateCount++; rateCount >= w.FPSLogInterval {
				t1 := w.now()
				log.Printf("capturing at %.1f fps", float64(rateCount)/t1.Sub(t0).Seconds())
				t0 = t1
				rateCount = 0
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
