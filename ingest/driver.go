// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ingest owns the background grab loop that pulls frames from the
// capture collaborator, downsamples them to detection resolution, and
// dispatches them to the detection engine and the frame stacker.
package ingest

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/istorrs/meteor/capture"
	"github.com/istorrs/meteor/detector"
	"github.com/istorrs/meteor/stacker"
)

// retryDelay is how long the ingest loop sleeps after a transient capture
// failure before retrying.
const retryDelay = 10 * time.Millisecond

// Driver owns the capture source, the detection engine and the stacker for
// their entire lifetime, and runs the single background grab thread that
// feeds both.
type Driver struct {
	source   capture.Source
	engine   *detector.Engine
	stacker  *stacker.Stacker
	detectW  int
	detectH  int
	log      *log.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New builds a Driver. detectW/detectH is the detection engine's downsample
// target; the full-resolution frame is passed to the stacker unchanged.
func New(source capture.Source, engine *detector.Engine, stack *stacker.Stacker, detectW, detectH int, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		source:  source,
		engine:  engine,
		stacker: stack,
		detectW: detectW,
		detectH: detectH,
		log:     logger.With("component", "ingest"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run drives the grab loop until Close is called. It is meant to be called
// from its own goroutine by the caller (typically cmd/meteor's main).
func (d *Driver) Run() {
	defer close(d.done)
	var downsampled []byte
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		frame, ok := d.source.AcquireFrame()
		if !ok {
			time.Sleep(retryDelay)
			continue
		}

		if downsampled == nil || len(downsampled) != d.detectW*d.detectH {
			downsampled = make([]byte, d.detectW*d.detectH)
		}
		downsample(frame.Luma, frame.Width, frame.Height, downsampled, d.detectW, d.detectH)

		d.engine.PushFrame(downsampled, d.detectW, frame.TimestampMs)
		d.stacker.OnFrame(frame.Luma, frame.Chroma, frame.TimestampMs)

		d.source.ReleaseFrame(frame)
	}
}

// Close stops the grab loop and joins it, then unconditionally joins the
// detection engine and the stacker.
func (d *Driver) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
	d.engine.Close()
	d.stacker.Close()
}

// downsample nearest-neighbour resamples src (srcW x srcH) into dst (dstW x
// dstH): step = src_dim / dst_dim, integer.
func downsample(src []byte, srcW, srcH int, dst []byte, dstW, dstH int) {
	if srcW == dstW && srcH == dstH {
		copy(dst, src)
		return
	}
	stepX := srcW / dstW
	stepY := srcH / dstH
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}
	for y := 0; y < dstH; y++ {
		sy := y * stepY
		if sy >= srcH {
			sy = srcH - 1
		}
		srcRow := src[sy*srcW : sy*srcW+srcW]
		dstRow := dst[y*dstW : y*dstW+dstW]
		for x := 0; x < dstW; x++ {
			sx := x * stepX
			if sx >= srcW {
				sx = srcW - 1
			}
			dstRow[x] = srcRow[sx]
		}
	}
}
