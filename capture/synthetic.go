// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"math/rand"
	"sync"
	"time"
)

// vector is one cheezy blob of simulated sensor noise, the same shape as
// lepton's fakeLepton noise generator.
type vector struct {
	intensity float64
	x, y      float64
}

type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise(seed int64, w, h int) *noise {
	n := &noise{rand: rand.New(rand.NewSource(seed))}
	n.vectors = make([]vector, 10)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 2
		n.vectors[i].x = n.rand.Float64() * float64(w)
		n.vectors[i].y = n.rand.Float64() * float64(h)
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 0.05
		n.vectors[i].x += n.rand.NormFloat64() * 0.1
		n.vectors[i].y += n.rand.NormFloat64() * 0.1
	}
}

func (n *noise) render(luma []byte, w, h int, baseline uint8) {
	for y := 0; y < h; y++ {
		fy := float64(y)
		row := luma[y*w : y*w+w]
		for x := range row {
			fx := float64(x)
			value := float64(baseline)
			for _, v := range n.vectors {
				d := (v.x-fx)*(v.x-fx) + (v.y-fy)*(v.y-fy) + 1
				value += v.intensity / d
			}
			row[x] = clampByte(value)
		}
	}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Line is an injected bright streak: one frame (FrameIndex, 0-based) gets a
// line of Luma value drawn from (X1,Y1) to (X2,Y2), used to drive
// end-to-end detection scenarios without a camera.
type Line struct {
	FrameIndex     int
	X1, Y1, X2, Y2 int
	Luma           byte
}

// Synthetic is a deterministic, in-process stand-in for a real sensor,
// grounded on go-lepton's fakeLepton noise generator. It produces frames at
// a fixed nominal rate and can have bright lines or global brightness
// surges injected at specific frame indices for testing.
type Synthetic struct {
	Width, Height int
	Baseline      byte
	FrameInterval time.Duration

	mu      sync.Mutex
	noise   *noise
	frameNo int
	lines   map[int][]Line
	surges  map[int]int // frame index -> additive luma surge for that frame.
	closed  bool
	startMs uint64
}

// NewSynthetic builds a synthetic source of the given detection-independent
// full resolution, seeded deterministically so tests are reproducible.
func NewSynthetic(w, h int, baseline byte, frameInterval time.Duration) *Synthetic {
	return &Synthetic{
		Width:         w,
		Height:        h,
		Baseline:      baseline,
		FrameInterval: frameInterval,
		noise:         makeNoise(0, w, h),
		lines:         map[int][]Line{},
		surges:        map[int]int{},
	}
}

// InjectLine schedules a bright line to be drawn into the given frame index.
func (s *Synthetic) InjectLine(l Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[l.FrameIndex] = append(s.lines[l.FrameIndex], l)
}

// InjectSurge adds delta to every pixel of the given frame index, modelling
// a global brightness event (cloud, dew, gain surge).
func (s *Synthetic) InjectSurge(frameIndex int, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surges[frameIndex] = delta
}

// AcquireFrame renders and returns the next synthetic frame. It never
// blocks for real camera I/O; FrameInterval only paces it when non-zero, for
// tests that exercise real-time behavior.
func (s *Synthetic) AcquireFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, false
	}
	if s.FrameInterval > 0 {
		time.Sleep(s.FrameInterval)
	}
	luma := make([]byte, s.Width*s.Height)
	s.noise.update()
	s.noise.render(luma, s.Width, s.Height, s.Baseline)

	if surge, ok := s.surges[s.frameNo]; ok {
		for i, v := range luma {
			luma[i] = clampByte(float64(v) + float64(surge))
		}
	}
	for _, l := range s.lines[s.frameNo] {
		drawLine(luma, s.Width, s.Height, l.X1, l.Y1, l.X2, l.Y2, l.Luma)
	}

	chroma := make([]byte, s.Width*(s.Height/2))
	for i := range chroma {
		chroma[i] = 128
	}

	s.startMs += uint64(s.FrameInterval / time.Millisecond)
	f := Frame{
		Width:       s.Width,
		Height:      s.Height,
		Luma:        luma,
		Chroma:      chroma,
		TimestampMs: s.startMs,
	}
	s.frameNo++
	return f, true
}

// ReleaseFrame is a no-op: Synthetic allocates a fresh buffer per frame
// rather than pooling, since frame counts in tests are small.
func (s *Synthetic) ReleaseFrame(Frame) {}

// Close marks the source closed; subsequent AcquireFrame calls return false.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// drawLine rasterizes a simple Bresenham line of the given luma value.
func drawLine(luma []byte, w, h, x1, y1, x2, y2 int, value byte) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy
	x, y := x1, y1
	for {
		if x >= 0 && x < w && y >= 0 && y < h {
			luma[y*w+x] = value
		}
		if x == x2 && y == y2 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// MonotonicClock satisfies Clock with the milliseconds elapsed since it was
// created, measured on time.Now's monotonic reading.
type MonotonicClock struct{ start time.Time }

// NewMonotonicClock returns a Clock stamped from the current time.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (m *MonotonicClock) NowMs() uint64 {
	return uint64(time.Since(m.start) / time.Millisecond)
}
