// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stacker implements the full-resolution frame stacker: a running
// sum that becomes an average on block boundary, optional dark-frame
// subtraction, and a lock-free handoff to a background encoder.
package stacker

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/istorrs/meteor/capture"
	"github.com/istorrs/meteor/push"
)

// Config carries the stacker's own parameters.
type Config struct {
	Width, Height  int    `yaml:"-"`
	FramesPerStack int    `yaml:"frames_per_stack"`
	JPEGQuality    int    `yaml:"jpeg_quality"`
	Station        string `yaml:"-"`
	DarkFramePath  string `yaml:"dark_frame_path"`
	TmpDir         string `yaml:"tmp_dir"`
}

// DefaultConfig fills in the stacking cadence and JPEG quality as ordinary
// tunables, picked consistent with the 25fps/256-frame FTP block cadence:
// one stack roughly every ten seconds.
func DefaultConfig() Config {
	return Config{FramesPerStack: 250, JPEGQuality: 85, TmpDir: "/tmp/meteor-stack"}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.FramesPerStack == 0 {
		c.FramesPerStack = d.FramesPerStack
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.TmpDir == "" {
		c.TmpDir = d.TmpDir
	}
	return c
}

// Stats mirrors detector.Stats' shape for the stacker's own publish path.
type Stats struct {
	StacksProduced  uint64
	StacksDropped   uint64
	PublishFailures uint64
}

// pendingStack is what crosses the stacker's single-slot handoff to the
// encoder goroutine.
type pendingStack struct {
	luma, chroma []byte
	tsMs         uint64
	stackIndex   uint32
	metadata     map[string]any
}

// Stacker owns the running accumulators, the averaged output buffers, the
// optional dark frame, and the encoder goroutine.
type Stacker struct {
	cfg     Config
	encoder capture.ImageEncoder
	push    *push.Client
	log     *log.Logger

	lumaAcc, chromaAcc   []uint32
	lumaOut, chromaOut   []byte
	darkLuma, darkChroma []byte
	hasDark              bool

	frameCount int
	stackIndex uint32

	metadataMu sync.Mutex
	metadata   map[string]any

	pending  chan pendingStack
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New builds a Stacker for a w x h luma plane (chroma is half-height,
// matching the luma plane's 4:2:0-style subsampling), loading a dark frame
// from cfg.DarkFramePath if present and sized correctly.
func New(cfg Config, w, h int, encoder capture.ImageEncoder, client *push.Client, logger *log.Logger) *Stacker {
	if logger == nil {
		logger = log.Default()
	}
	cfg.Width, cfg.Height = w, h
	s := &Stacker{
		cfg:        cfg,
		encoder:    encoder,
		push:       client,
		log:        logger.With("component", "stacker"),
		lumaAcc:    make([]uint32, w*h),
		chromaAcc:  make([]uint32, w*(h/2)),
		lumaOut:    make([]byte, w*h),
		chromaOut:  make([]byte, w*(h/2)),
		pending:    make(chan pendingStack, 1),
		stop:       make(chan struct{}),
	}
	s.loadDarkFrame()
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Stacker) loadDarkFrame() {
	if s.cfg.DarkFramePath == "" {
		return
	}
	data, err := os.ReadFile(s.cfg.DarkFramePath)
	if err != nil {
		s.log.Warn("dark frame not loaded", "path", s.cfg.DarkFramePath, "err", err)
		return
	}
	want := len(s.lumaOut) + len(s.chromaOut)
	if len(data) != want {
		s.log.Warn("dark frame size mismatch, ignoring", "path", s.cfg.DarkFramePath, "got", len(data), "want", want)
		return
	}
	s.darkLuma = data[:len(s.lumaOut)]
	s.darkChroma = data[len(s.lumaOut):]
	s.hasDark = true
}

// Close signals the encoder goroutine to exit and waits for it to join.
func (s *Stacker) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Stats returns a snapshot of the stacker's running counters.
func (s *Stacker) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// SetMetadata records a snapshot value (e.g. a motion-ROI counter from an
// external collaborator) to be attached to the next completed stack's
// companion event.
func (s *Stacker) SetMetadata(m map[string]any) {
	s.metadataMu.Lock()
	s.metadata = m
	s.metadataMu.Unlock()
}

// OnFrame folds one full-resolution frame into the running accumulators.
// Called by the ingest thread on every frame; never blocks on I/O.
func (s *Stacker) OnFrame(luma, chroma []byte, tsMs uint64) {
	for i, v := range luma {
		s.lumaAcc[i] += uint32(v)
	}
	for i, v := range chroma {
		s.chromaAcc[i] += uint32(v)
	}
	s.frameCount++
	if s.frameCount < s.cfg.FramesPerStack {
		return
	}

	f := uint32(s.frameCount)
	for i, acc := range s.lumaAcc {
		s.lumaOut[i] = byte(acc / f)
		s.lumaAcc[i] = 0
	}
	for i, acc := range s.chromaAcc {
		s.chromaOut[i] = byte(acc / f)
		s.chromaAcc[i] = 0
	}
	s.frameCount = 0

	if s.hasDark {
		for i, v := range s.lumaOut {
			s.lumaOut[i] = subtractSaturating(v, s.darkLuma[i])
		}
		for i, v := range s.chromaOut {
			s.chromaOut[i] = subtractChroma(v, s.darkChroma[i])
		}
	}

	s.metadataMu.Lock()
	metaSnapshot := s.metadata
	s.metadataMu.Unlock()

	lumaCopy := append([]byte(nil), s.lumaOut...)
	chromaCopy := append([]byte(nil), s.chromaOut...)
	s.stackIndex++
	pb := pendingStack{luma: lumaCopy, chroma: chromaCopy, tsMs: tsMs, stackIndex: s.stackIndex, metadata: metaSnapshot}
	select {
	case s.pending <- pb:
	default:
		s.log.Warn("encode busy, stack dropped", "stack_index", s.stackIndex)
		s.statsMu.Lock()
		s.stats.StacksDropped++
		s.statsMu.Unlock()
	}
}

// subtractSaturating computes max(0, v-d) for luma.
func subtractSaturating(v, d byte) byte {
	if v <= d {
		return 0
	}
	return v - d
}

// subtractChroma computes clamp(v-d+128, 0, 255), assuming the dark frame's
// chroma was captured neutral (128); this assumption is documented, not
// corrected, when it doesn't hold.
func subtractChroma(v, d byte) byte {
	r := int(v) - int(d) + 128
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return byte(r)
}

func (s *Stacker) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case pb := <-s.pending:
			s.encode(pb)
		}
	}
}

func (s *Stacker) encode(pb pendingStack) {
	filename := fmt.Sprintf("STACK_%s_%06d.jpg", s.cfg.Station, pb.stackIndex)
	if err := os.MkdirAll(s.cfg.TmpDir, 0o755); err != nil {
		s.log.Error("staging directory unavailable", "err", err)
		s.bumpPublishFailure()
		return
	}
	path := s.cfg.TmpDir + "/" + filename
	if err := s.encoder.Encode(path, pb.luma, pb.chroma, s.cfg.Width, s.cfg.Height, s.cfg.JPEGQuality); err != nil {
		s.log.Error("image encode failed", "err", err)
		s.bumpPublishFailure()
		return
	}
	defer os.Remove(path)

	failed := false
	if err := s.push.PostStack(path, filename); err != nil {
		failed = true
	}
	evt := stackEvent{
		CameraID:    s.cfg.Station,
		Type:        "stack",
		Filename:    filename,
		TimestampMs: pb.tsMs,
		Metadata:    pb.metadata,
	}
	payload, err := evt.marshal()
	if err != nil {
		s.log.Error("stack event marshal failed", "err", err)
		failed = true
	} else if err := s.push.PostJSON(payload); err != nil {
		failed = true
	}
	if failed {
		s.bumpPublishFailure()
		return
	}

	s.statsMu.Lock()
	s.stats.StacksProduced++
	s.statsMu.Unlock()
}

func (s *Stacker) bumpPublishFailure() {
	s.statsMu.Lock()
	s.stats.PublishFailures++
	s.statsMu.Unlock()
}
