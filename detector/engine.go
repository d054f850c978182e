// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package detector owns the double-buffered FTP blocks and the Hough
// accumulator built on top of them, and orchestrates publication of
// validated meteor streaks. This is the busiest package in the repository.
package detector

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/istorrs/meteor/ftp"
	"github.com/istorrs/meteor/push"
	"github.com/istorrs/meteor/trig"
)

// maxLines caps how many Hough peaks FindPeaks returns per block; only the
// first one that survives validation is ever published (one detection per
// block, by design), but the engine still looks past a rejected peak to
// find one that does.
const maxLines = 64

// Config is the immutable detection configuration, shared verbatim with the
// ftp package since both the block accumulator and the engine built on it
// are configured from the same record.
type Config = ftp.Config

// pendingBlock is what crosses the single-slot handoff from PushFrame to
// the worker: which of the two blocks is ready, plus the timestamp of its
// last frame (the block's completion timestamp, distinct from the block's
// own first-frame timestamp).
type pendingBlock struct {
	idx          int
	completionTs uint64
}

// Stats are running counters read by an operator-facing status loop; they
// are not part of the detection hot path.
type Stats struct {
	BlocksProcessed     uint64
	BlocksDropped       uint64
	CandidatesSaturated uint64
	DetectionsPublished uint64
	PublishFailures     uint64
}

// Engine owns both FTP blocks, the Hough accumulator, the finalized planes
// and candidate buffers, and the worker goroutine that processes completed
// blocks.
type Engine struct {
	cfg   Config
	tab   *trig.Table
	push  *push.Client
	log   *log.Logger

	blocks    [2]*ftp.Block
	activeIdx int

	hough      *ftp.Hough
	candidates *ftp.Candidates

	maxPixel, maxFrame, avgPixel, stdPixel []byte

	frameCount int
	pending    chan pendingBlock

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New builds an Engine and starts its worker goroutine. cfg is defaulted
// with WithDefaults by the caller if needed; New does not apply defaults
// itself so that a zero Config is an obvious caller bug, not a silent one.
func New(cfg Config, tab *trig.Table, client *push.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	w, h := cfg.DetectW, cfg.DetectH
	e := &Engine{
		cfg:        cfg,
		tab:        tab,
		push:       client,
		log:        logger.With("component", "detector"),
		blocks:     [2]*ftp.Block{ftp.NewBlock(w, h), ftp.NewBlock(w, h)},
		hough:      ftp.NewHough(cfg.RhoMax, cfg.ThetaSteps, tab),
		candidates: ftp.NewCandidates(cfg.MaxCandidates),
		maxPixel:   make([]byte, w*h),
		maxFrame:   make([]byte, w*h),
		avgPixel:   make([]byte, w*h),
		stdPixel:   make([]byte, w*h),
		pending:    make(chan pendingBlock, 1),
		stop:       make(chan struct{}),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

// Close signals the worker to exit and waits for it to join. Any block
// still sitting in the pending slot is discarded unprocessed.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Stats returns a snapshot of the engine's running counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// PushFrame feeds one downsampled luma frame into the active FTP block.
// Called by the ingest thread on every frame; never blocks on I/O.
func (e *Engine) PushFrame(y []byte, stride int, tsMs uint64) {
	active := e.blocks[e.activeIdx]
	if e.frameCount == 0 {
		active.Reset(tsMs)
	}
	active.Update(y, stride, e.frameCount)
	e.frameCount++
	if e.frameCount < e.cfg.BlockFrames {
		return
	}

	readyIdx := e.activeIdx
	select {
	case e.pending <- pendingBlock{idx: readyIdx, completionTs: tsMs}:
		e.activeIdx = 1 - e.activeIdx
	default:
		e.log.Warn("processing busy, block dropped", "block_index", active.BlockIndex)
		e.statsMu.Lock()
		e.stats.BlocksDropped++
		e.statsMu.Unlock()
	}
	e.frameCount = 0
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case pb := <-e.pending:
			select {
			case <-e.stop:
				return // shutting down: the pending block is discarded.
			default:
			}
			e.process(pb)
		}
	}
}

func (e *Engine) process(pb pendingBlock) {
	block := e.blocks[pb.idx]
	defer block.Reset(pb.completionTs)

	block.Finalize(e.maxPixel, e.maxFrame, e.avgPixel, e.stdPixel)
	e.statsMu.Lock()
	e.stats.BlocksProcessed++
	e.statsMu.Unlock()

	e.candidates.Scan(e.cfg.DetectW, e.cfg.DetectH, e.maxPixel, e.avgPixel, e.stdPixel, e.cfg.KSigma)

	if e.candidates.Len() < e.cfg.MinCandidates {
		return
	}
	if e.candidates.Saturated {
		e.log.Warn("candidate buffer saturated, treating as brightness event", "count", e.candidates.Len())
		e.statsMu.Lock()
		e.stats.CandidatesSaturated++
		e.statsMu.Unlock()
		return
	}

	e.hough.Reset()
	for i := range e.candidates.X {
		e.hough.Vote(e.candidates.X[i], e.candidates.Y[i])
	}
	peaks := e.hough.FindPeaks(e.cfg.PeakThreshold, maxLines)

	for _, peak := range peaks {
		if peak.Votes < e.cfg.MinVotes {
			continue
		}
		x1, y1, x2, y2, ok := lineEndpoints(float64(peak.Rho), peak.Theta, e.cfg.DetectW, e.cfg.DetectH)
		if !ok {
			continue
		}
		length := lineLength(x1, y1, x2, y2)
		if length < float64(e.cfg.MinLengthPx) {
			continue
		}
		peak.LengthPx = uint32(length + 0.5)
		e.publish(block, pb.completionTs, peak, x1, y1, x2, y2)
		return // at most one detection per block, by design.
	}
}

func (e *Engine) publish(block *ftp.Block, completionTs uint64, peak ftp.Line, x1, y1, x2, y2 int) {
	hdr := ftp.HeaderFromConfig(e.cfg).WithTimestamp(time.UnixMilli(int64(completionTs)))
	filename, err := ftp.Filename(e.cfg.Station, hdr)
	if err != nil {
		e.log.Error("filename generation failed", "err", err)
		e.bumpPublishFailure()
		return
	}

	path, err := ftp.StagingPath(e.cfg, filename)
	if err != nil {
		e.log.Error("staging directory unavailable", "err", err)
		e.bumpPublishFailure()
		return
	}
	if err := ftp.WriteBlockFile(path, hdr, e.maxPixel, e.maxFrame, e.avgPixel, e.stdPixel); err != nil {
		e.log.Error("binary block write failed", "path", path, "err", err)
		e.bumpPublishFailure()
		return
	}
	defer os.Remove(path)

	blockStartMs := block.TimestampMs
	evt := meteorEvent{
		CameraID:     e.cfg.Station,
		Type:         "meteor",
		TimestampMs:  completionTs,
		BlockStartMs: blockStartMs,
		Candidate: meteorCandidate{
			Rho:      peak.Rho,
			Theta:    peak.Theta,
			X1:       int32(x1),
			Y1:       int32(y1),
			X2:       int32(x2),
			Y2:       int32(y2),
			LengthPx: peak.LengthPx,
			Votes:    peak.Votes,
		},
	}
	payload, err := evt.marshal()
	if err != nil {
		e.log.Error("event marshal failed", "err", err)
		e.bumpPublishFailure()
		return
	}

	failed := false
	if err := e.push.PostJSON(payload); err != nil {
		failed = true
	}
	if err := e.push.PostFF(path, filename); err != nil {
		failed = true
	}
	if failed {
		e.bumpPublishFailure()
		return
	}

	e.statsMu.Lock()
	e.stats.DetectionsPublished++
	e.statsMu.Unlock()
}

func (e *Engine) bumpPublishFailure() {
	e.statsMu.Lock()
	e.stats.PublishFailures++
	e.statsMu.Unlock()
}
