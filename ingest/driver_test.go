// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ingest

import (
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/istorrs/meteor/capture"
	"github.com/istorrs/meteor/detector"
	"github.com/istorrs/meteor/ftp"
	"github.com/istorrs/meteor/push"
	"github.com/istorrs/meteor/stacker"
	"github.com/istorrs/meteor/trig"
)

func TestDownsample_identityWhenSameSize(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	downsample(src, 2, 2, dst, 2, 2)
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestDownsample_nearestNeighbourStep(t *testing.T) {
	// 4x4 source halved to 2x2: expect samples at (0,0),(2,0),(0,2),(2,2).
	src := []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	dst := make([]byte, 4)
	downsample(src, 4, 4, dst, 2, 2)
	want := []byte{1, 3, 9, 11}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestDriver_runFeedsEngineAndStacker(t *testing.T) {
	w, h := 8, 8
	src := capture.NewSynthetic(w, h, 10, 0)

	cfg := ftp.DefaultConfig().WithDefaults()
	cfg.DetectW, cfg.DetectH = 4, 4
	cfg.BlockFrames = 3
	cfg.FFTmpDir = t.TempDir()
	tab := trig.New(cfg.ThetaSteps)
	// Point both publishers at an address nothing listens on; PushFrame and
	// OnFrame must still make progress (publication is best-effort).
	client := push.New(push.Config{ServerIP: "127.0.0.1", ServerPort: 1, TimeoutMS: 50}, log.Default())
	eng := detector.New(cfg, tab, client, log.Default())
	defer eng.Close()

	stCfg := stacker.Config{FramesPerStack: 3, JPEGQuality: 80, TmpDir: t.TempDir()}
	enc := capture.JPEGEncoder{Quality: 80}
	stk := stacker.New(stCfg, w, h, enc, client, log.Default())
	defer stk.Close()

	d := New(src, eng, stk, cfg.DetectW, cfg.DetectH, log.Default())
	go d.Run()

	deadline := time.Now().Add(2 * time.Second)
	for eng.Stats().BlocksProcessed == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d.Close()

	if eng.Stats().BlocksProcessed == 0 {
		t.Fatalf("no blocks processed by the engine")
	}
}

func TestDriver_closeJoinsCleanly(t *testing.T) {
	src := capture.NewSynthetic(4, 4, 10, 0)
	cfg := ftp.DefaultConfig().WithDefaults()
	cfg.DetectW, cfg.DetectH = 2, 2
	cfg.BlockFrames = 4
	cfg.FFTmpDir = t.TempDir()
	tab := trig.New(cfg.ThetaSteps)
	client := push.New(push.Config{ServerIP: "127.0.0.1", ServerPort: 1, TimeoutMS: 50}, log.Default())
	eng := detector.New(cfg, tab, client, log.Default())
	stCfg := stacker.Config{FramesPerStack: 4, JPEGQuality: 80, TmpDir: t.TempDir()}
	stk := stacker.New(stCfg, 4, 4, capture.JPEGEncoder{Quality: 80}, client, log.Default())

	d := New(src, eng, stk, cfg.DetectW, cfg.DetectH, log.Default())
	go d.Run()
	time.Sleep(20 * time.Millisecond)
	d.Close() // must return: joins the grab loop, the engine, and the stacker.
}
