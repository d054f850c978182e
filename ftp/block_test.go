// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftp

import "testing"

func TestBlock_updateAccumulatesExactSums(t *testing.T) {
	b := NewBlock(2, 2)
	b.Reset(1000)
	frames := [][]byte{
		{10, 20, 30, 40},
		{50, 5, 30, 255},
		{10, 20, 200, 40},
	}
	for i, f := range frames {
		b.Update(f, 2, i)
	}
	if b.FrameCount != len(frames) {
		t.Fatalf("FrameCount = %d, want %d", b.FrameCount, len(frames))
	}

	wantSum := []uint16{10 + 50 + 10, 20 + 5 + 20, 30 + 30 + 200, 40 + 255 + 40}
	wantMax := []uint8{50, 20, 200, 255}
	wantMaxFrame := []uint8{1, 0, 2, 1}
	for i, p := range b.Pixels {
		if p.Sum != wantSum[i] {
			t.Fatalf("pixel %d Sum = %d, want %d", i, p.Sum, wantSum[i])
		}
		if p.MaxPixel != wantMax[i] {
			t.Fatalf("pixel %d MaxPixel = %d, want %d", i, p.MaxPixel, wantMax[i])
		}
		if p.MaxFrame != wantMaxFrame[i] {
			t.Fatalf("pixel %d MaxFrame = %d, want %d", i, p.MaxFrame, wantMaxFrame[i])
		}
		var wantSumSq uint32
		for _, f := range frames {
			wantSumSq += uint32(f[i]) * uint32(f[i])
		}
		if p.SumSq != wantSumSq {
			t.Fatalf("pixel %d SumSq = %d, want %d", i, p.SumSq, wantSumSq)
		}
	}
}

func TestBlock_resetAdvancesIndexAndStampsTimestamp(t *testing.T) {
	b := NewBlock(1, 1)
	if b.BlockIndex != 0 {
		t.Fatalf("initial BlockIndex = %d, want 0", b.BlockIndex)
	}
	b.Reset(42)
	if b.BlockIndex != 1 {
		t.Fatalf("BlockIndex after first Reset = %d, want 1", b.BlockIndex)
	}
	if b.TimestampMs != 42 {
		t.Fatalf("TimestampMs = %d, want 42", b.TimestampMs)
	}
	b.BlockIndex = 255
	b.Reset(43)
	if b.BlockIndex != 0 {
		t.Fatalf("BlockIndex did not wrap mod 256: got %d", b.BlockIndex)
	}
}

func TestBlock_finalizeSaturatesAndAvgLEMax(t *testing.T) {
	b := NewBlock(1, 1)
	b.Reset(0)
	// Every frame pegged at 255: sum/sumsq would overflow byte range, must
	// saturate cleanly to 255 with zero variance.
	frame := []byte{255}
	for i := 0; i < 256; i++ {
		b.Update(frame, 1, i)
	}
	outMax := make([]uint8, 1)
	outMaxFrame := make([]uint8, 1)
	outAvg := make([]uint8, 1)
	outStd := make([]uint8, 1)
	b.Finalize(outMax, outMaxFrame, outAvg, outStd)
	if outMax[0] != 255 {
		t.Fatalf("max = %d, want 255", outMax[0])
	}
	if outAvg[0] != 255 {
		t.Fatalf("avg = %d, want 255", outAvg[0])
	}
	if outStd[0] != 0 {
		t.Fatalf("std = %d, want 0", outStd[0])
	}
	if outAvg[0] > outMax[0] {
		t.Fatalf("avg %d > max %d", outAvg[0], outMax[0])
	}
}

func TestBlock_finalizeVarianceUnderflowClampsToZero(t *testing.T) {
	// Construct a pixel whose integer-truncated mean-square exceeds its
	// integer-truncated sum-of-squares mean, the documented edge case where
	// naive unsigned subtraction would wrap instead of clamping to zero.
	b := &Block{Width: 1, Height: 1, Pixels: []Pixel{{
		MaxPixel: 10,
		MaxFrame: 0,
		Sum:      7, // avg = 7/3 = 2 (truncated), meanSq = 4.
		SumSq:    10,
	}}, FrameCount: 3}
	outMax := make([]uint8, 1)
	outMaxFrame := make([]uint8, 1)
	outAvg := make([]uint8, 1)
	outStd := make([]uint8, 1)
	b.Finalize(outMax, outMaxFrame, outAvg, outStd)
	// sumSqMean = 10/3 = 3 (truncated) < meanSq = 4: must clamp to 0, not wrap.
	if outStd[0] != 0 {
		t.Fatalf("std = %d, want 0 (clamped, not wrapped)", outStd[0])
	}
}

func TestBlock_finalizeZeroFrameCountDoesNotDivideByZero(t *testing.T) {
	b := NewBlock(1, 1)
	b.Reset(0)
	outMax := make([]uint8, 1)
	outMaxFrame := make([]uint8, 1)
	outAvg := make([]uint8, 1)
	outStd := make([]uint8, 1)
	b.Finalize(outMax, outMaxFrame, outAvg, outStd)
	if outAvg[0] != 0 || outStd[0] != 0 {
		t.Fatalf("got avg=%d std=%d, want 0,0", outAvg[0], outStd[0])
	}
}

func TestIsqrt(t *testing.T) {
	cases := map[uint32]uint32{
		0:        0,
		1:        1,
		3:        1,
		4:        2,
		8:        2,
		9:        3,
		65025:    255, // 255^2
		65026:    255,
		16777216: 4096,
	}
	for n, want := range cases {
		if got := isqrt(n); got != want {
			t.Fatalf("isqrt(%d) = %d, want %d", n, got, want)
		}
	}
}
