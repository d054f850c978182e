// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftp

// Pixel is the per-pixel accumulator state kept across a 256-frame block.
//
// Invariants at frame count f (f <= 256): Sum <= 255*f, SumSq <= 255*255*f,
// both fit in their declared widths.
type Pixel struct {
	MaxPixel uint8
	MaxFrame uint8
	Sum      uint16
	SumSq    uint32
}

// Block is one Four-frame Temporal Pixel accumulator: width*height Pixel
// accumulators plus the block-level bookkeeping needed to finalize and
// publish it.
//
// Block is not safe for concurrent use: at any instant it is owned by
// exactly one of the ingest loop (filling it) or a detection worker
// (finalizing/resetting it); ownership transfers happen through
// detector.Engine's handoff, never inside Block itself.
type Block struct {
	Width, Height int
	Pixels        []Pixel

	BlockIndex  uint8 // rolls over mod 256.
	TimestampMs uint64
	FrameCount  int // 0..256, frames accumulated since the last Reset.
}

// NewBlock allocates a zeroed block of the given detection resolution.
func NewBlock(w, h int) *Block {
	return &Block{
		Width:  w,
		Height: h,
		Pixels: make([]Pixel, w*h),
	}
}

// Reset zeroes all pixel state, stamps the block with tsMs (the timestamp of
// the first frame of the new block) and advances BlockIndex mod 256.
func (b *Block) Reset(tsMs uint64) {
	for i := range b.Pixels {
		b.Pixels[i] = Pixel{}
	}
	b.TimestampMs = tsMs
	b.FrameCount = 0
	b.BlockIndex++
}

// Update folds one luma plane into the accumulator. stride must be >= Width;
// frameIdx is the frame's position within the block (0..255), truncated to
// 8 bits to become Pixel.MaxFrame. Update must be called at most
// Config.BlockFrames times between Reset calls.
func (b *Block) Update(y []byte, stride int, frameIdx int) {
	fi := uint8(frameIdx)
	for row := 0; row < b.Height; row++ {
		src := y[row*stride : row*stride+b.Width]
		dst := b.Pixels[row*b.Width : row*b.Width+b.Width]
		for col, s := range src {
			p := &dst[col]
			if s > p.MaxPixel {
				p.MaxPixel = s
				p.MaxFrame = fi
			}
			p.Sum += uint16(s)
			p.SumSq += uint32(s) * uint32(s)
		}
	}
	b.FrameCount++
}

// Finalize computes the four output planes (max, max-frame, average,
// standard deviation), each W*H bytes, saturating every value to [0,255].
// Finalize must not be called before at least one Update since the last
// Reset; callers are responsible for that ordering.
func (b *Block) Finalize(outMax, outMaxFrame, outAvg, outStd []uint8) {
	f := b.FrameCount
	if f < 1 {
		f = 1
	}
	for i, p := range b.Pixels {
		outMax[i] = p.MaxPixel
		outMaxFrame[i] = p.MaxFrame

		avg := uint32(p.Sum) / uint32(f)
		if avg > 255 {
			avg = 255
		}
		outAvg[i] = uint8(avg)

		meanSq := avg * avg
		sumSqMean := p.SumSq / uint32(f)
		var variance uint32
		if sumSqMean > meanSq {
			variance = sumSqMean - meanSq
		}
		std := isqrt(variance)
		if std > 255 {
			std = 255
		}
		outStd[i] = uint8(std)
	}
}

// isqrt returns floor(sqrt(n)) using Newton's method, starting from n and
// iterating until the next estimate stops decreasing.
func isqrt(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	x := uint64(n)
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + uint64(n)/x) / 2
	}
	return uint32(x)
}
