// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftp

// Candidates holds the coordinates of pixels flagged as possible meteor
// streak members, as two parallel arrays capped at a fixed capacity.
type Candidates struct {
	X, Y     []int32
	Capacity int
	// Saturated is true once Capacity was reached: the scan stopped early
	// and the true candidate count may be larger. The caller (detector.Engine)
	// treats a saturated scan as a global brightness event, not a meteor.
	Saturated bool
}

// NewCandidates allocates a candidate list with room for capacity entries.
func NewCandidates(capacity int) *Candidates {
	return &Candidates{
		X:        make([]int32, 0, capacity),
		Y:        make([]int32, 0, capacity),
		Capacity: capacity,
	}
}

func (c *Candidates) reset() {
	c.X = c.X[:0]
	c.Y = c.Y[:0]
	c.Saturated = false
}

// Scan finds candidate pixels in the finalized planes: pixel (x,y) is a
// candidate iff uint8(max-avg) > uint8(k*std), using 8-bit wrapping
// arithmetic on both sides. This is deliberate: wrapping on the right caps
// k*std at 255 and accepts
// everything past it; wrapping on the left cannot occur because max>=avg.
// Widening the comparison changes reject counts near the saturation band
// and must not be done.
func (c *Candidates) Scan(w, h int, maxPix, avgPix, stdPix []uint8, k uint8) {
	c.reset()
	for i := 0; i < w*h; i++ {
		delta := maxPix[i] - avgPix[i] // never wraps: max >= avg.
		thresh := k * stdPix[i]        // wraps on purpose.
		if delta > thresh {
			c.X = append(c.X, int32(i%w))
			c.Y = append(c.Y, int32(i/w))
			if len(c.X) >= c.Capacity {
				c.Saturated = true
				return
			}
		}
	}
}

// Len returns the number of candidates found so far.
func (c *Candidates) Len() int {
	return len(c.X)
}
