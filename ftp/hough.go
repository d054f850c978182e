// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftp

import "github.com/istorrs/meteor/trig"

// Line is a candidate meteor streak extracted from a Hough peak. LengthPx
// starts out equal to Votes (a cheap proxy used for ordering and early
// reject); detector.Engine replaces it with the geometric endpoint-to-endpoint
// length before accepting or rejecting the line.
type Line struct {
	Rho      int32
	Theta    uint16
	Votes    uint32
	LengthPx uint32
}

// Hough is the (rho, theta) vote accumulator. Indexing: rhoIndex = rho +
// RhoMax, thetaIndex = theta in [0, ThetaSteps). It is large (~648KB at the
// spec's default RhoMax=900, ThetaSteps=180) and must be heap-allocated,
// never a stack value.
type Hough struct {
	RhoMax     int
	ThetaSteps int
	tab        *trig.Table
	cells      []uint16 // row-major [2*RhoMax][ThetaSteps].
}

// NewHough allocates a zeroed accumulator sharing the given trig table. The
// table is built once by the caller and shared across the engine's lifetime.
func NewHough(rhoMax, thetaSteps int, tab *trig.Table) *Hough {
	return &Hough{
		RhoMax:     rhoMax,
		ThetaSteps: thetaSteps,
		tab:        tab,
		cells:      make([]uint16, 2*rhoMax*thetaSteps),
	}
}

// Reset zeroes every cell.
func (h *Hough) Reset() {
	for i := range h.cells {
		h.cells[i] = 0
	}
}

func (h *Hough) at(rhoIdx, thetaIdx int) *uint16 {
	return &h.cells[rhoIdx*h.ThetaSteps+thetaIdx]
}

// Vote casts one vote per theta bin for pixel (x,y): for every theta,
// rho = floor((x*cos[theta] + y*sin[theta]) / 1024). Votes whose rho falls
// outside [-RhoMax, RhoMax) are silently skipped (not an error; fewer than
// ThetaSteps cells are touched in that case). Each touched cell saturates at
// 0xFFFF and never wraps.
func (h *Hough) Vote(x, y int32) {
	for t := 0; t < h.ThetaSteps; t++ {
		rhoF := x*int32(h.tab.Cos[t]) + y*int32(h.tab.Sin[t])
		rho := rhoF >> 10 // arithmetic shift: floor(rhoF/1024), rounding negative sums down rather than toward zero.
		idx := int(rho) + h.RhoMax
		if idx < 0 || idx >= 2*h.RhoMax {
			continue
		}
		c := h.at(idx, t)
		if *c < 0xFFFF {
			*c++
		}
	}
}

// FindPeaks scans the interior of the accumulator (excluding the outermost
// ring, so every cell examined has a full 3x3 neighbourhood) in row-major
// (rho, theta) order. A cell is a peak if its vote count is >= threshold and
// no 3x3 neighbour strictly exceeds it. At most maxLines peaks are returned.
func (h *Hough) FindPeaks(threshold uint16, maxLines int) []Line {
	var out []Line
	for r := 1; r < 2*h.RhoMax-1 && len(out) < maxLines; r++ {
		for t := 1; t < h.ThetaSteps-1 && len(out) < maxLines; t++ {
			v := *h.at(r, t)
			if v < threshold {
				continue
			}
			if !h.isLocalMax(r, t, v) {
				continue
			}
			out = append(out, Line{
				Rho:      int32(r - h.RhoMax),
				Theta:    uint16(t),
				Votes:    uint32(v),
				LengthPx: uint32(v),
			})
		}
	}
	return out
}

func (h *Hough) isLocalMax(r, t int, v uint16) bool {
	for dr := -1; dr <= 1; dr++ {
		for dt := -1; dt <= 1; dt++ {
			if dr == 0 && dt == 0 {
				continue
			}
			if *h.at(r+dr, t+dt) > v {
				return false
			}
		}
	}
	return true
}
