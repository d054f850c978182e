// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package trig holds a fixed-point sin/cos table so the Hough line search
// never touches floating point in its inner loop.
package trig

import "math"

// Scale is the fixed-point multiplier applied to every table entry.
const Scale = 1024

// Table holds cos/sin of t*pi/Steps for t in [0, Steps), scaled by Scale
// and rounded to the nearest integer, stored as signed 16 bit.
type Table struct {
	Steps int
	Cos   []int16
	Sin   []int16
}

// New builds a table for theta in [0, steps) degrees-equivalent bins,
// theta(t) = t*pi/steps radians. Computed once; callers should build a
// single Table at construction time and share it, never recompute per call.
func New(steps int) *Table {
	t := &Table{
		Steps: steps,
		Cos:   make([]int16, steps),
		Sin:   make([]int16, steps),
	}
	for i := 0; i < steps; i++ {
		theta := float64(i) * math.Pi / float64(steps)
		t.Cos[i] = int16(math.Round(math.Cos(theta) * Scale))
		t.Sin[i] = int16(math.Round(math.Sin(theta) * Scale))
	}
	return t
}
