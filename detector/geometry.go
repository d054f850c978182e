// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detector

import "math"

// lineEndpoints intersects the parametric line x*cos(theta) + y*sin(theta)
// == rho with the four image borders and returns the first two valid
// (inside-image) intersections found. The order of (x1,y1) vs (x2,y2) is an
// implementation detail; it affects only the order fields appear in the
// published event, not whether the line is accepted. This runs once per
// accepted Hough peak, far outside the per-pixel hot loop, so ordinary
// floating point is used.
func lineEndpoints(rho float64, thetaDeg uint16, w, h int) (x1, y1, x2, y2 int, ok bool) {
	theta := float64(thetaDeg) * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	type point struct{ x, y float64 }
	var pts []point
	const eps = 1e-9

	if math.Abs(sinT) > eps {
		if y := rho / sinT; y >= 0 && y <= float64(h-1) {
			pts = append(pts, point{0, y})
		}
		if y := (rho - float64(w-1)*cosT) / sinT; y >= 0 && y <= float64(h-1) {
			pts = append(pts, point{float64(w - 1), y})
		}
	}
	if math.Abs(cosT) > eps {
		if x := rho / cosT; x >= 0 && x <= float64(w-1) {
			pts = append(pts, point{x, 0})
		}
		if x := (rho - float64(h-1)*sinT) / cosT; x >= 0 && x <= float64(w-1) {
			pts = append(pts, point{x, float64(h - 1)})
		}
	}
	if len(pts) < 2 {
		return 0, 0, 0, 0, false
	}
	return round(pts[0].x), round(pts[0].y), round(pts[1].x), round(pts[1].y), true
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func lineLength(x1, y1, x2, y2 int) float64 {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)
	return math.Sqrt(dx*dx + dy*dy)
}
