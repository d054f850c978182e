// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detector

import "encoding/json"

// meteorCandidate is the published "candidate" object describing one
// accepted Hough peak.
type meteorCandidate struct {
	Rho      int32  `json:"rho"`
	Theta    uint16 `json:"theta"`
	X1       int32  `json:"x1"`
	Y1       int32  `json:"y1"`
	X2       int32  `json:"x2"`
	Y2       int32  `json:"y2"`
	LengthPx uint32 `json:"length_px"`
	Votes    uint32 `json:"votes"`
}

// meteorEvent is the POST /event body for a published detection.
type meteorEvent struct {
	CameraID     string          `json:"camera_id"`
	Type         string          `json:"type"`
	TimestampMs  uint64          `json:"timestamp_ms"`
	BlockStartMs uint64          `json:"block_start_ms"`
	Candidate    meteorCandidate `json:"candidate"`
}

func (e meteorEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
