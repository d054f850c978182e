// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stacker

import "encoding/json"

// stackEvent is the POST /event companion body for a published stack:
// "type":"stack", filename, timestamp_ms and optional motion metadata.
type stackEvent struct {
	CameraID    string         `json:"camera_id"`
	Type        string         `json:"type"`
	Filename    string         `json:"filename"`
	TimestampMs uint64         `json:"timestamp_ms"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (e stackEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
