// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ftp implements the Four-frame Temporal Pixel accumulator, the
// Hough-transform line detector built on top of it, and the RMS-compatible
// binary block file format. This is the hardest engineering in the
// repository: it runs once per 256-frame block, with no floating point in
// the hot loop.
package ftp

// Config is the immutable detection configuration. Zero-value fields should
// never reach the detector; WithDefaults() fills them in.
type Config struct {
	DetectW  int `yaml:"detect_w"`
	DetectH  int `yaml:"detect_h"`

	BlockFrames int     `yaml:"block_frames"`
	FPS         float64 `yaml:"fps"`

	KSigma uint8 `yaml:"k_sigma"`

	ThetaSteps int `yaml:"theta_steps"`
	RhoMax     int `yaml:"rho_max"`

	PeakThreshold uint16 `yaml:"peak_threshold"`
	MinVotes      uint32 `yaml:"min_votes"`
	MinLengthPx   uint32 `yaml:"min_length_px"`

	MinCandidates int `yaml:"min_candidates"`
	MaxCandidates int `yaml:"max_candidates"`

	FFTmpDir string `yaml:"ff_tmp_dir"`

	Station string `yaml:"station"`
	CamNo   uint32 `yaml:"cam_no"`
}

// DefaultConfig returns the default detection configuration.
func DefaultConfig() Config {
	return Config{
		DetectW:       640,
		DetectH:       480,
		BlockFrames:   256,
		FPS:           25.0,
		KSigma:        5,
		ThetaSteps:    180,
		RhoMax:        900,
		PeakThreshold: 8,
		MinVotes:      10,
		MinLengthPx:   15,
		MinCandidates: 5,
		MaxCandidates: 4096,
		FFTmpDir:      "/tmp/meteor-ftp",
		Station:       "XX0001",
		CamNo:         1,
	}
}

// WithDefaults overlays zero fields of c with DefaultConfig()'s values.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DetectW == 0 {
		c.DetectW = d.DetectW
	}
	if c.DetectH == 0 {
		c.DetectH = d.DetectH
	}
	if c.BlockFrames == 0 {
		c.BlockFrames = d.BlockFrames
	}
	if c.FPS == 0 {
		c.FPS = d.FPS
	}
	if c.KSigma == 0 {
		c.KSigma = d.KSigma
	}
	if c.ThetaSteps == 0 {
		c.ThetaSteps = d.ThetaSteps
	}
	if c.RhoMax == 0 {
		c.RhoMax = d.RhoMax
	}
	if c.PeakThreshold == 0 {
		c.PeakThreshold = d.PeakThreshold
	}
	if c.MinVotes == 0 {
		c.MinVotes = d.MinVotes
	}
	if c.MinLengthPx == 0 {
		c.MinLengthPx = d.MinLengthPx
	}
	if c.MinCandidates == 0 {
		c.MinCandidates = d.MinCandidates
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.FFTmpDir == "" {
		c.FFTmpDir = d.FFTmpDir
	}
	if c.Station == "" {
		c.Station = d.Station
	}
	if c.CamNo == 0 {
		c.CamNo = d.CamNo
	}
	return c
}
