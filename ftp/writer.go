// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftp

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// headerVersion is the two's-complement encoding of -1, the RMS FTP file
// format's version marker.
const headerVersion uint32 = 0xFFFFFFFF

// Header is the nine little-endian uint32 fields written ahead of the four
// pixel planes. Build one from a Config plus the block being published;
// Year..MillisecondOfSecond are filled in from the block's completion
// timestamp (UTC) by the caller, not derived here, so the same header
// template can be reused block after block.
type Header struct {
	NRows       uint32
	NCols       uint32
	NFrames     uint32
	First       uint32
	CamNo       uint32
	Decimation  uint32
	Interleave  uint32
	FPSMilli    uint32
	Year, Month, Day        int
	Hour, Minute, Second    int
	MillisecondOfSecond     int
}

// HeaderFromConfig builds the static part of a Header for a given block
// size; WithTimestamp fills in the timestamp fields.
func HeaderFromConfig(cfg Config) Header {
	return Header{
		NRows:      uint32(cfg.DetectH),
		NCols:      uint32(cfg.DetectW),
		NFrames:    uint32(cfg.BlockFrames),
		First:      0,
		CamNo:      cfg.CamNo,
		Decimation: 1,
		Interleave: 0,
		FPSMilli:   uint32(cfg.FPS*1000 + 0.5),
	}
}

// WithTimestamp returns a copy of h with the date/time fields overwritten
// from ts, converted to UTC.
func (h Header) WithTimestamp(ts time.Time) Header {
	u := ts.UTC()
	h.Year, h.Month, h.Day = u.Year(), int(u.Month()), u.Day()
	h.Hour, h.Minute, h.Second = u.Hour(), u.Minute(), u.Second()
	h.MillisecondOfSecond = u.Nanosecond() / int(time.Millisecond)
	return h
}

func (h Header) timestamp() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, h.Hour, h.Minute, h.Second, h.MillisecondOfSecond*int(time.Millisecond), time.UTC)
}

// filenamePattern is the strftime layout for the date/time portion of the
// canonical RMS filename; milliseconds are not a standard strftime
// directive so they are appended separately by Filename.
const filenamePattern = "%Y%m%d_%H%M%S"

// Filename generates the canonical "FF_<station>_<YYYYMMDD>_<HHMMSS>_<mmm>_000000.bin"
// name for this header's timestamp, taken in UTC.
func Filename(station string, h Header) (string, error) {
	dt, err := strftime.Format(filenamePattern, h.timestamp())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FF_%s_%s_%03d_000000.bin", station, dt, h.MillisecondOfSecond), nil
}

// WriteBlockFile serialises h plus the four W*H-byte planes to path, in the
// fixed RMS-compatible header-then-planes layout. Every integer field is
// little-endian.
func WriteBlockFile(path string, h Header, maxPixel, maxFrame, avgPixel, stdPixel []byte) (err error) {
	f, cerr := os.Create(path)
	if cerr != nil {
		return cerr
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteBlock(f, h, maxPixel, maxFrame, avgPixel, stdPixel)
}

// WriteBlock writes the same layout as WriteBlockFile to an arbitrary
// io.Writer, for tests and for streaming straight into the push client.
func WriteBlock(w io.Writer, h Header, maxPixel, maxFrame, avgPixel, stdPixel []byte) error {
	var hdr [36]byte
	binary.LittleEndian.PutUint32(hdr[0:4], headerVersion)
	binary.LittleEndian.PutUint32(hdr[4:8], h.NRows)
	binary.LittleEndian.PutUint32(hdr[8:12], h.NCols)
	binary.LittleEndian.PutUint32(hdr[12:16], h.NFrames)
	binary.LittleEndian.PutUint32(hdr[16:20], h.First)
	binary.LittleEndian.PutUint32(hdr[20:24], h.CamNo)
	binary.LittleEndian.PutUint32(hdr[24:28], h.Decimation)
	binary.LittleEndian.PutUint32(hdr[28:32], h.Interleave)
	binary.LittleEndian.PutUint32(hdr[32:36], h.FPSMilli)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, plane := range [][]byte{maxPixel, maxFrame, avgPixel, stdPixel} {
		if _, err := w.Write(plane); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlock parses the layout WriteBlock produces, for round-trip tests.
func ReadBlock(r io.Reader, w, hgt int) (Header, []byte, []byte, []byte, []byte, error) {
	var hdr [36]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, nil, nil, nil, nil, err
	}
	h := Header{
		NRows:      binary.LittleEndian.Uint32(hdr[4:8]),
		NCols:      binary.LittleEndian.Uint32(hdr[8:12]),
		NFrames:    binary.LittleEndian.Uint32(hdr[12:16]),
		First:      binary.LittleEndian.Uint32(hdr[16:20]),
		CamNo:      binary.LittleEndian.Uint32(hdr[20:24]),
		Decimation: binary.LittleEndian.Uint32(hdr[24:28]),
		Interleave: binary.LittleEndian.Uint32(hdr[28:32]),
		FPSMilli:   binary.LittleEndian.Uint32(hdr[32:36]),
	}
	planeSize := w * hgt
	planes := make([][]byte, 4)
	for i := range planes {
		planes[i] = make([]byte, planeSize)
		if _, err := io.ReadFull(r, planes[i]); err != nil {
			return Header{}, nil, nil, nil, nil, err
		}
	}
	return h, planes[0], planes[1], planes[2], planes[3], nil
}

// StagingPath joins a detection's staged filename onto cfg's staging
// directory, creating the directory if needed.
func StagingPath(cfg Config, filename string) (string, error) {
	if err := os.MkdirAll(cfg.FFTmpDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(cfg.FFTmpDir, filename), nil
}
