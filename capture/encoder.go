// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"image"
	"image/jpeg"
	"os"
)

// JPEGEncoder is a minimal ImageEncoder backed by the standard library.
// Image encoding itself is an out-of-scope external collaborator (only its
// interface to the core is specified); this implementation exists so the
// stacker's encoder goroutine has something real to call in tests and in a
// standalone binary, not as a performance-sensitive component.
type JPEGEncoder struct {
	Quality int
}

// Encode writes a grayscale JPEG built from the luma plane; chroma is
// accepted for interface symmetry with the stacker's output buffers but
// dropped, since a faithful color JPEG encoder is outside this package's
// concern.
func (e JPEGEncoder) Encode(path string, luma, chroma []byte, w, h int, quality int) error {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, luma)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}
