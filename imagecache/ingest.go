package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	maxUploadBytes  = 5 * 1024 * 1024
	maxUploadPixels = 10_000_000
	maxDimension    = 1920
	jpegQuality     = 85
)

// ProcessError wraps a decode/convert failure during ingestion. Uploads
// that fail with it leave no partial file in the cache.
type ProcessError struct {
	Cause error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("failed to process image: %v", e.Cause)
}

func (e *ProcessError) Unwrap() error { return e.Cause }

// Ingest normalizes and stores an uploaded image. HEIC/HEIF and unknown
// formats are re-encoded as JPEG; oversized images (bytes > 5 MiB or
// pixels > 1e7) are downscaled so neither dimension exceeds 1920 px.
// Inputs that need neither conversion nor resizing are stored verbatim.
// The returned name is the cache file name (<uuid><ext>).
func (s *Store) Ingest(filename string, r io.Reader) (string, error) {
	s.EvictIfNeeded()

	originalExt := strings.ToLower(filepath.Ext(filename))
	isHeic := originalExt == ".heic" || originalExt == ".heif"

	ext := originalExt
	if isHeic || !supportedExts[originalExt] {
		ext = ".jpg"
		log.Printf("[UPLOAD] Format %q will be converted to JPEG", originalExt)
	}

	// Spool the upload to a temp file so decoding can re-read it and so
	// nothing lands under a cache name until processing succeeds.
	tmp, err := os.CreateTemp(s.dir, "temp_*"+originalExt)
	if err != nil {
		return "", &ProcessError{Cause: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", &ProcessError{Cause: err}
	}
	log.Printf("[UPLOAD] Received %s (%d bytes)", filename, size)

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", &ProcessError{Cause: err}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", &ProcessError{Cause: fmt.Errorf("decode (%s): %w", originalExt, err)}
	}

	bounds := img.Bounds()
	needsResize := size > maxUploadBytes || bounds.Dx()*bounds.Dy() > maxUploadPixels
	needsConversion := isHeic || !supportedExts[originalExt]

	if !needsConversion && !needsResize {
		// No recompression needed; store the original bytes verbatim.
		return s.putWithExt(data, ext)
	}

	if needsResize {
		img = scaleDown(img, maxDimension)
		log.Printf("[UPLOAD] Resized %s image to %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", &ProcessError{Cause: fmt.Errorf("encode jpeg: %w", err)}
	}

	name, err := s.putWithExt(buf.Bytes(), ext)
	if err != nil {
		return "", &ProcessError{Cause: err}
	}
	return name, nil
}

// putWithExt writes data under a new id keeping ext as-is. Unlike Put it
// does not re-run the eviction check; Ingest has already done so.
func (s *Store) putWithExt(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write cached image: %w", err)
	}
	return name, nil
}

// scaleDown resizes img with nearest-neighbor sampling so that neither
// dimension exceeds maxDim, preserving aspect ratio.
func scaleDown(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDim && height <= maxDim {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxDim
		newHeight = (height * maxDim) / width
	} else {
		newHeight = maxDim
		newWidth = (width * maxDim) / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := x * width / newWidth
			srcY := y * height / newHeight
			dst.Set(x, y, img.At(srcX+bounds.Min.X, srcY+bounds.Min.Y))
		}
	}
	return dst
}
