package main

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

// snapshotWriter saves frames to disk as PNG or JPEG
type snapshotWriter struct {
	dir     string
	format  string
	quality int

	saved  int
	failed int
}

func newSnapshotWriter(dir, format string, quality int) (*snapshotWriter, error) {
	switch format {
	case "", "png":
		format = "png"
	case "jpeg", "jpg":
		format = "jpeg"
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be 1-100, got %d", quality)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &snapshotWriter{dir: dir, format: format, quality: quality}, nil
}

// save writes frame as frame_{seq}_{timestamp}.{ext} and returns the path.
func (w *snapshotWriter) save(frame *streamcapture.Frame) (string, error) {
	ext := "png"
	if w.format == "jpeg" {
		ext = "jpg"
	}
	name := fmt.Sprintf("frame_%06d_%s.%s", frame.Seq, frame.Timestamp.Format("20060102_150405.000"), ext)
	path := filepath.Join(w.dir, name)

	if err := w.write(path, frame); err != nil {
		w.failed++
		return "", err
	}
	w.saved++
	return path, nil
}

func (w *snapshotWriter) write(path string, frame *streamcapture.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	img := frame.ToRGBA()
	switch w.format {
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: w.quality})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", w.format, err)
	}
	return file.Close()
}
