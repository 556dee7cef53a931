package gstreamer

import (
	"fmt"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// copyPicture copies a mapped BGR buffer. GStreamer may pad rows to a
// 4-byte stride; padding is removed.
func copyPicture(data []byte, width, height int) (*codec.Picture, error) {
	row := width * 3
	stride := row
	if len(data) != row*height {
		stride = (row + 3) &^ 3
	}
	if len(data) < stride*(height-1)+row {
		return nil, fmt.Errorf("buffer holds %d bytes, %dx%d BGR needs %d", len(data), width, height, row*height)
	}

	pix := make([]byte, row*height)
	if stride == row {
		copy(pix, data)
	} else {
		for y := 0; y < height; y++ {
			copy(pix[y*row:(y+1)*row], data[y*stride:y*stride+row])
		}
	}

	return &codec.Picture{Width: width, Height: height, Pix: pix}, nil
}
