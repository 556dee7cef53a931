package frameexchange

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

// BytesPerPixel is the size of one packed B,G,R pixel.
const BytesPerPixel = 3

// Frame is a packed 8-bit BGR raster with capture metadata.
//
// Pix holds Height rows of Width pixels, each pixel three bytes in B,G,R
// order, with no row padding (stride is exactly 3*Width).
//
// Frame implements image.Image and draw.Image so it can be fed directly to
// image/png, image/jpeg and golang.org/x/image/draw.
type Frame struct {
	// Pix contains the pixel data, B,G,R interleaved, row-major.
	Pix []byte
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Seq is the monotonic publish sequence number (0 = never published)
	Seq uint64
	// Timestamp is when the producer published the frame
	Timestamp time.Time
	// TraceID identifies the published frame across log lines
	TraceID string
}

// NewFrame allocates a zeroed (black) frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Pix:    make([]byte, width*height*BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

// FrameSize returns the number of bytes of a packed BGR frame.
func FrameSize(width, height int) int {
	return width * height * BytesPerPixel
}

func validDims(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return nil
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * BytesPerPixel
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (f *Frame) PixOffset(x, y int) int {
	return y*f.Stride() + x*BytesPerPixel
}

// BGRAt returns the raw channel values of pixel (x, y).
func (f *Frame) BGRAt(x, y int) (b, g, r uint8) {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return 0, 0, 0
	}
	i := f.PixOffset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetBGR writes the raw channel values of pixel (x, y).
func (f *Frame) SetBGR(x, y int, b, g, r uint8) {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return
	}
	i := f.PixOffset(x, y)
	f.Pix[i] = b
	f.Pix[i+1] = g
	f.Pix[i+2] = r
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	b, g, r := f.BGRAt(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// RGBA64At implements image.RGBA64Image.
func (f *Frame) RGBA64At(x, y int) color.RGBA64 {
	b, g, r := f.BGRAt(x, y)
	return color.RGBA64{
		R: uint16(r) * 0x101,
		G: uint16(g) * 0x101,
		B: uint16(b) * 0x101,
		A: 0xffff,
	}
}

// Set implements draw.Image. Alpha is discarded.
func (f *Frame) Set(x, y int, c color.Color) {
	r, g, b, _ := c.RGBA()
	f.SetBGR(x, y, uint8(b>>8), uint8(g>>8), uint8(r>>8))
}

// SetRGBA64 implements draw.RGBA64Image. Alpha is discarded.
func (f *Frame) SetRGBA64(x, y int, c color.RGBA64) {
	f.SetBGR(x, y, uint8(c.B>>8), uint8(c.G>>8), uint8(c.R>>8))
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := *f
	out.Pix = make([]byte, len(f.Pix))
	copy(out.Pix, f.Pix)
	return &out
}

// ToRGBA converts the frame into a newly allocated *image.RGBA.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+BytesPerPixel, j+4 {
		img.Pix[j+0] = f.Pix[i+2] // R
		img.Pix[j+1] = f.Pix[i+1] // G
		img.Pix[j+2] = f.Pix[i+0] // B
		img.Pix[j+3] = 0xff
	}
	return img
}
