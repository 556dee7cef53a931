package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// bgrScaler converts decoded pictures to packed BGR24 at a fixed output
// size. The scale context is rebuilt whenever the source geometry or pixel
// format changes.
type bgrScaler struct {
	ssc        *astiav.SoftwareScaleContext
	dst        *astiav.Frame
	srcW, srcH int
	srcPix     astiav.PixelFormat
	dstW, dstH int
	out        []byte
}

func (s *bgrScaler) close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

func (s *bgrScaler) ensure(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()

	if s.ssc != nil && sw == s.srcW && sh == s.srcH && sp == s.srcPix {
		return nil
	}

	s.close()

	ssc, err := astiav.CreateSoftwareScaleContext(
		sw, sh, sp,
		s.dstW, s.dstH, astiav.PixelFormatBgr24,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("ffmpeg: scale context %dx%d %s -> %dx%d bgr24: %w", sw, sh, sp, s.dstW, s.dstH, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(s.dstW)
	dst.SetHeight(s.dstH)
	dst.SetPixelFormat(astiav.PixelFormatBgr24)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("ffmpeg: allocate scaled frame: %w", err)
	}

	s.ssc = ssc
	s.dst = dst
	s.srcW, s.srcH, s.srcPix = sw, sh, sp
	return nil
}

// toBGR scales src into a tightly packed picture. The picture aliases a
// buffer reused by the next call.
func (s *bgrScaler) toBGR(src *astiav.Frame) (*codec.Picture, error) {
	if err := s.ensure(src); err != nil {
		return nil, err
	}

	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("ffmpeg: scale frame: %w", err)
	}

	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: image buffer size: %w", err)
	}
	if cap(s.out) < n {
		s.out = make([]byte, n)
	}
	s.out = s.out[:n]
	if _, err := s.dst.ImageCopyToBuffer(s.out, 1); err != nil {
		return nil, fmt.Errorf("ffmpeg: copy scaled frame: %w", err)
	}

	return &codec.Picture{Width: s.dstW, Height: s.dstH, Pix: s.out}, nil
}
