// Package uvlc implements the proprietary intra/skip UVLC video format sent
// by first generation vehicles over UDP, one picture per datagram.
//
// Picture layout: a sequence of groups of blocks (one macroblock row each),
// every group introduced by a byte-aligned 22-bit start code. The first
// group carries the picture header, the others only a quantizer. Each
// 16x16 macroblock holds four 8x8 luma blocks and one 8x8 block per chroma
// plane (4:2:0). Coefficients are zigzag scanned and run/level coded.
package uvlc

import (
	"errors"
	"fmt"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

var (
	// ErrCorrupt marks a malformed picture.
	ErrCorrupt = errors.New("uvlc: corrupt picture")

	errTruncated = fmt.Errorf("%w: truncated bitstream", ErrCorrupt)
	errBadCode   = fmt.Errorf("%w: invalid variable length code", ErrCorrupt)
)

const (
	// FormatCIF selects the 88x72 base picture size.
	FormatCIF = 1
	// FormatVGA selects the 160x120 base picture size.
	FormatVGA = 2

	startCodeBits  = 22
	startCodeValue = 1 // start code >> 5
	endOfPicture   = 0x1F

	macroblockSize = 16
	blockSize      = 8

	// maxCodeZeros bounds the prefix of run/level codes.
	maxCodeZeros = 24

	// maxResolution caps picture sizes at 1280x960 (VGA family).
	maxResolution = 4
)

// PictureHeader is the header carried by the first group of blocks.
type PictureHeader struct {
	Format      int
	Resolution  int
	Type        int
	Quant       int
	FrameNumber uint32
}

// Dimensions returns the picture size encoded by Format and Resolution.
func (h PictureHeader) Dimensions() (width, height int, err error) {
	if h.Resolution < 1 || h.Resolution > maxResolution {
		return 0, 0, fmt.Errorf("%w: picture resolution %d", ErrCorrupt, h.Resolution)
	}
	scale := 1 << uint(h.Resolution-1)
	switch h.Format {
	case FormatCIF:
		width, height = 88*scale, 72*scale
	case FormatVGA:
		width, height = 160*scale, 120*scale
	default:
		return 0, 0, fmt.Errorf("%w: picture format %d", ErrCorrupt, h.Format)
	}
	if width%macroblockSize != 0 || height%macroblockSize != 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d is not macroblock aligned", ErrCorrupt, width, height)
	}
	return width, height, nil
}

// HeaderFor returns the format and resolution codes producing width x height.
func HeaderFor(width, height int) (format, resolution int, err error) {
	for res := 1; res <= maxResolution; res++ {
		scale := 1 << uint(res-1)
		if width == 88*scale && height == 72*scale {
			return FormatCIF, res, nil
		}
		if width == 160*scale && height == 120*scale {
			return FormatVGA, res, nil
		}
	}
	return 0, 0, fmt.Errorf("uvlc: no picture format for %dx%d", width, height)
}

// Decoder decodes UVLC pictures into a persistent BGR staging buffer.
//
// Macroblocks marked as not coded keep the pixels of the previous picture,
// so a Decoder must see every picture of a stream in order. Not safe for
// concurrent use.
type Decoder struct {
	width  int
	height int
	pix    []byte // staging buffer, nil after Close

	header PictureHeader
	blocks [6][64]int32
}

// NewDecoder allocates a decoder whose staging buffer starts at
// width x height. The size follows the picture headers afterwards.
func NewDecoder(width, height int) (*Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("uvlc: invalid staging size %dx%d", width, height)
	}
	return &Decoder{
		width:  width,
		height: height,
		pix:    make([]byte, width*height*3),
	}, nil
}

// Resolution returns the current staging size.
func (d *Decoder) Resolution() (width, height int) {
	return d.width, d.height
}

// Header returns the header of the last successfully parsed picture.
func (d *Decoder) Header() PictureHeader {
	return d.header
}

// Close releases the staging buffer. Idempotent.
func (d *Decoder) Close() error {
	d.pix = nil
	return nil
}

// Decode parses one complete picture. The returned picture aliases the
// staging buffer and stays valid until the next Decode.
//
// An empty datagram or a malformed picture yields an error wrapping
// ErrCorrupt; the staging buffer may then hold a partially updated picture,
// which the next good picture overwrites.
func (d *Decoder) Decode(data []byte) (*codec.Picture, error) {
	if d.pix == nil {
		return nil, errors.New("uvlc: decoder closed")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrCorrupt)
	}

	r := newBitReader(data)
	quant := 0
	groups := 0

	for {
		r.align()
		code, err := r.read(startCodeBits)
		if err != nil {
			return nil, fmt.Errorf("uvlc: group %d start code: %w", groups, err)
		}
		if code>>5 != startCodeValue {
			return nil, fmt.Errorf("%w: bad start code 0x%06x", ErrCorrupt, code)
		}

		gob := int(code & 0x1F)
		if gob == endOfPicture {
			break
		}

		if groups == 0 {
			if gob != 0 {
				return nil, fmt.Errorf("%w: picture starts at group %d", ErrCorrupt, gob)
			}
			h, err := readPictureHeader(r)
			if err != nil {
				return nil, err
			}
			w, hgt, err := h.Dimensions()
			if err != nil {
				return nil, err
			}
			d.resize(w, hgt)
			d.header = h
			quant = h.Quant
		} else {
			q, err := r.read(5)
			if err != nil {
				return nil, fmt.Errorf("uvlc: group %d quantizer: %w", gob, err)
			}
			quant = int(q)
		}
		if quant < minQuant {
			return nil, fmt.Errorf("%w: quantizer %d in group %d", ErrCorrupt, quant, gob)
		}

		if gob >= d.height/macroblockSize {
			return nil, fmt.Errorf("%w: group %d outside %dx%d picture", ErrCorrupt, gob, d.width, d.height)
		}

		for mbx := 0; mbx < d.width/macroblockSize; mbx++ {
			if quant, err = d.decodeMacroblock(r, quant, mbx, gob); err != nil {
				return nil, fmt.Errorf("uvlc: macroblock (%d,%d): %w", mbx, gob, err)
			}
		}
		groups++
	}

	if groups == 0 {
		return nil, fmt.Errorf("%w: picture without groups", ErrCorrupt)
	}

	return &codec.Picture{Width: d.width, Height: d.height, Pix: d.pix}, nil
}

func readPictureHeader(r *bitReader) (PictureHeader, error) {
	var h PictureHeader
	fields := []struct {
		bits int
		dst  *int
	}{
		{2, &h.Format},
		{3, &h.Resolution},
		{3, &h.Type},
		{5, &h.Quant},
	}
	for _, f := range fields {
		v, err := r.read(f.bits)
		if err != nil {
			return h, fmt.Errorf("uvlc: picture header: %w", err)
		}
		*f.dst = int(v)
	}
	fn, err := r.read(32)
	if err != nil {
		return h, fmt.Errorf("uvlc: picture header: %w", err)
	}
	h.FrameNumber = fn
	return h, nil
}

// resize re-allocates the staging buffer on a picture size change.
func (d *Decoder) resize(width, height int) {
	if width == d.width && height == d.height {
		return
	}
	d.width, d.height = width, height
	d.pix = make([]byte, width*height*3)
}

// decodeMacroblock decodes one macroblock and returns the (possibly
// updated) quantizer.
func (d *Decoder) decodeMacroblock(r *bitReader, quant, mbx, mby int) (int, error) {
	skip, err := r.bit()
	if err != nil {
		return quant, err
	}
	if skip == 1 {
		return quant, nil
	}

	desc, err := r.read(8)
	if err != nil {
		return quant, err
	}
	if desc&0x40 != 0 {
		dq, err := r.read(2)
		if err != nil {
			return quant, err
		}
		quant = clampQuant(quant + dquant[dq])
	}

	table := &quantTables[quant]
	for b := 0; b < 6; b++ {
		coded := desc&(1<<uint(b)) != 0
		if err := readBlock(r, &d.blocks[b], table, coded); err != nil {
			return quant, err
		}
		idct(&d.blocks[b])
	}

	d.storeMacroblock(mbx, mby)
	return quant, nil
}

func readBlock(r *bitReader, blk *[64]int32, table *[64]int32, coded bool) error {
	*blk = [64]int32{}

	dc, err := r.read(10)
	if err != nil {
		return err
	}
	blk[0] = int32(dc) * table[0]

	if !coded {
		return nil
	}

	pos := 0
	for {
		run, err := readRun(r)
		if err != nil {
			return err
		}
		level, eob, err := readLevel(r)
		if err != nil {
			return err
		}
		if eob {
			return nil
		}
		pos += run + 1
		if pos > 63 {
			return fmt.Errorf("%w: coefficient index %d", ErrCorrupt, pos)
		}
		k := zigzag[pos]
		blk[k] = level * table[k]
	}
}

// readRun decodes "1" -> 0, or 0^k 1 followed by k-1 bits v -> v + 2^(k-1).
func readRun(r *bitReader) (int, error) {
	k, err := r.zeros(maxCodeZeros)
	if err != nil {
		return 0, err
	}
	if k == 0 {
		return 0, nil
	}
	v, err := r.read(k - 1)
	if err != nil {
		return 0, err
	}
	return int(v) + 1<<uint(k-1), nil
}

// readLevel decodes "1" s -> +-1, "01" -> end of block, or 0^k 1 followed
// by k-1 bits v and a sign -> +-(v + 2^(k-1)).
func readLevel(r *bitReader) (level int32, eob bool, err error) {
	k, err := r.zeros(maxCodeZeros)
	if err != nil {
		return 0, false, err
	}
	var mag int32
	switch k {
	case 0:
		mag = 1
	case 1:
		return 0, true, nil
	default:
		v, err := r.read(k - 1)
		if err != nil {
			return 0, false, err
		}
		mag = int32(v) + 1<<uint(k-1)
	}
	sign, err := r.bit()
	if err != nil {
		return 0, false, err
	}
	if sign == 1 {
		mag = -mag
	}
	return mag, false, nil
}

// storeMacroblock colour-converts the six decoded blocks into the staging
// buffer at macroblock (mbx, mby).
func (d *Decoder) storeMacroblock(mbx, mby int) {
	stride := d.width * 3
	x0 := mbx * macroblockSize
	y0 := mby * macroblockSize
	cb := &d.blocks[4]
	cr := &d.blocks[5]

	for y := 0; y < macroblockSize; y++ {
		row := (y0+y)*stride + x0*3
		for x := 0; x < macroblockSize; x++ {
			// Y0 Y1 on top, Y2 Y3 below.
			lb := &d.blocks[(y/blockSize)*2+x/blockSize]
			luma := lb[(y%blockSize)*blockSize+x%blockSize]
			ci := (y/2)*blockSize + x/2

			b, g, r := ycbcrToBGR(luma, cb[ci], cr[ci])
			i := row + x*3
			d.pix[i] = b
			d.pix[i+1] = g
			d.pix[i+2] = r
		}
	}
}
