package uvlc

import (
	"fmt"
	"image/color"
	"math"
)

// Encoder produces intra-coded UVLC pictures. Every macroblock is coded; the
// quantizer is constant for the whole picture.
type Encoder struct {
	width       int
	height      int
	format      int
	resolution  int
	quant       int
	frameNumber uint32
}

// NewEncoder creates an encoder for width x height pictures.
func NewEncoder(width, height, quant int) (*Encoder, error) {
	format, res, err := HeaderFor(width, height)
	if err != nil {
		return nil, err
	}
	if width%macroblockSize != 0 || height%macroblockSize != 0 {
		return nil, fmt.Errorf("uvlc: %dx%d is not macroblock aligned", width, height)
	}
	if quant < minQuant || quant > maxQuant {
		return nil, fmt.Errorf("uvlc: quantizer %d out of range %d-%d", quant, minQuant, maxQuant)
	}
	return &Encoder{
		width:      width,
		height:     height,
		format:     format,
		resolution: res,
		quant:      quant,
	}, nil
}

// EncodeBGR encodes one packed BGR picture of the encoder's size.
func (e *Encoder) EncodeBGR(pix []byte) ([]byte, error) {
	if len(pix) < e.width*e.height*3 {
		return nil, fmt.Errorf("uvlc: need %d bytes for %dx%d, have %d",
			e.width*e.height*3, e.width, e.height, len(pix))
	}

	w := &bitWriter{}
	table := &quantTables[e.quant]
	e.frameNumber++

	for mby := 0; mby < e.height/macroblockSize; mby++ {
		e.writeGroupHeader(w, mby)
		for mbx := 0; mbx < e.width/macroblockSize; mbx++ {
			blocks := e.macroblockSamples(pix, mbx, mby)
			var coeffs [6][64]int32
			for b := range blocks {
				coeffs[b] = quantize(fdct(&blocks[b]), table)
			}
			writeMacroblock(w, &coeffs)
		}
	}
	writeEndOfPicture(w)

	return w.bytes(), nil
}

func (e *Encoder) writeGroupHeader(w *bitWriter, gob int) {
	w.align()
	w.write(startCodeValue<<5|uint32(gob), startCodeBits)
	if gob == 0 {
		w.write(uint32(e.format), 2)
		w.write(uint32(e.resolution), 3)
		w.write(0, 3) // picture type: intra
		w.write(uint32(e.quant), 5)
		w.write(e.frameNumber, 32)
		return
	}
	w.write(uint32(e.quant), 5)
}

func writeEndOfPicture(w *bitWriter) {
	w.align()
	w.write(startCodeValue<<5|endOfPicture, startCodeBits)
}

// macroblockSamples returns Y0..Y3, Cb, Cr sample blocks. Chroma is the
// average of each 2x2 neighbourhood.
func (e *Encoder) macroblockSamples(pix []byte, mbx, mby int) [6][64]float64 {
	var blocks [6][64]float64
	stride := e.width * 3
	x0 := mbx * macroblockSize
	y0 := mby * macroblockSize

	for y := 0; y < macroblockSize; y++ {
		for x := 0; x < macroblockSize; x++ {
			i := (y0+y)*stride + (x0+x)*3
			yy, cb, cr := color.RGBToYCbCr(pix[i+2], pix[i+1], pix[i])

			lb := (y/blockSize)*2 + x/blockSize
			blocks[lb][(y%blockSize)*blockSize+x%blockSize] = float64(yy)

			ci := (y/2)*blockSize + x/2
			blocks[4][ci] += float64(cb) / 4
			blocks[5][ci] += float64(cr) / 4
		}
	}
	return blocks
}

func quantize(f [64]float64, table *[64]int32) [64]int32 {
	var q [64]int32
	for k := range f {
		q[k] = int32(math.Round(f[k] / float64(table[k])))
	}
	if q[0] < 0 {
		q[0] = 0
	}
	if q[0] > 1023 {
		q[0] = 1023
	}
	return q
}

// writeMacroblock codes one macroblock; coeffs are quantized, natural order.
func writeMacroblock(w *bitWriter, coeffs *[6][64]int32) {
	var cbp uint32
	for b := range coeffs {
		for _, c := range coeffs[b][1:] {
			if c != 0 {
				cbp |= 1 << uint(b)
				break
			}
		}
	}

	w.write(0, 1) // coded
	w.write(cbp, 8)
	for b := range coeffs {
		w.write(uint32(coeffs[b][0]), 10)
		if cbp&(1<<uint(b)) != 0 {
			writeACs(w, &coeffs[b])
		}
	}
}

func writeACs(w *bitWriter, blk *[64]int32) {
	last := 0
	for pos := 1; pos < 64; pos++ {
		level := blk[zigzag[pos]]
		if level == 0 {
			continue
		}
		writeRun(w, pos-last-1)
		writeLevel(w, level)
		last = pos
	}
	// end of block: run 0 followed by the "01" level escape
	writeRun(w, 0)
	w.write(1, 2)
}

// prefix returns k such that 2^(k-1) <= v < 2^k.
func prefix(v int) int {
	k := 0
	for v > 0 {
		k++
		v >>= 1
	}
	return k
}

func writeRun(w *bitWriter, run int) {
	if run == 0 {
		w.write(1, 1)
		return
	}
	k := prefix(run)
	w.write(1, k+1) // k zeros then a one
	w.write(uint32(run-1<<uint(k-1)), k-1)
}

func writeLevel(w *bitWriter, level int32) {
	sign := uint32(0)
	mag := int(level)
	if level < 0 {
		sign = 1
		mag = -mag
	}
	if mag == 1 {
		w.write(1, 1)
		w.write(sign, 1)
		return
	}
	k := prefix(mag)
	w.write(1, k+1)
	w.write(uint32(mag-1<<uint(k-1)), k-1)
	w.write(sign, 1)
}

// FlatColor is a picture whose every block carries only a DC term.
// Values are DC codes (0-1023) for quantizer 31, where a sample equals
// round(3*code/8); codes may exceed the 0-255 sample range.
type FlatColor struct {
	Y, Cb, Cr uint16
}

// FlatRed decodes to B=0, G=0, R=255 at every pixel.
var FlatRed = FlatColor{Y: 203, Cb: 187, Cr: 800}

// EncodeFlat builds a picture of uniform DC-only macroblocks.
func EncodeFlat(width, height int, c FlatColor, frameNumber uint32) ([]byte, error) {
	e, err := NewEncoder(width, height, tableQuant)
	if err != nil {
		return nil, err
	}
	e.frameNumber = frameNumber - 1

	var coeffs [6][64]int32
	for b := 0; b < 4; b++ {
		coeffs[b][0] = int32(c.Y & 0x3FF)
	}
	coeffs[4][0] = int32(c.Cb & 0x3FF)
	coeffs[5][0] = int32(c.Cr & 0x3FF)

	w := &bitWriter{}
	e.frameNumber++
	for mby := 0; mby < height/macroblockSize; mby++ {
		e.writeGroupHeader(w, mby)
		for mbx := 0; mbx < width/macroblockSize; mbx++ {
			writeMacroblock(w, &coeffs)
		}
	}
	writeEndOfPicture(w)
	return w.bytes(), nil
}
