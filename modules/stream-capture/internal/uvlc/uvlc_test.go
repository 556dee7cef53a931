package uvlc

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitstream_RoundTrip(t *testing.T) {
	w := &bitWriter{}
	w.write(1, 1)
	w.write(0x2A, 6)
	w.align()
	w.write(0x21, startCodeBits)
	w.write(0xDEADBEEF, 32)
	w.write(5, 3)
	data := w.bytes()
	require.Zero(t, len(data)%4, "stream is whole words")

	r := newBitReader(data)
	v, err := r.read(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	v, err = r.read(6)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2A), v)
	r.align()
	v, err = r.read(startCodeBits)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x21), v)
	v, err = r.read(32)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
	v, err = r.read(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)
}

func TestBitstream_LittleEndianWords(t *testing.T) {
	// The first bit read is the MSB of the little-endian word, i.e. the top
	// bit of byte 3.
	r := newBitReader([]byte{0x00, 0x00, 0x00, 0x80})
	b, err := r.bit()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b)

	_, err = r.read(32)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestHeaderDimensions(t *testing.T) {
	tests := []struct {
		format, res   int
		width, height int
		wantErr       bool
	}{
		{FormatVGA, 2, 320, 240, false},
		{FormatCIF, 2, 176, 144, false},
		{FormatVGA, 3, 640, 480, false},
		{FormatVGA, 1, 0, 0, true}, // 160x120 is not macroblock aligned
		{3, 2, 0, 0, true},
		{FormatVGA, 0, 0, 0, true},
	}

	for _, tt := range tests {
		w, h, err := PictureHeader{Format: tt.format, Resolution: tt.res}.Dimensions()
		if tt.wantErr {
			assert.Error(t, err, "format %d res %d", tt.format, tt.res)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.width, w)
		assert.Equal(t, tt.height, h)

		f, res, err := HeaderFor(tt.width, tt.height)
		require.NoError(t, err)
		assert.Equal(t, tt.format, f)
		assert.Equal(t, tt.res, res)
	}
}

// A flat red 320x240 picture decodes to B=0, G=0, R=255 at every pixel.
func TestDecode_FlatRedCanary(t *testing.T) {
	data, err := EncodeFlat(320, 240, FlatRed, 7)
	require.NoError(t, err)

	dec, err := NewDecoder(320, 240)
	require.NoError(t, err)

	pic, err := dec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 320, pic.Width)
	require.Equal(t, 240, pic.Height)
	require.Len(t, pic.Pix, 320*240*3)

	for i := 0; i < len(pic.Pix); i += 3 {
		if pic.Pix[i] != 0 || pic.Pix[i+1] != 0 || pic.Pix[i+2] != 255 {
			t.Fatalf("pixel %d = (%d,%d,%d), want (0,0,255)", i/3, pic.Pix[i], pic.Pix[i+1], pic.Pix[i+2])
		}
	}

	h := dec.Header()
	assert.Equal(t, FormatVGA, h.Format)
	assert.Equal(t, 2, h.Resolution)
	assert.Equal(t, uint32(7), h.FrameNumber)
}

func gradient(width, height int) []byte {
	pix := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			pix[i] = byte(x * 255 / (width - 1))
			pix[i+1] = byte(y * 255 / (height - 1))
			pix[i+2] = byte((x + y) * 255 / (width + height - 2))
		}
	}
	return pix
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	const width, height = 320, 240
	src := gradient(width, height)

	enc, err := NewEncoder(width, height, 2)
	require.NoError(t, err)
	data, err := enc.EncodeBGR(src)
	require.NoError(t, err)

	dec, err := NewDecoder(width, height)
	require.NoError(t, err)
	pic, err := dec.Decode(data)
	require.NoError(t, err)

	var sum float64
	for i := range src {
		sum += math.Abs(float64(src[i]) - float64(pic.Pix[i]))
	}
	mae := sum / float64(len(src))
	t.Logf("✅ %d byte picture, mean abs error %.2f", len(data), mae)
	assert.Less(t, mae, 4.0)
}

func TestDecode_SkippedMacroblocksKeepPrevious(t *testing.T) {
	const width, height = 176, 144
	dec, err := NewDecoder(320, 240)
	require.NoError(t, err)

	red, err := EncodeFlat(width, height, FlatRed, 1)
	require.NoError(t, err)
	_, err = dec.Decode(red)
	require.NoError(t, err)

	// Second picture: only macroblock (0,0) coded, mid grey.
	enc, err := NewEncoder(width, height, tableQuant)
	require.NoError(t, err)
	grey := [6][64]int32{}
	for b := range grey {
		grey[b][0] = 341 // round(3*341/8) = 128
	}
	w := &bitWriter{}
	for mby := 0; mby < height/macroblockSize; mby++ {
		enc.writeGroupHeader(w, mby)
		for mbx := 0; mbx < width/macroblockSize; mbx++ {
			if mbx == 0 && mby == 0 {
				writeMacroblock(w, &grey)
				continue
			}
			w.write(1, 1) // not coded
		}
	}
	writeEndOfPicture(w)

	pic, err := dec.Decode(w.bytes())
	require.NoError(t, err)

	b, g, r := pixel(pic.Pix, width, 3, 3)
	assert.Equal(t, [3]byte{128, 128, 128}, [3]byte{b, g, r}, "coded macroblock")

	b, g, r = pixel(pic.Pix, width, 100, 100)
	assert.Equal(t, [3]byte{0, 0, 255}, [3]byte{b, g, r}, "skipped macroblock keeps previous picture")
}

func TestDecode_DQuantAdjustsQuantizer(t *testing.T) {
	const width, height = 176, 144
	enc, err := NewEncoder(width, height, tableQuant)
	require.NoError(t, err)

	w := &bitWriter{}
	for mby := 0; mby < height/macroblockSize; mby++ {
		enc.writeGroupHeader(w, mby)
		for mbx := 0; mbx < width/macroblockSize; mbx++ {
			w.write(0, 1)
			if mbx == 0 {
				w.write(0x40, 8) // MBDIFF present, no AC
				w.write(0, 2)    // -1: quantizer 31 -> 30, DC step 31
			} else {
				w.write(0, 8)
			}
			for b := 0; b < 6; b++ {
				if b < 4 {
					w.write(8, 10) // luma 8*31/8 = 31
				} else {
					w.write(33, 10) // chroma round(33*31/8) = 128
				}
			}
		}
	}
	writeEndOfPicture(w)

	dec, err := NewDecoder(width, height)
	require.NoError(t, err)
	pic, err := dec.Decode(w.bytes())
	require.NoError(t, err)

	b, g, r := pixel(pic.Pix, width, 0, 0)
	assert.Equal(t, [3]byte{31, 31, 31}, [3]byte{b, g, r})
}

func TestDecode_ResolutionFollowsHeader(t *testing.T) {
	dec, err := NewDecoder(320, 240)
	require.NoError(t, err)

	data, err := EncodeFlat(176, 144, FlatRed, 1)
	require.NoError(t, err)
	pic, err := dec.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, 176, pic.Width)
	assert.Equal(t, 144, pic.Height)
	w, h := dec.Resolution()
	assert.Equal(t, 176, w)
	assert.Equal(t, 144, h)
}

func TestDecode_Errors(t *testing.T) {
	good, err := EncodeFlat(320, 240, FlatRed, 1)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	garbage := make([]byte, 512)
	rng.Read(garbage)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty datagram", nil},
		{"garbage", garbage},
		{"truncated", good[:len(good)/2]},
		{"zeros", make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewDecoder(320, 240)
			require.NoError(t, err)

			_, err = dec.Decode(tt.data)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)

			// The decoder recovers on the next good picture.
			pic, err := dec.Decode(good)
			require.NoError(t, err)
			assert.Equal(t, byte(255), pic.Pix[2])
		})
	}
}

func TestDecode_Closed(t *testing.T) {
	dec, err := NewDecoder(320, 240)
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())

	_, err = dec.Decode([]byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestIDCT_InvertsFDCT(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		var samples [64]float64
		for i := range samples {
			samples[i] = float64(rng.Intn(256))
		}
		f := fdct(&samples)

		var blk [64]int32
		for i := range f {
			blk[i] = int32(math.Round(f[i]))
		}
		idct(&blk)

		for i := range samples {
			if d := math.Abs(float64(blk[i]) - samples[i]); d > 2 {
				t.Fatalf("sample %d: got %d want %.0f", i, blk[i], samples[i])
			}
		}
	}
}

func TestColorConversion(t *testing.T) {
	tests := []struct {
		name      string
		y, cb, cr int32
		want      [3]byte // B, G, R
	}{
		{"black", 0, 128, 128, [3]byte{0, 0, 0}},
		{"white", 255, 128, 128, [3]byte{255, 255, 255}},
		{"red beyond range", 76, 70, 300, [3]byte{0, 0, 255}},
		{"huge values saturate", 100000, 128, 128, [3]byte{255, 255, 255}},
		{"negative saturates", -500, 128, 128, [3]byte{0, 0, 0}},
	}
	for _, tt := range tests {
		b, g, r := ycbcrToBGR(tt.y, tt.cb, tt.cr)
		assert.Equal(t, tt.want, [3]byte{b, g, r}, tt.name)
	}
}

func pixel(pix []byte, width, x, y int) (b, g, r byte) {
	i := (y*width + x) * 3
	return pix[i], pix[i+1], pix[i+2]
}
