package uvlc

import "math"

// basis[x][u] = C(u)/2 * cos((2x+1)u*pi/16), C(0) = 1/sqrt(2), C(u>0) = 1.
var basis = func() [8][8]float64 {
	var b [8][8]float64
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			c := 1.0
			if u == 0 {
				c = 1 / math.Sqrt2
			}
			b[x][u] = c / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
	return b
}()

// idct transforms dequantized coefficients in place into samples. Output is
// rounded to nearest and not clamped to 0..255; saturation happens in the
// colour conversion.
func idct(blk *[64]int32) {
	dcOnly := true
	for _, c := range blk[1:] {
		if c != 0 {
			dcOnly = false
			break
		}
	}
	if dcOnly {
		v := int32(math.Round(float64(blk[0]) / 8))
		for i := range blk {
			blk[i] = v
		}
		return
	}

	var tmp [64]float64
	// rows
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var s float64
			for u := 0; u < 8; u++ {
				s += basis[x][u] * float64(blk[y*8+u])
			}
			tmp[y*8+x] = s
		}
	}
	// columns
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var s float64
			for v := 0; v < 8; v++ {
				s += basis[y][v] * tmp[v*8+x]
			}
			blk[y*8+x] = int32(math.Round(s))
		}
	}
}

// fdct is the forward transform matching idct.
func fdct(samples *[64]float64) [64]float64 {
	var tmp, out [64]float64
	for y := 0; y < 8; y++ {
		for u := 0; u < 8; u++ {
			var s float64
			for x := 0; x < 8; x++ {
				s += basis[x][u] * samples[y*8+x]
			}
			tmp[y*8+u] = s
		}
	}
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			var s float64
			for y := 0; y < 8; y++ {
				s += basis[y][v] * tmp[y*8+u]
			}
			out[v*8+u] = s
		}
	}
	return out
}
