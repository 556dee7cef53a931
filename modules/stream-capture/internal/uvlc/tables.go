package uvlc

// zigzag maps scan position to natural (row-major) coefficient index.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// dquant holds the H.263 quantizer deltas selected by the 2-bit MBDIFF field.
var dquant = [4]int{-1, -2, 1, 2}

const (
	minQuant = 1
	maxQuant = 31

	// tableQuant selects the fixed quantization table instead of the
	// linear one.
	tableQuant = 31
)

// quantTable returns the 64 natural-order quantizer steps for quant q.
func quantTable(q int) [64]int32 {
	var t [64]int32
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			if q == tableQuant {
				t[i*8+j] = int32(3 + 2*(i+j))
			} else {
				t[i*8+j] = int32(1 + (1+i+j)*q)
			}
		}
	}
	return t
}

// quantTables caches every table; index is the quantizer value.
var quantTables = func() [maxQuant + 1][64]int32 {
	var all [maxQuant + 1][64]int32
	for q := minQuant; q <= maxQuant; q++ {
		all[q] = quantTable(q)
	}
	return all
}()

func clampQuant(q int) int {
	if q < minQuant {
		return minQuant
	}
	if q > maxQuant {
		return maxQuant
	}
	return q
}
