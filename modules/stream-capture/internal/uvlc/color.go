package uvlc

// Fixed-point BT.601 full-range conversion, same constants as
// image/color.YCbCrToRGB, widened to int32 inputs so that out-of-range
// IDCT samples saturate instead of wrapping.

const sampleLimit = 4095

func clampSample(v int32) int32 {
	if v < -sampleLimit {
		return -sampleLimit
	}
	if v > sampleLimit {
		return sampleLimit
	}
	return v
}

func saturate(v int32) byte {
	if uint32(v)&0xff000000 == 0 {
		return byte(v >> 16)
	}
	return byte(^(v >> 31))
}

// ycbcrToBGR converts one sample triple to B, G, R.
func ycbcrToBGR(y, cb, cr int32) (b, g, r byte) {
	yy1 := clampSample(y) * 0x10101
	cb1 := clampSample(cb) - 128
	cr1 := clampSample(cr) - 128

	r = saturate(yy1 + 91881*cr1)
	g = saturate(yy1 - 22554*cb1 - 46802*cr1)
	b = saturate(yy1 + 116130*cb1)
	return b, g, r
}
