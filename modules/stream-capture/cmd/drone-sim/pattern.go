package main

import "fmt"

// bars are the classic colour bars, BGR.
var bars = [8][3]byte{
	{255, 255, 255}, // white
	{0, 255, 255},   // yellow
	{255, 255, 0},   // cyan
	{0, 255, 0},     // green
	{255, 0, 255},   // magenta
	{0, 0, 255},     // red
	{255, 0, 0},     // blue
	{0, 0, 0},       // black
}

// patternFunc paints picture n into a packed BGR buffer.
type patternFunc func(pix []byte, width, height int, n uint32)

func lookupPattern(name string) (patternFunc, error) {
	switch name {
	case "bars":
		return paintBars, nil
	case "gradient":
		return paintGradient, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q (bars, gradient, solid)", name)
	}
}

// paintBars scrolls the bars one macroblock to the left per picture.
func paintBars(pix []byte, width, height int, n uint32) {
	shift := int(n) * 16
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := bars[((x+shift)%width)*len(bars)/width]
			i := (y*width + x) * 3
			copy(pix[i:i+3], c[:])
		}
	}
}

// paintGradient draws a diagonal ramp whose phase follows n.
func paintGradient(pix []byte, width, height int, n uint32) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			pix[i+0] = byte(x * 255 / width)
			pix[i+1] = byte(y * 255 / height)
			pix[i+2] = byte(int(n) * 8)
		}
	}
}
