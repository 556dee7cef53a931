package uvlc

// The UVLC bitstream is a sequence of 32-bit little-endian words whose bits
// are consumed most significant first.

type bitReader struct {
	data []byte
	pos  int    // next byte to load
	word uint32 // current word
	left int    // unread bits in word
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) load() bool {
	if r.pos >= len(r.data) {
		return false
	}
	var w uint32
	for i := 0; i < 4; i++ {
		if r.pos+i < len(r.data) {
			w |= uint32(r.data[r.pos+i]) << (8 * i)
		}
	}
	r.pos += 4
	r.word = w
	r.left = 32
	return true
}

// read returns the next n bits (n <= 32).
func (r *bitReader) read(n int) (uint32, error) {
	var v uint64
	for n > 0 {
		if r.left == 0 && !r.load() {
			return 0, errTruncated
		}
		take := n
		if take > r.left {
			take = r.left
		}
		bits := (uint64(r.word) >> uint(r.left-take)) & (1<<uint(take) - 1)
		v = v<<uint(take) | bits
		r.left -= take
		n -= take
	}
	return uint32(v), nil
}

func (r *bitReader) bit() (uint32, error) {
	return r.read(1)
}

// zeros counts and consumes leading zero bits up to and including the
// terminating one bit. It gives up after max zeros.
func (r *bitReader) zeros(max int) (int, error) {
	for k := 0; k <= max; k++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			return k, nil
		}
	}
	return 0, errBadCode
}

// align skips to the next byte boundary.
func (r *bitReader) align() {
	r.left -= r.left % 8
}

// exhausted reports whether no further bit can be read.
func (r *bitReader) exhausted() bool {
	return r.left == 0 && r.pos >= len(r.data)
}

type bitWriter struct {
	out  []byte
	word uint32
	used int // bits written into word
}

func (w *bitWriter) write(v uint32, n int) {
	for n > 0 {
		take := n
		if free := 32 - w.used; take > free {
			take = free
		}
		bits := (uint64(v) >> uint(n-take)) & (1<<uint(take) - 1)
		w.word |= uint32(bits << uint(32-w.used-take))
		w.used += take
		n -= take
		if w.used == 32 {
			w.emit()
		}
	}
}

func (w *bitWriter) emit() {
	w.out = append(w.out,
		byte(w.word), byte(w.word>>8), byte(w.word>>16), byte(w.word>>24))
	w.word = 0
	w.used = 0
}

// align pads with zero bits to the next byte boundary.
func (w *bitWriter) align() {
	if pad := w.used % 8; pad != 0 {
		w.write(0, 8-pad)
	}
}

// bytes flushes the pending word (zero padded) and returns the stream.
func (w *bitWriter) bytes() []byte {
	if w.used > 0 {
		w.emit()
	}
	return w.out
}
