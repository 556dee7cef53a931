package pave

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ContainsIDR reports whether the Annex-B access unit carries an IDR slice.
func ContainsIDR(au []byte) bool {
	var ab h264.AnnexB
	if ab.Unmarshal(au) != nil {
		return false
	}
	for _, nalu := range ab {
		if len(nalu) > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeIDR {
			return true
		}
	}
	return false
}

// SPSDimensions returns the picture size declared by the first SPS of the
// Annex-B access unit.
func SPSDimensions(au []byte) (width, height int, ok bool) {
	var ab h264.AnnexB
	if ab.Unmarshal(au) != nil {
		return 0, 0, false
	}
	for _, nalu := range ab {
		if len(nalu) == 0 || h264.NALUType(nalu[0]&0x1F) != h264.NALUTypeSPS {
			continue
		}
		var sps h264.SPS
		if sps.Unmarshal(nalu) != nil {
			return 0, 0, false
		}
		return sps.Width(), sps.Height(), true
	}
	return 0, 0, false
}

// Keyframe reports whether f starts a decodable sequence: either the header
// says so or the payload holds an IDR slice.
func (f *Frame) Keyframe() bool {
	return f.Header.Keyframe() || ContainsIDR(f.Payload)
}
