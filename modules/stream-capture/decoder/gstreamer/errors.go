package gstreamer

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// errorCategory classifies pipeline errors for telemetry.
type errorCategory int

const (
	// errCategoryCodec: stream or format failures (bad bitstream, caps)
	errCategoryCodec errorCategory = iota
	// errCategoryResource: missing plugins, allocation failures
	errCategoryResource
	// errCategoryUnknown: unclassified
	errCategoryUnknown
)

func (e errorCategory) String() string {
	switch e {
	case errCategoryCodec:
		return "codec"
	case errCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// classifyGStreamerError categorizes a pipeline error.
//
// go-gst's GError does not expose Domain(), so classification relies on
// string matching. Resource keywords are checked first: "missing plugin"
// also mentions the codec.
func classifyGStreamerError(gerr *gst.GError) errorCategory {
	if gerr == nil {
		return errCategoryUnknown
	}
	return classifyMessage(gerr.Error(), gerr.DebugString())
}

func classifyMessage(errMsg, debugStr string) errorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	if containsAny(combined, resourceKeywords) {
		return errCategoryResource
	}
	if containsAny(combined, codecKeywords) {
		return errCategoryCodec
	}
	return errCategoryUnknown
}

var resourceKeywords = []string{
	"missing plugin",
	"no element",
	"no decoder",
	"out of memory",
	"allocat",
	"could not initialize",
}

var codecKeywords = []string{
	"codec",
	"decode",
	"format",
	"negotiation",
	"not negotiated",
	"caps",
	"h264",
	"bitstream",
	"stream error",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
