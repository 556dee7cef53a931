package emitter

import (
	"time"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

type eventPayload struct {
	Kind       string    `json:"kind"`
	SessionID  string    `json:"session_id"`
	Generation string    `json:"generation"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newEventPayload(ev eventbus.Event) eventPayload {
	p := eventPayload{
		Kind:       ev.Kind.String(),
		SessionID:  ev.SessionID,
		Generation: ev.Generation,
		Width:      ev.Width,
		Height:     ev.Height,
		Reason:     ev.Reason,
		Attempt:    ev.Attempt,
		Timestamp:  ev.Timestamp,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

type statsPayload struct {
	SessionID         string  `json:"session_id"`
	Generation        string  `json:"generation"`
	State             string  `json:"state"`
	StopReason        string  `json:"stop_reason,omitempty"`
	Decoder           string  `json:"decoder"`
	Resolution        string  `json:"resolution"`
	TargetResolution  string  `json:"target_resolution"`
	PacketsRead       uint64  `json:"packets_read"`
	BytesRead         uint64  `json:"bytes_read"`
	EmptyReads        uint64  `json:"empty_reads"`
	FramesDecoded     uint64  `json:"frames_decoded"`
	FramesPublished   uint64  `json:"frames_published"`
	FramesOverwritten uint64  `json:"frames_overwritten"`
	DecodeErrors      uint64  `json:"decode_errors"`
	ErrorsNetwork     uint64  `json:"errors_network"`
	ErrorsCodec       uint64  `json:"errors_codec"`
	ErrorsResource    uint64  `json:"errors_resource"`
	ErrorsUnknown     uint64  `json:"errors_unknown"`
	FPS               float64 `json:"fps"`
	LatencyMS         int64   `json:"latency_ms"`
	UptimeSeconds     float64 `json:"uptime_s"`
	Reconnects        uint32  `json:"reconnects"`
}

func newStatsPayload(st streamcapture.Stats) statsPayload {
	p := statsPayload{
		SessionID:         st.SessionID,
		Generation:        st.Generation.String(),
		State:             st.State.String(),
		Decoder:           st.Decoder,
		Resolution:        st.Resolution,
		TargetResolution:  st.TargetResolution,
		PacketsRead:       st.PacketsRead,
		BytesRead:         st.BytesRead,
		EmptyReads:        st.EmptyReads,
		FramesDecoded:     st.FramesDecoded,
		FramesPublished:   st.FramesPublished,
		FramesOverwritten: st.FramesOverwritten,
		DecodeErrors:      st.DecodeErrors,
		ErrorsNetwork:     st.ErrorsNetwork,
		ErrorsCodec:       st.ErrorsCodec,
		ErrorsResource:    st.ErrorsResource,
		ErrorsUnknown:     st.ErrorsUnknown,
		FPS:               st.FPSReal,
		LatencyMS:         st.LatencyMS,
		UptimeSeconds:     st.Uptime.Seconds(),
		Reconnects:        st.Reconnects,
	}
	if st.StopReason != streamcapture.StopNone {
		p.StopReason = st.StopReason.String()
	}
	return p
}
