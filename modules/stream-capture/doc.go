// Package streamcapture acquires live video from AR.Drone class vehicles and
// keeps the latest decoded picture available to a consumer goroutine.
//
// Two vehicle generations are supported:
//
//   - Legacy: request/response UDP on port 5555, one UVLC coded picture per
//     datagram, 320x240 unless a picture header says otherwise.
//   - Modern: TCP on port 5555 carrying PaVE framed H.264, decoded by a
//     registered backend (see package codec).
//
// # Quick Start
//
//	import _ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
//
//	cfg := streamcapture.DefaultConfig()
//	cfg.Address = "192.168.1.1"
//	cfg.Generation = streamcapture.GenerationModern
//
//	s, err := streamcapture.NewSession(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Finalize()
//
//	for {
//	    frame, err := s.GetFrame() // BGR24, never blocks on the network
//	    if err != nil {
//	        break // session stopped
//	    }
//	    render(frame)
//	}
//
// # Lifecycle
//
//	Uninitialized --Initialize--> Running --Stop--> Stopping --> Stopped
//
// A transport failure (connection closed, end of a replay, no data for
// StallTimeout) stops the session by itself with StopTransportFailure; the
// acquisition goroutine releases every resource before Stopped is reported.
// Decode failures only drop the packet. A Stopped session is not reused:
// create a new one, or let a Supervisor do it with exponential backoff.
//
// Every transport read is bounded by ReadTimeout, so Stop followed by
// Finalize returns within about one read timeout.
//
// # Frames
//
// Decoded pictures go into a single slot, latest-wins exchange guarded by a
// mutex. GetFrame copies the slot out. When the stream resolution differs
// from the configured Width x Height the copy is scaled (nearest neighbour).
// Before the first decoded picture GetFrame returns an all-black frame.
//
// # Events
//
// started, stopped and (for supervisors) restarting events are published on
// an eventbus.Bus; subscribe through Events().
//
// # Replay
//
// Config.ReplayFile replaces the network with a recording: a pcap/pcapng
// capture of the legacy UDP exchange, or a raw dump of the modern TCP
// stream. End of file is a transport failure.
package streamcapture
