package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic opens a pcapng section header block.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// PcapConfig configures the replay of a recorded datagram session.
type PcapConfig struct {
	// Path is a pcap or pcapng file.
	Path string
	// SourcePort keeps only UDP packets sent from this port; 0 keeps all.
	SourcePort int
	// Pace replays packets at their capture intervals.
	Pace bool
	// ReadTimeout bounds a single paced wait.
	ReadTimeout time.Duration
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Pcap replays UDP payloads from a capture file. IP fragments are not
// reassembled; fragmented datagrams are skipped.
type Pcap struct {
	cfg  PcapConfig
	file *os.File
	r    packetReader

	pending  []byte
	due      time.Time
	lastCap  time.Time
	lastWall time.Time
	packets  uint64
}

// OpenPcap opens a capture file, detecting pcap or pcapng by its magic.
func OpenPcap(cfg PcapConfig) (*Pcap, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("transport: open capture: %w", err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: read capture magic: %w", err)
	}

	var r packetReader
	if bytes.Equal(magic, pcapngMagic) {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: parse capture %s: %w", cfg.Path, err)
	}

	slog.Info("transport: replaying capture",
		"path", cfg.Path,
		"link_type", r.LinkType().String(),
		"source_port", cfg.SourcePort,
		"paced", cfg.Pace,
	)

	return &Pcap{cfg: cfg, file: f, r: r}, nil
}

// Read copies the next matching UDP payload into buf. It returns io.EOF
// at the end of the capture, and zero bytes with a nil error while a paced
// packet is not due yet.
func (p *Pcap) Read(buf []byte) (int, error) {
	if p.pending == nil {
		payload, ts, err := p.nextPayload()
		if err != nil {
			return 0, err
		}
		p.pending = payload
		p.due = p.schedule(ts)
	}

	if p.cfg.Pace {
		if wait := time.Until(p.due); wait > 0 {
			if p.cfg.ReadTimeout > 0 && wait > p.cfg.ReadTimeout {
				time.Sleep(p.cfg.ReadTimeout)
				return 0, nil
			}
			time.Sleep(wait)
		}
	}

	n := copy(buf, p.pending)
	p.pending = nil
	p.packets++
	return n, nil
}

// schedule maps a capture timestamp onto the wall clock.
func (p *Pcap) schedule(ts time.Time) time.Time {
	now := time.Now()
	if p.lastCap.IsZero() || ts.Before(p.lastCap) {
		p.lastCap, p.lastWall = ts, now
		return now
	}
	due := p.lastWall.Add(ts.Sub(p.lastCap))
	p.lastCap, p.lastWall = ts, due
	return due
}

func (p *Pcap) nextPayload() ([]byte, time.Time, error) {
	for {
		data, ci, err := p.r.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				slog.Info("transport: end of capture", "path", p.cfg.Path, "packets", p.packets)
			}
			return nil, time.Time{}, err
		}

		packet := gopacket.NewPacket(data, p.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			if ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0 {
				continue
			}
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if p.cfg.SourcePort != 0 && int(udp.SrcPort) != p.cfg.SourcePort {
			continue
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)
		return payload, ci.Timestamp, nil
	}
}

// Packets returns the number of payloads returned so far.
func (p *Pcap) Packets() uint64 {
	return p.packets
}

// Close closes the capture file.
func (p *Pcap) Close() error {
	return p.file.Close()
}

// OpenDump opens a raw PaVE byte stream recorded from the TCP video port.
func OpenDump(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open dump: %w", err)
	}
	slog.Info("transport: replaying stream dump", "path", path)
	return f, nil
}
