// Package codec defines the decoder contract shared by the acquisition loop
// and the H.264 backends, plus a registry the backends add themselves to.
//
// Backends live in their own packages (decoder/gstreamer, decoder/ffmpeg)
// because they link native libraries. A program selects the ones it wants
// with blank imports, database/sql style:
//
//	import _ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
package codec

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Picture is a decoded, packed BGR24 picture (stride = 3*Width).
//
// Pix may alias decoder-owned memory; it is only valid until the next
// Decode call on the same decoder.
type Picture struct {
	Width  int
	Height int
	Pix    []byte
}

// Config configures an H.264 backend.
type Config struct {
	// Width and Height are the output resolution; pictures are scaled to it.
	Width  int
	Height int

	// DecodeWait bounds how long a backend with asynchronous output waits
	// for a picture after consuming one access unit.
	DecodeWait time.Duration

	// Logger receives backend diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Decoder turns H.264 access units (Annex-B) into BGR pictures.
type Decoder interface {
	// Decode consumes one access unit. It returns (nil, nil) when no
	// picture completed.
	Decode(au []byte) (*Picture, error)

	// Close releases the backend in reverse order of acquisition
	// (scaler, codec). Idempotent.
	Close() error
}

// Factory creates a decoder backend.
type Factory func(cfg Config) (Decoder, error)

// ErrUnknownDecoder is returned by Lookup for unregistered names.
var ErrUnknownDecoder = errors.New("codec: unknown decoder")

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a decoder backend available by name.
// Panics if called twice with the same name or with a nil factory.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("codec: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("codec: Register called twice for decoder " + name)
	}
	factories[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownDecoder, name, namesLocked())
	}
	return f, nil
}

// Names returns the registered backend names, sorted.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Log returns cfg.Logger or the default logger.
func (cfg Config) Log() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

// Validate checks the output dimensions.
func (cfg Config) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("codec: invalid output resolution %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}
