package streamcapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ResourceTracker observes resource acquisition and release. Tests use it
// to check that every acquired resource is released exactly once.
type ResourceTracker interface {
	Acquired(name string)
	Released(name string)
}

type resource struct {
	name    string
	release func() error
}

// resources is the stream context: everything a session acquired, released
// in reverse order of acquisition.
type resources struct {
	mu       sync.Mutex
	stack    []resource
	tracker  ResourceTracker
	logger   *slog.Logger
	released bool
}

func newResources(logger *slog.Logger, tracker ResourceTracker) *resources {
	return &resources{logger: logger, tracker: tracker}
}

// push records an acquired resource. release must not be nil.
func (r *resources) push(name string, release func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stack = append(r.stack, resource{name: name, release: release})
	if r.tracker != nil {
		r.tracker.Acquired(name)
	}
	r.logger.Debug("stream-capture: resource acquired", "resource", name)
}

// releaseAll releases every resource, last acquired first. Only the first
// call does anything.
func (r *resources) releaseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil
	}
	r.released = true

	var errs []error
	for i := len(r.stack) - 1; i >= 0; i-- {
		res := r.stack[i]
		if err := res.release(); err != nil {
			r.logger.Warn("stream-capture: release failed", "resource", res.name, "error", err)
			errs = append(errs, fmt.Errorf("release %s: %w", res.name, err))
		}
		if r.tracker != nil {
			r.tracker.Released(res.name)
		}
		r.logger.Debug("stream-capture: resource released", "resource", res.name)
	}
	r.stack = nil

	return errors.Join(errs...)
}

// len returns the number of held resources.
func (r *resources) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}
