// Package lifecycle provides open/close composition helpers and the
// two-phase Stoppable contract used by Engine shutdown.
package lifecycle

import (
	"fmt"
	"io"
	"time"
)

// OpenCloser is something that can be opened and closed.
type OpenCloser interface {
	Open() error
	io.Closer
}

// Opener is a helper to abstract the pattern of opening multiple things,
// exiting early if any open fails, and closing any of the opened things
// in the case of failure.
type Opener struct {
	opened []io.Closer
	err    error
}

// Open attempts to open the resource. If an error has happened already
// then no calls are made to the resource.
func (o *Opener) Open(res OpenCloser) {
	if o.err != nil {
		return
	}
	o.err = res.Open()
	if o.err == nil {
		o.opened = append(o.opened, res)
	}
}

// Done returns the error of the first open and closes in reverse
// order any opens that have already happened if there was an error.
func (o *Opener) Done() error {
	if o.err == nil {
		return nil
	}
	for i := len(o.opened) - 1; i >= 0; i-- {
		o.opened[i].Close()
	}
	return o.err
}

// Closer is a helper to abstract the pattern of closing multiple
// things and keeping track of the first encountered error.
type Closer struct {
	err error
}

// Close closes the closer and keeps track of the first error.
func (c *Closer) Close(cl io.Closer) {
	if err := cl.Close(); c.err == nil {
		c.err = err
	}
}

// Done returns the first error.
func (c *Closer) Done() error {
	return c.err
}

// ShutdownMode selects how a Stoppable winds down outstanding work.
type ShutdownMode int

const (
	// ShutdownASAP abandons outstanding in-flight work immediately.
	ShutdownASAP ShutdownMode = iota
	// ShutdownDrain lets outstanding in-flight work finish naturally
	// before the Stoppable reports itself stopped.
	ShutdownDrain
)

// Stoppable is the two-phase shutdown contract that Engine implements
// (PageManager does not): Shutdown requests a stop in the given mode
// without blocking, and Wait blocks (up to timeout) for the stop to
// complete.
type Stoppable interface {
	// Shutdown requests the component stop, in the given mode. It does
	// not block for in-flight work to finish; call Wait for that.
	Shutdown(mode ShutdownMode)
	// Wait blocks until Shutdown has completed, or timeout elapses.
	// A timeout of 0 waits indefinitely.
	Wait(timeout time.Duration) error
}

// Stopper is a reusable Stoppable implementation built on Resource: ASAP
// shuts down immediately and reports done without waiting on in-flight
// references, while drain waits for every acquired Reference to release.
type Stopper struct {
	res  Resource
	done chan struct{}
}

// NewStopper returns a Stopper ready to accept references via Acquire.
func NewStopper() *Stopper {
	s := &Stopper{done: make(chan struct{})}
	s.res.Open()
	return s
}

// Acquire obtains a reference that must be Released by the caller once
// its in-flight work completes. Acquire fails once Shutdown has been
// called.
func (s *Stopper) Acquire() (*Reference, error) {
	return s.res.Acquire()
}

// Shutdown requests a stop and returns without blocking; call Wait to
// block for completion. In ShutdownASAP mode, in-flight references are
// abandoned and the Stopper is immediately done. In ShutdownDrain mode,
// a background goroutine waits for every acquired Reference to release
// before the Stopper reports done.
func (s *Stopper) Shutdown(mode ShutdownMode) {
	if mode == ShutdownDrain {
		go func() {
			s.res.Close()
			close(s.done)
		}()
		return
	}

	s.res.signalClose()
	close(s.done)
}

// Wait blocks until Shutdown has been called and, in drain mode, until
// all acquired references have released. A timeout of 0 waits
// indefinitely.
func (s *Stopper) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-s.done
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("lifecycle: wait timed out after %s", timeout)
	}
}
