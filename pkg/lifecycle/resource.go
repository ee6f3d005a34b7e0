package lifecycle

import (
	"fmt"
	"sync"
)

// Resource keeps track of references to something that can be acquired
// and released, and allows blocking until all references are gone. It
// underlies Stoppable's drain behavior: a drain waits for every acquired
// Reference to be released before the resource is considered stopped.
type Resource struct {
	stmu sync.Mutex     // protects state transitions
	chmu sync.RWMutex   // protects channel mutations
	ch   chan struct{}  // signals references to close
	wg   sync.WaitGroup // counts outstanding references
}

// Open marks the resource as open, allowing new references to be acquired.
func (res *Resource) Open() {
	res.stmu.Lock()
	defer res.stmu.Unlock()

	res.chmu.Lock()
	res.ch = make(chan struct{})
	res.chmu.Unlock()
}

// Close signals outstanding references to wind down and blocks until they
// are all released.
func (res *Resource) Close() {
	res.signalClose()
	res.wg.Wait() // wait for any acquired references
}

// signalClose closes the signal channel and stops future Acquires without
// waiting for outstanding references to release, used by an ASAP shutdown
// that abandons in-flight work rather than draining it.
func (res *Resource) signalClose() {
	res.stmu.Lock()
	defer res.stmu.Unlock()

	res.chmu.Lock()
	if res.ch != nil {
		close(res.ch) // signal any references.
		res.ch = nil  // stop future Acquires
	}
	res.chmu.Unlock()
}

// Opened returns true if the resource is currently open. It may be
// immediately stale in the presence of concurrent Open and Close calls.
func (res *Resource) Opened() bool {
	res.chmu.RLock()
	opened := res.ch != nil
	res.chmu.RUnlock()

	return opened
}

// Acquire returns a Reference used to keep the resource alive. It fails
// once the resource has begun closing.
func (res *Resource) Acquire() (*Reference, error) {
	res.chmu.RLock()
	defer res.chmu.RUnlock()

	ch := res.ch
	if ch == nil {
		return nil, errResourceClosed
	}

	res.wg.Add(1)
	return &Reference{wg: &res.wg, ch: ch}, nil
}

var errResourceClosed = fmt.Errorf("lifecycle: resource closed")

// Reference is an open reference for some resource.
type Reference struct {
	once sync.Once
	wg   *sync.WaitGroup
	ch   <-chan struct{}
}

// Closing returns a channel that is closed when the associated resource
// begins closing.
func (ref *Reference) Closing() <-chan struct{} { return ref.ch }

// Release frees the Reference. It is safe to call multiple times.
func (ref *Reference) Release() {
	ref.once.Do(func() {
		ref.wg.Done()
	})
}

// Close makes a Reference an io.Closer. It is safe to call multiple times.
func (ref *Reference) Close() error {
	ref.Release()
	return nil
}

// References is a helper to aggregate a group of references.
type References []*Reference

// Release releases all of the references. It is safe to call multiple times.
func (refs References) Release() {
	for _, ref := range refs {
		ref.Release()
	}
}

// Close makes References an io.Closer. It is safe to call multiple times.
func (refs References) Close() error {
	refs.Release()
	return nil
}
