package host

import "sync"

// SerialDispatcher runs callbacks one at a time on a dedicated goroutine,
// standing in for a host UI thread. Callbacks execute in submission order.
// The queue is unbounded, so Invoke never blocks, even when a callback
// submits further callbacks while the loop is busy.
//
// Close drains pending callbacks before returning; Invoke after Close is a
// silent no-op (a late background continuation racing document teardown is
// normal, not an error).
type SerialDispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialDispatcher starts the dispatch goroutine.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}

// Invoke implements Dispatcher.
func (d *SerialDispatcher) Invoke(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// Close stops the dispatcher after running all queued callbacks.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Signal()
	}
	d.mu.Unlock()
	<-d.done
}

// SyncDispatcher runs callbacks inline on the calling goroutine.
// Only suitable for tests, where deterministic ordering matters more
// than thread affinity.
type SyncDispatcher struct{}

// Invoke implements Dispatcher.
func (SyncDispatcher) Invoke(fn func()) {
	fn()
}
