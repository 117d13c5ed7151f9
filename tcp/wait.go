package tcp

import "sync"

// waitSet is a named rendezvous point for goroutines blocked on one of the
// four user-facing operations (connect, accept, send, recv). It stands in
// for a condition variable but composes with context cancellation: a waiter
// selects on Chan() alongside ctx.Done() instead of calling Wait under a
// mutex a connection's own state machine also needs.
//
// Release replaces the channel with a freshly allocated one after closing
// the old one, so a waiter that calls Chan() again after a release gets a
// brand new (open) channel rather than one that is already closed forever.
type waitSet struct {
	mu sync.Mutex
	ch chan struct{}
}

func newWaitSet() *waitSet {
	return &waitSet{ch: make(chan struct{})}
}

// Chan returns the channel to select on. It closes when Release is next called.
func (w *waitSet) Chan() <-chan struct{} {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()
	return ch
}

// Release wakes every current waiter. Safe to call with nobody waiting.
func (w *waitSet) Release() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}

// waitPoints groups four named wait points for the blocking user-facing
// operations: connect/accept/send/recv rendezvous.
type waitPoints struct {
	connect *waitSet
	accept  *waitSet
	send    *waitSet
	recv    *waitSet
}

func newWaitPoints() waitPoints {
	return waitPoints{
		connect: newWaitSet(),
		accept:  newWaitSet(),
		send:    newWaitSet(),
		recv:    newWaitSet(),
	}
}

// wakeAll releases every wait point, used on PeerReset/closure so that no
// blocked user-path call deadlocks waiting on an event that will never come.
func (wp *waitPoints) wakeAll() {
	wp.connect.Release()
	wp.accept.Release()
	wp.send.Release()
	wp.recv.Release()
}
