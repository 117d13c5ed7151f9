package tcp

import (
	"sync"
	"time"
)

// WallTimers is a reference Timers implementation backed by time.AfterFunc.
// It stands in for "the timer wheel" external collaborator; a production
// embedding may swap in an actual timer wheel keyed by connection without
// [Conn] noticing, since it only calls the Timers interface.
type WallTimers struct {
	mu sync.Mutex
	tw map[*Conn]*time.Timer
}

// NewWallTimers returns a ready to use WallTimers.
func NewWallTimers() *WallTimers {
	return &WallTimers{
		tw: make(map[*Conn]*time.Timer),
	}
}

// ArmTimeWait arms conn's TIME_WAIT timer for duration d.
func (wt *WallTimers) ArmTimeWait(conn *Conn, d time.Duration, onFire func()) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if t, ok := wt.tw[conn]; ok {
		t.Stop()
	}
	wt.tw[conn] = time.AfterFunc(d, func() {
		onFire()
		wt.mu.Lock()
		delete(wt.tw, conn)
		wt.mu.Unlock()
	})
}
