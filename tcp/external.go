package tcp

import "time"

// HashTable is the external established-connections index, keyed by 4-tuple.
// [Conn] hashes itself on reaching ESTABLISHED and unhashes itself on
// reset/close; a failed Hash simply leaves the connection unindexed rather
// than aborting it.
type HashTable interface {
	Hash(key FourTuple, conn *Conn) (ok bool)
	Unhash(key FourTuple)
}

// Timers is the external timer wheel. [Conn] only arms a timer by name;
// firing and scheduling mechanics belong to the collaborator.
type Timers interface {
	// ArmTimeWait arms conn's 2*MSL TIME_WAIT timer, invoking onFire once it expires.
	ArmTimeWait(conn *Conn, d time.Duration, onFire func())
}
