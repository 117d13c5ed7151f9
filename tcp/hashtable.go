package tcp

import (
	"net/netip"
	"sync"
)

// FourTuple identifies a TCP connection by remote address and local/remote
// port, the key used by the established hash table. LocalAddr is included
// for embeddings that bind multiple local addresses; [Conn] itself always
// reports the zero [netip.Addr] for it since it tracks only a local port.
type FourTuple struct {
	LocalAddr  netip.Addr
	RemoteAddr netip.Addr
	LocalPort  uint16
	RemotePort uint16
}

// MapHashTable is a reference HashTable implementation backed by a Go map
// guarded by a mutex. It stands in for the hash-table-indexing external
// collaborator: [Conn] never assumes a concrete implementation, only the
// HashTable interface it satisfies.
type MapHashTable struct {
	mu    sync.Mutex
	conns map[FourTuple]*Conn
}

// NewMapHashTable returns an empty, ready to use MapHashTable.
func NewMapHashTable() *MapHashTable {
	return &MapHashTable{conns: make(map[FourTuple]*Conn)}
}

// Hash inserts conn keyed by key. Returns false if the tuple is already present.
func (h *MapHashTable) Hash(key FourTuple, conn *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.conns[key]; exists {
		return false
	}
	h.conns[key] = conn
	return true
}

// Unhash removes key from the table. No-op if absent.
func (h *MapHashTable) Unhash(key FourTuple) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, key)
}

// Lookup retrieves the connection hashed under key, if any.
func (h *MapHashTable) Lookup(key FourTuple) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[key]
	return conn, ok
}

// Len returns the number of currently hashed connections.
func (h *MapHashTable) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
