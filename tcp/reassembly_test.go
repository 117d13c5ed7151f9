package tcp

import (
	"testing"

	"github.com/soypat/lneto/internal"
)

func TestReassemblyBufferOutOfOrderThenFill(t *testing.T) {
	// Scenario 3: rcv_nxt=2000. Receive {seq=2100,seq_end=2200} first (goes to OFO),
	// then {seq=2000,seq_end=2100}. Expected: both promoted, rcv_nxt=2200.
	var b reassemblyBuffer
	ring := &internal.Ring{Buf: make([]byte, 4096)}

	second := make([]byte, 100)
	for i := range second {
		second[i] = byte(i)
	}
	if ok := b.Insert(2100, 2200, second); !ok {
		t.Fatal("expected OFO insert to succeed")
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}

	nxt, promoted := b.Promote(2000, ring)
	if promoted {
		t.Fatal("nothing should promote before the gap is filled")
	}
	if nxt != 2000 {
		t.Fatalf("rcv_nxt changed without promotion: %d", nxt)
	}

	first := make([]byte, 100)
	for i := range first {
		first[i] = byte(200 + i)
	}
	if ok := b.Insert(2000, 2100, first); !ok {
		t.Fatal("expected contiguous predecessor insert to succeed")
	}

	nxt, promoted = b.Promote(2000, ring)
	if !promoted {
		t.Fatal("expected promotion once the gap is filled")
	}
	if nxt != 2200 {
		t.Fatalf("rcv_nxt = %d, want 2200", nxt)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer should be empty after promotion, Len()=%d", b.Len())
	}
	if ring.Buffered() != 200 {
		t.Fatalf("ring buffered = %d, want 200", ring.Buffered())
	}
	got := make([]byte, 200)
	ring.ReadPeek(got)
	for i := 0; i < 100; i++ {
		if got[i] != first[i] {
			t.Fatalf("byte %d out of order: got %d want %d", i, got[i], first[i])
		}
	}
	for i := 0; i < 100; i++ {
		if got[100+i] != second[i] {
			t.Fatalf("byte %d out of order: got %d want %d", 100+i, got[100+i], second[i])
		}
	}
}

func TestReassemblyBufferExactDuplicateDropped(t *testing.T) {
	var b reassemblyBuffer
	b.Insert(2100, 2200, make([]byte, 100))
	if ok := b.Insert(2100, 2200, make([]byte, 100)); ok {
		t.Fatal("exact duplicate must be dropped")
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestReassemblyBufferUnplaceableOverlapDropped(t *testing.T) {
	var b reassemblyBuffer
	b.Insert(2100, 2200, make([]byte, 100))
	if ok := b.Insert(2150, 2250, make([]byte, 100)); ok {
		t.Fatal("overlapping-but-not-identical segment must be dropped")
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestReassemblyBufferInsertBeforeHead(t *testing.T) {
	var b reassemblyBuffer
	b.Insert(2200, 2300, make([]byte, 100))
	if ok := b.Insert(2000, 2100, make([]byte, 100)); !ok {
		t.Fatal("expected disjoint predecessor insert to succeed")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if b.entries[0].seq != 2000 {
		t.Fatalf("expected ascending order, got head seq %d", b.entries[0].seq)
	}
}

func TestReassemblyBufferRespectsRingCapacity(t *testing.T) {
	var b reassemblyBuffer
	ring := &internal.Ring{Buf: make([]byte, 50)}
	b.Insert(2000, 2100, make([]byte, 100))
	nxt, promoted := b.Promote(2000, ring)
	if promoted {
		t.Fatal("promotion must not proceed when ring lacks free space")
	}
	if nxt != 2000 {
		t.Fatalf("rcv_nxt = %d, want unchanged 2000", nxt)
	}
	if b.Len() != 1 {
		t.Fatal("segment must remain buffered when ring is too small")
	}
}
