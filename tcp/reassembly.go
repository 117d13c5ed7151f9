package tcp

import "github.com/soypat/lneto/internal"

// ofoSegment is a single out-of-order payload fragment buffered ahead of
// rcv.NXT, awaiting the missing predecessor bytes before it can be promoted
// into the in-order byte buffer.
type ofoSegment struct {
	seq    Value
	seqEnd Value
	data   []byte
}

// reassemblyBuffer is the out-of-order reassembly buffer (rcv_ofo_buf): an
// ordered sequence of non-overlapping payload fragments with rcv.NXT < seq
// on insert (Invariant 2). Entries are kept pairwise disjoint and sorted
// ascending by seq.
type reassemblyBuffer struct {
	entries []ofoSegment
	maxLen  int
}

// Len reports how many fragments are currently buffered out of order.
func (b *reassemblyBuffer) Len() int { return len(b.entries) }

// Insert applies the §4.3 insert policy for a payload segment N={seq,seqEnd,data}
// with seq >= rcvNxt. It reports whether N was accepted (false means dropped:
// exact duplicate or an unplaceable overlap).
func (b *reassemblyBuffer) Insert(seq, seqEnd Value, data []byte) bool {
	n := ofoSegment{seq: seq, seqEnd: seqEnd, data: data}
	if len(b.entries) == 0 {
		if b.maxLen > 0 && len(b.entries) >= b.maxLen {
			return false
		}
		b.entries = append(b.entries, n)
		return true
	}
	for i, c := range b.entries {
		switch {
		case c.seq == n.seq && c.seqEnd == n.seqEnd:
			return false // Exact duplicate.
		case n.seqEnd.LessThanEq(c.seq):
			// Strictly before c: insert immediately before it.
			if b.maxLen > 0 && len(b.entries) >= b.maxLen {
				return false
			}
			b.entries = append(b.entries, ofoSegment{})
			copy(b.entries[i+1:], b.entries[i:])
			b.entries[i] = n
			return true
		case c.seqEnd.LessThanEq(n.seq):
			// Strictly after c: append if c is tail, else keep scanning.
			if i == len(b.entries)-1 {
				if b.maxLen > 0 && len(b.entries) >= b.maxLen {
					return false
				}
				b.entries = append(b.entries, n)
				return true
			}
			continue
		default:
			return false // Unplaceable overlap: conservative drop.
		}
	}
	return false
}

// Promote walks the buffer from the head and, while head.seq == rcvNxt and
// ring has at least head.len free bytes, copies head.data into ring,
// advances rcvNxt past it and removes head. It returns the new rcvNxt and
// whether any bytes were promoted (the caller wakes wait_recv on true).
func (b *reassemblyBuffer) Promote(rcvNxt Value, ring *internal.Ring) (newRcvNxt Value, promoted bool) {
	newRcvNxt = rcvNxt
	i := 0
	for i < len(b.entries) {
		head := b.entries[i]
		if head.seq != newRcvNxt {
			break
		}
		if len(head.data) > ring.Free() {
			break
		}
		if len(head.data) > 0 {
			_, err := ring.Write(head.data)
			if err != nil {
				break
			}
		}
		newRcvNxt = head.seqEnd
		promoted = true
		i++
	}
	if i > 0 {
		for j := range b.entries[:i] {
			b.entries[j] = ofoSegment{}
		}
		b.entries = b.entries[i:]
	}
	return newRcvNxt, promoted
}

// Reset discards all buffered fragments.
func (b *reassemblyBuffer) Reset() {
	b.entries = b.entries[:0]
}
