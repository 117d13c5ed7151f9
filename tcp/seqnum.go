package tcp

// Value is a TCP sequence or acknowledgment number. Arithmetic on Value wraps
// modulo 2**32 as per RFC 9293 section 3.4; comparisons must account for this
// wraparound and so never use plain Go operators directly on two Values.
type Value uint32

// Size is a length in octets of sequence space, such as a window size or a
// segment's data length. Unlike Value it does not represent a point in the
// wraparound space, only a distance.
type Size uint32

// Add returns the sequence number sz octets after v, wrapping modulo 2**32.
func Add(v Value, sz Size) Value {
	return v + Value(sz)
}

// Sizeof returns the number of octets between a (inclusive) and b (exclusive)
// in the wraparound sequence space, i.e. the distance travelled going from a
// forward to b. Callers must ensure a is logically "before" b; Sizeof itself
// performs no ordering check.
func Sizeof(a, b Value) Size {
	return Size(b - a)
}

// LessThan reports whether v precedes other in the wraparound sequence space:
// (int32)(v - other) < 0.
func (v Value) LessThan(other Value) bool {
	return int32(v-other) < 0
}

// LessThanEq reports whether v precedes or equals other in the wraparound
// sequence space.
func (v Value) LessThanEq(other Value) bool {
	return v == other || v.LessThan(other)
}

// InWindow reports whether v falls inside [start, start+size) in the
// wraparound sequence space. A zero size window only admits v == start.
func (v Value) InWindow(start Value, size Size) bool {
	if size == 0 {
		return v == start
	}
	return Sizeof(start, v) < size
}

// UpdateForward advances v by sz octets in place.
func (v *Value) UpdateForward(sz Size) {
	*v = Add(*v, sz)
}
