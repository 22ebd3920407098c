package data

// Streams is the payload a node passes or receives across one edge on one
// scheduler step: zero or more Data values, one per stream index the edge
// carries.
type Streams []Data

// IsEndOfStream reports whether this batch signals the end of the
// underlying stream. By convention only the first element is consulted:
// a producer emitting end-of-stream sets every element to the
// end-of-stream sentinel in lockstep, so checking element zero is
// sufficient and cheap on the hot path.
func (s Streams) IsEndOfStream() bool {
	return len(s) > 0 && s[0].IsEndOfStream()
}

// Retain retains every element of s, for fan-out to more than one
// downstream consumer.
func (s Streams) Retain() Streams {
	out := make(Streams, len(s))
	for i, d := range s {
		out[i] = d.Retain()
	}
	return out
}
