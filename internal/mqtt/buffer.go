package mqtt

import "go.uber.org/zap"

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// ringBuffer holds messages published while the broker is unreachable and
// hands them back oldest first. Not safe for concurrent use.
type ringBuffer struct {
	msgs    []Message
	head    int // next write position
	count   int
	dropped int // since last drain
	log     *zap.SugaredLogger
}

func newRingBuffer(capacity int, log *zap.SugaredLogger) *ringBuffer {
	if capacity < 1 {
		capacity = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ringBuffer{msgs: make([]Message, capacity), log: log}
}

func (r *ringBuffer) push(msg Message) {
	full := r.count == len(r.msgs)
	r.msgs[r.head] = msg
	r.head = (r.head + 1) % len(r.msgs)
	if !full {
		r.count++
		return
	}

	// Oldest entry was at head and has just been overwritten.
	if r.dropped == 0 {
		r.log.Warnw("offline buffer full, dropping oldest", "capacity", len(r.msgs))
	}
	r.dropped++
}

// drain returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []Message {
	if r.count == 0 {
		return nil
	}

	out := make([]Message, r.count)
	start := (r.head - r.count + len(r.msgs)) % len(r.msgs)
	for i := range out {
		out[i] = r.msgs[(start+i)%len(r.msgs)]
	}
	if r.dropped > 0 {
		r.log.Infow("offline buffer drained", "replayed", r.count, "dropped", r.dropped)
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
