// Package ring implements the single-producer/single-consumer byte queue
// that is the only channel shared between Core-A and Core-B (spec §4.1,
// §5). There are no locks and no critical sections: the producer publishes
// its write with a release store on head, the consumer publishes its read
// with a release store on tail, and each side acquire-loads the other's
// index before touching the shared buffer.
package ring

import "sync/atomic"

// Ring is a fixed-capacity byte ring. Capacity is rounded up to the next
// power of two so index wrapping is a mask instead of a modulo.
type Ring struct {
	buf  []byte
	mask uint64

	head atomic.Uint64 // next free slot; published by the producer
	tail atomic.Uint64 // next slot to read; published by the consumer

	overflow atomic.Uint64 // bytes dropped when a Write would overrun capacity
}

// New creates a Ring whose usable capacity is at least capacityHint bytes.
func New(capacityHint int) *Ring {
	if capacityHint < 1 {
		capacityHint = 1
	}
	cap := nextPowerOfTwo(uint64(capacityHint))
	return &Ring{
		buf:  make([]byte, cap),
		mask: cap - 1,
	}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// Capacity returns the ring's usable byte capacity.
func (r *Ring) Capacity() int { return len(r.buf) }

// Used returns the number of bytes currently queued, as observed by either
// side; it is inherently a snapshot in a concurrent ring.
func (r *Ring) Used() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// Free returns the number of bytes that can be written without overflow.
func (r *Ring) Free() int {
	return len(r.buf) - r.Used()
}

// Overflow returns the cumulative count of bytes dropped by Write calls
// that exceeded the ring's free space.
func (r *Ring) Overflow() uint64 { return r.overflow.Load() }

// Write copies as much of p into the ring as fits; the tail of the batch is
// dropped and counted in Overflow if p is larger than the free space. Write
// must only be called from the single producer goroutine.
func (r *Ring) Write(p []byte) int {
	free := r.Free()
	n := len(p)
	if n > free {
		r.overflow.Add(uint64(n - free))
		n = free
	}
	if n == 0 {
		return 0
	}

	head := r.head.Load()
	for i := 0; i < n; i++ {
		r.buf[(head+uint64(i))&r.mask] = p[i]
	}
	// Release: make the data visible before advancing head.
	r.head.Store(head + uint64(n))
	return n
}

// Read copies queued bytes into dst, returning the count copied. Read must
// only be called from the single consumer goroutine.
func (r *Ring) Read(dst []byte) int {
	// Acquire: observe all writes that preceded this head publication.
	head := r.head.Load()
	tail := r.tail.Load()
	avail := int(head - tail)
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(tail+uint64(i))&r.mask]
	}
	r.tail.Store(tail + uint64(n))
	return n
}

// ReadByte reads a single byte, reporting false if the ring is empty.
func (r *Ring) ReadByte() (byte, bool) {
	var b [1]byte
	if r.Read(b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}
