package ao

import "sync"

// PoolClass selects one of the EventPool's three fixed-size classes
// (§4.10/§9): bare events carry no payload, medium events carry a handful
// of scalars, large events carry the full 18-axis payload.
type PoolClass int

const (
	PoolBare PoolClass = iota
	PoolMedium
	PoolLarge
)

// classPool is a sync.Pool with a bounded token count: Acquire refuses
// once size outstanding events are checked out, rather than growing
// without bound.
type classPool struct {
	sync.Pool
	tokens chan struct{}
}

func newClassPool(size int, newFn func() Event) *classPool {
	cp := &classPool{
		Pool:   sync.Pool{New: func() interface{} { return newFn() }},
		tokens: make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		cp.tokens <- struct{}{}
	}
	return cp
}

func (cp *classPool) acquire() (Event, bool) {
	select {
	case <-cp.tokens:
		return cp.Pool.Get().(Event), true
	default:
		return nil, false
	}
}

func (cp *classPool) release(ev Event) {
	cp.Pool.Put(ev)
	select {
	case cp.tokens <- struct{}{}:
	default:
		// pool was never this deep; drop the token rather than block.
	}
}

// EventPool provides fixed-capacity event reuse across the three size
// classes the controller's signal set falls into, refusing rather than
// growing once a class's pool is fully checked out (§4.10 "zero dynamic
// allocation after init").
type EventPool struct {
	bare, medium, large *classPool
}

// NewEventPool builds the three pools with the given per-class capacity
// and zero-value constructor for that class's Event type.
func NewEventPool(bareSize int, newBare func() Event, mediumSize int, newMedium func() Event, largeSize int, newLarge func() Event) *EventPool {
	return &EventPool{
		bare:   newClassPool(bareSize, newBare),
		medium: newClassPool(mediumSize, newMedium),
		large:  newClassPool(largeSize, newLarge),
	}
}

// Acquire checks out a zeroed Event from class, or ok=false if that
// class's pool is fully checked out.
func (p *EventPool) Acquire(class PoolClass) (Event, bool) {
	switch class {
	case PoolBare:
		return p.bare.acquire()
	case PoolMedium:
		return p.medium.acquire()
	default:
		return p.large.acquire()
	}
}

// Release returns ev to class's pool for reuse.
func (p *EventPool) Release(class PoolClass, ev Event) {
	switch class {
	case PoolBare:
		p.bare.release(ev)
	case PoolMedium:
		p.medium.release(ev)
	default:
		p.large.release(ev)
	}
}
