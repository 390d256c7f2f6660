package ao

import (
	"container/heap"
	"context"
	"log"
	"time"
)

// AO is the active-object contract every Comm/Motion/System state machine
// implements: handle exactly one event per call, synchronously, to
// completion (§4.10 — Core-A state handlers never block).
type AO interface {
	Dispatch(ev Event)
}

// DefaultQueueSize bounds each AO's FIFO; Post silently drops and logs on
// overflow rather than blocking the runtime loop.
const DefaultQueueSize = 32

type aoEntry struct {
	ao       AO
	name     string
	priority int // lower value = higher priority, matching Comm(1) > Motion(2) > System(3)
	queue    []Event
	maxQueue int
}

// Runtime is the single-goroutine event loop described in §4.10: it wakes
// the highest-priority AO with a non-empty queue, delivers one event, and
// re-queues TimeEvents as they expire.
type Runtime struct {
	aos   []*aoEntry
	timer timeEventHeap

	// outbox buffers events posted from within the AO currently being
	// dispatched — flushed to real queues only after Dispatch returns,
	// satisfying "post-from-handler is delivered after the handler
	// returns" (§4.10).
	outbox      []postedEvent
	dispatching bool
}

type postedEvent struct {
	to *aoEntry
	ev Event
}

// NewRuntime returns an empty Runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Register adds an AO at the given priority (1 = highest, matching
// Comm=1, Motion=2, System=3 in §5's "Comm > Motion > System"). Returns a
// handle used to Post events to it and to arm TimeEvents against it.
func (r *Runtime) Register(name string, priority int, a AO) *Handle {
	e := &aoEntry{ao: a, name: name, priority: priority, maxQueue: DefaultQueueSize}
	r.aos = append(r.aos, e)
	return &Handle{rt: r, entry: e}
}

// Handle is the capability an AO implementation uses to post events (to
// itself or another registered AO) and to arm periodic TimeEvents against
// itself.
type Handle struct {
	rt    *Runtime
	entry *aoEntry
}

// Post enqueues ev for delivery to this AO. If called from within a
// Dispatch call (i.e. from a state handler), the event is buffered in the
// runtime's outbox and only becomes visible after the current Dispatch
// returns (§4.10).
func (h *Handle) Post(ev Event) {
	h.rt.post(h.entry, ev)
}

// PostTo enqueues ev for delivery to another AO's handle.
func (h *Handle) PostTo(to *Handle, ev Event) {
	h.rt.post(to.entry, ev)
}

func (r *Runtime) post(to *aoEntry, ev Event) {
	if !r.dispatching {
		r.enqueue(to, ev)
		return
	}
	r.outbox = append(r.outbox, postedEvent{to: to, ev: ev})
}

// ArmPeriodic arms a TimeEvent against this AO's owner, firing every
// period starting at period after now, delivering a TickEvent carrying
// signal and the fire time. Comm's cadence is 10 ms, Motion's
// interpolation tick 20 ms, matching §6.4.
func (h *Handle) ArmPeriodic(now time.Time, period time.Duration, signal Signal) *TimeEvent {
	te := &TimeEvent{
		ao:     h.entry.ao,
		signal: signal,
		period: period,
		next:   now.Add(period),
		armed:  true,
	}
	te.newEvent = func(fireTime time.Time) Event { return TickEvent{Signal: signal, Now: fireTime} }
	heap.Push(&h.rt.timer, te)
	return te
}

// Run drives the event loop until ctx is canceled: fire due TimeEvents,
// dispatch one event from the highest-priority non-empty queue, flush any
// events posted during that dispatch, and sleep briefly if nothing was
// ready (the Go analog of Core-A's WFI between deliveries).
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		firedAny := r.fireDueTimers(now)
		dispatchedAny := r.dispatchOne()

		if !firedAny && !dispatchedAny {
			sleep := 1 * time.Millisecond
			if len(r.timer) > 0 {
				if until := time.Until(r.timer[0].next); until > 0 && until < sleep {
					sleep = until
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
		}
	}
}

func (r *Runtime) fireDueTimers(now time.Time) bool {
	fired := false
	for len(r.timer) > 0 && !r.timer[0].next.After(now) {
		te := heap.Pop(&r.timer).(*TimeEvent)
		if !te.armed {
			continue
		}
		fired = true
		ev := te.newEvent(te.next)
		r.deliverDirect(te.ao, ev)
		if te.period > 0 {
			te.next = te.next.Add(te.period)
			heap.Push(&r.timer, te)
		} else {
			te.armed = false
		}
	}
	return fired
}

// deliverDirect enqueues an event straight into an AO's queue — used for
// hardware-timer-originated TimeEvents, which are not subject to the
// post-from-handler deferral rule (they're not posted from inside a
// Dispatch call).
func (r *Runtime) deliverDirect(target AO, ev Event) {
	for _, e := range r.aos {
		if e.ao == target {
			r.enqueue(e, ev)
			return
		}
	}
}

func (r *Runtime) enqueue(e *aoEntry, ev Event) {
	if len(e.queue) >= e.maxQueue {
		log.Printf("[ao] %s queue full, dropping %s event", e.name, ev.Sig())
		return
	}
	e.queue = append(e.queue, ev)
}

// dispatchOne delivers exactly one event to the highest-priority AO that
// has one queued, then flushes any events that handler posted.
func (r *Runtime) dispatchOne() bool {
	var chosen *aoEntry
	for _, e := range r.aos {
		if len(e.queue) == 0 {
			continue
		}
		if chosen == nil || e.priority < chosen.priority {
			chosen = e
		}
	}
	if chosen == nil {
		return false
	}

	ev := chosen.queue[0]
	chosen.queue = chosen.queue[1:]

	r.dispatching = true
	chosen.ao.Dispatch(ev)
	r.dispatching = false

	outbox := r.outbox
	r.outbox = nil
	for _, p := range outbox {
		r.enqueue(p.to, p.ev)
	}
	return true
}
