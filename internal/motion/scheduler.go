package motion

import "time"

// Execute dispatches one due PlanBlock. For a position block the caller
// typically drives an Interpolator with the block's planner-computed
// entry/exit speeds and v_max_actual; for a continuous block it typically
// calls the Servo Map's SetSpeed directly (§4.8).
type Execute func(block PlanBlock)

// Scheduler fires planner blocks by timestamp (§4.8). It owns no goroutine
// of its own — Update is driven by the caller's TimeEvent (Motion AO calls
// it on every interpolation tick, 20 ms by default).
type Scheduler struct {
	planner   *Planner
	execute   Execute
	startTime time.Time
	running   bool
}

// NewScheduler returns a stopped Scheduler bound to planner, invoking
// execute for each block it dispatches.
func NewScheduler(planner *Planner, execute Execute) *Scheduler {
	return &Scheduler{planner: planner, execute: execute}
}

// Start begins dispatching from now; elapsed times for queued blocks are
// measured relative to this instant.
func (s *Scheduler) Start(now time.Time) {
	s.startTime = now
	s.running = true
	s.planner.Running = true
	s.planner.Paused = false
}

// Stop halts dispatch; queued blocks remain buffered.
func (s *Scheduler) Stop() {
	s.running = false
	s.planner.Running = false
}

// Pause suspends dispatch without discarding the current start_time or
// queued blocks.
func (s *Scheduler) Pause() {
	s.planner.Paused = true
}

// Resume clears a prior Pause.
func (s *Scheduler) Resume() {
	s.planner.Paused = false
}

// Running reports whether the scheduler is actively dispatching.
func (s *Scheduler) Running() bool { return s.running }

// Update runs one scheduler step (§4.8):
//  1. If RecalculateFlag is set and the planner is non-empty, recalculate.
//  2. If not running or paused, return.
//  3. If the planner is empty, stop.
//  4. Dispatch every block whose timestamp has elapsed, in order.
func (s *Scheduler) Update(now time.Time) {
	if s.planner.RecalculateFlag && s.planner.Count() > 0 {
		s.planner.Recalculate()
	}

	if !s.running || s.planner.Paused {
		return
	}

	if s.planner.Count() == 0 {
		s.Stop()
		return
	}

	elapsedMs := now.Sub(s.startTime).Milliseconds()
	for {
		b, ok := s.planner.Peek()
		if !ok || b.TimestampMs > elapsedMs {
			break
		}
		block, _ := s.planner.Pop()
		if s.execute != nil {
			s.execute(block)
		}
		if s.planner.Count() == 0 {
			s.Stop()
			return
		}
	}
}
