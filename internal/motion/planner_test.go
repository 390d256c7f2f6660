package motion

import "testing"

func TestPlannerQueueAndPop(t *testing.T) {
	p := NewPlanner()
	if err := p.AddMotion(0, 2, 90, 100, 200, 200, nil); err != nil {
		t.Fatalf("AddMotion: %v", err)
	}
	if p.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", p.Count())
	}
	b, ok := p.Peek()
	if !ok || b.ServoID != 2 || b.TargetAngle != 90 {
		t.Fatalf("Peek() = %+v, ok=%v", b, ok)
	}
	popped, ok := p.Pop()
	if !ok || popped.TargetAngle != 90 {
		t.Fatalf("Pop() = %+v, ok=%v", popped, ok)
	}
	if p.Count() != 0 {
		t.Fatalf("Count() after pop = %d, want 0", p.Count())
	}
}

func TestPlannerBufferFullRejectsAdd(t *testing.T) {
	p := NewPlanner()
	for i := 0; i < PlannerBufferSize; i++ {
		if err := p.AddMotion(int64(i), 0, float32(i), 100, 200, 200, nil); err != nil {
			t.Fatalf("AddMotion %d: %v", i, err)
		}
	}
	if !p.Full() {
		t.Fatal("expected planner full")
	}
	if err := p.AddMotion(999, 0, 10, 100, 200, 200, nil); err == nil {
		t.Fatal("expected error on add to full planner")
	}
}

// TestPlannerContinuityAcrossBlocks covers P5: a block's entry speed must
// equal the prior block's exit speed for the same axis after Recalculate.
func TestPlannerContinuityAcrossBlocks(t *testing.T) {
	p := NewPlanner()
	if err := p.AddMotion(0, 1, 50, 100, 200, 200, nil); err != nil {
		t.Fatalf("AddMotion 1: %v", err)
	}
	if err := p.AddMotion(100, 1, 150, 100, 200, 200, nil); err != nil {
		t.Fatalf("AddMotion 2: %v", err)
	}
	if err := p.AddMotion(200, 1, 10, 100, 200, 200, nil); err != nil {
		t.Fatalf("AddMotion 3: %v", err)
	}
	p.Recalculate()

	for i := 0; i < p.count-1; i++ {
		cur := p.slot(i)
		next := p.slot(i + 1)
		if cur.ExitSpeed != next.EntrySpeed {
			t.Fatalf("block %d exit speed %v != block %d entry speed %v", i, cur.ExitSpeed, i+1, next.EntrySpeed)
		}
	}
	first := p.slot(0)
	if first.EntrySpeed != 0 {
		t.Fatalf("first block entry speed = %v, want 0", first.EntrySpeed)
	}
	last := p.slot(p.count - 1)
	if last.ExitSpeed != 0 {
		t.Fatalf("last block exit speed = %v, want 0", last.ExitSpeed)
	}
}

// TestPlannerKinematicFeasibility covers P6: no block's fitted peak speed
// may exceed its nominal speed, and every duration must be non-negative.
func TestPlannerKinematicFeasibility(t *testing.T) {
	p := NewPlanner()
	_ = p.AddMotion(0, 1, 5, 50, 300, 300, nil)
	_ = p.AddMotion(50, 1, 500, 50, 300, 300, nil)
	_ = p.AddMotion(100, 1, 3, 50, 300, 300, nil)
	p.Recalculate()

	for i := 0; i < p.count; i++ {
		b := p.slot(i)
		if b.VMaxActual > b.NominalSpeed+1e-3 {
			t.Fatalf("block %d VMaxActual %v exceeds NominalSpeed %v", i, b.VMaxActual, b.NominalSpeed)
		}
		if b.DurationMs < 0 {
			t.Fatalf("block %d has negative duration %d", i, b.DurationMs)
		}
	}
}

// TestTriangularFitNeverReachesNominal covers S2: a short move whose
// accel/decel distances exceed the travel distance must fit as a
// triangular profile (TConst == 0, peak below nominal).
func TestTriangularFitNeverReachesNominal(t *testing.T) {
	fit := FitTrapezoid(5, 1000, 200, 200, 0, 0)
	if fit.TConst != 0 {
		t.Fatalf("expected triangular fit (TConst=0), got TConst=%v", fit.TConst)
	}
	if fit.VMaxActual >= 1000 {
		t.Fatalf("triangular peak %v should stay below nominal 1000", fit.VMaxActual)
	}
	if fit.VMaxActual <= 0 {
		t.Fatalf("triangular peak %v should be positive for a 5-unit move", fit.VMaxActual)
	}
}

// TestPlannerJunctionSmoothing covers S3: two same-axis position blocks
// with a small direction change across a long enough travel should yield
// a nonzero junction speed, so the first block's exit speed is not forced
// to zero.
func TestPlannerJunctionSmoothing(t *testing.T) {
	p := NewPlanner()
	_ = p.AddMotion(0, 4, 100, 300, 200, 200, nil)
	_ = p.AddMotion(500, 4, 160, 300, 200, 200, nil)
	p.Recalculate()

	first := p.slot(0)
	if !first.JunctionValid {
		t.Fatal("expected junction to be valid between two same-axis position blocks")
	}
	if first.ExitSpeed <= 0 {
		t.Fatalf("expected nonzero smoothed exit speed at junction, got %v", first.ExitSpeed)
	}
	second := p.slot(1)
	if second.ExitSpeed != 0 {
		t.Fatalf("last block exit speed = %v, want 0", second.ExitSpeed)
	}
}

// TestPlannerJunctionBrokenByAxisChange covers the no-junction branch: a
// different servo ID between adjacent blocks must force a hard stop.
func TestPlannerJunctionBrokenByAxisChange(t *testing.T) {
	p := NewPlanner()
	_ = p.AddMotion(0, 1, 100, 300, 200, 200, nil)
	_ = p.AddMotion(100, 2, 50, 300, 200, 200, nil)
	p.Recalculate()

	first := p.slot(0)
	if first.JunctionValid {
		t.Fatal("expected junction invalid across different servo IDs")
	}
	if first.ExitSpeed != 0 {
		t.Fatalf("expected exit speed 0 across axis change, got %v", first.ExitSpeed)
	}
}

// TestFitTrapezoidMassBalance covers P7: the sum of per-segment distances
// produced by Position must equal the commanded travel distance.
func TestFitTrapezoidMassBalance(t *testing.T) {
	cases := []struct {
		distance, vNom, accel, decel, vEntry, vExit float32
	}{
		{100, 50, 100, 100, 0, 0},
		{5, 1000, 200, 200, 0, 0},
		{120, 60, 80, 80, 10, 20},
	}
	for _, c := range cases {
		fit := FitTrapezoid(c.distance, c.vNom, c.accel, c.decel, c.vEntry, c.vExit)
		total := fit.TotalDistance(c.accel, c.decel, c.vEntry, c.vExit)
		if d := total - c.distance; d > 0.5 || d < -0.5 {
			t.Fatalf("case %+v: total distance %v != commanded %v", c, total, c.distance)
		}
	}
}

func TestAddContinuousMotionInheritsExitSpeed(t *testing.T) {
	p := NewPlanner()
	_ = p.AddContinuousMotion(0, 6, 50, 20, 20, 1000)
	p.blocks[p.tail].ExitSpeedPct = 30
	if err := p.AddContinuousMotion(100, 6, 80, 20, 20, 1000); err != nil {
		t.Fatalf("AddContinuousMotion: %v", err)
	}
	second := p.slot(1)
	if second.EntrySpeedPct != 30 {
		t.Fatalf("EntrySpeedPct = %v, want inherited 30", second.EntrySpeedPct)
	}
}

func TestCurrentAngleFuncSeedsStartWhenNoPriorBlock(t *testing.T) {
	p := NewPlanner()
	seeded := false
	currentAngle := func(servoID int) float32 {
		seeded = true
		return 45
	}
	if err := p.AddMotion(0, 9, 90, 100, 200, 200, currentAngle); err != nil {
		t.Fatalf("AddMotion: %v", err)
	}
	if !seeded {
		t.Fatal("expected currentAngle callback to be used")
	}
	b, _ := p.Peek()
	if b.StartAngle != 45 {
		t.Fatalf("StartAngle = %v, want 45", b.StartAngle)
	}
	if b.AbsDistance != 45 {
		t.Fatalf("AbsDistance = %v, want 45", b.AbsDistance)
	}
}
