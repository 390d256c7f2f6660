package dispatch

import (
	"testing"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/motionao"
	"github.com/sagostin/servoctl/internal/protocol"
	"github.com/sagostin/servoctl/internal/servo"
	"github.com/sagostin/servoctl/internal/store"
	"github.com/sagostin/servoctl/internal/sysao"
)

type fakeWriter struct{}

func (fakeWriter) SetPulseMicros(int, uint16) {}

func newTestDispatcher(servoMap *servo.Map) *Dispatcher {
	rt := ao.NewRuntime()
	w := fakeWriter{}
	mAO := motionao.New(servoMap, w)
	sAO := sysao.New(store.NewMemDevice(), servoMap, w)
	motionHandle := rt.Register("motion", 2, mAO)
	sysHandle := rt.Register("system", 3, sAO)
	mAO.Bind(motionHandle)
	return New(servoMap, motionHandle, sysHandle, mAO, sAO)
}

func TestPingReportsVersionAndState(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, payload := d.Handle(0x01, CmdPing, nil)
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if len(payload) != 2 || payload[0] != ProtocolVersion || payload[1] != byte(sysao.Normal) {
		t.Fatalf("payload = %v, want [%d %d]", payload, ProtocolVersion, sysao.Normal)
	}
}

func TestUnknownCommandReturnsInvalidCmd(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, _ := d.Handle(0x01, 0x99, nil)
	if resp != protocol.RespInvalidCmd {
		t.Fatalf("resp = %d, want RespInvalidCmd", resp)
	}
}

func TestMoveSingleWrongLengthIsInvalidParam(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, _ := d.Handle(0x01, CmdMoveSingle, []byte{0x01, 0x23})
	if resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam", resp)
	}
}

func TestMoveSingleOutOfRangeIDIsInvalidParam(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, _ := d.Handle(0x01, CmdMoveSingle, []byte{0xFF, 0x23, 0x28, 0x01, 0xF4})
	if resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam for id=255", resp)
	}
}

func TestMoveSingleAcceptsWorkedExamplePayload(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	// servo 1 to 90.00deg over 500ms: 01 23 28 01 F4.
	resp, _ := d.Handle(0x01, CmdMoveSingle, []byte{0x01, 0x23, 0x28, 0x01, 0xF4})
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
}

func TestMoveAllRequiresExactPayloadLength(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, _ := d.Handle(0x01, CmdMoveAll, make([]byte, 10))
	if resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam for short MoveAll payload", resp)
	}

	full := make([]byte, servo.Count*2+2)
	resp, _ = d.Handle(0x01, CmdMoveAll, full)
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK for full-length MoveAll payload", resp)
	}
}

func TestMoveTrapezoidValidatesLengthAndID(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	if resp, _ := d.Handle(0x01, CmdMoveTrapezoid, []byte{0x01}); resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam for short payload", resp)
	}
	if resp, _ := d.Handle(0x01, CmdMoveTrapezoid, []byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0}); resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam for bad id", resp)
	}
	if resp, _ := d.Handle(0x01, CmdMoveTrapezoid, []byte{0x02, 0x23, 0x28, 0x00, 0x5A, 0x00, 0x32, 0x00, 0x32}); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
}

func TestGetSingleReportsCurrentAngleAndEnabled(t *testing.T) {
	m := servo.NewMap()
	m.Axes[3].CurrentAngleDeg = 45
	m.Axes[3].Enabled = true
	d := newTestDispatcher(m)

	resp, payload := d.Handle(0x01, CmdGetSingle, []byte{0x03})
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	wantAngleX100 := uint16(4500)
	gotAngleX100 := uint16(payload[1])<<8 | uint16(payload[2])
	if payload[0] != 3 || gotAngleX100 != wantAngleX100 || payload[3] != 1 {
		t.Fatalf("payload = %v, want [3 %d %d 1]", payload, wantAngleX100>>8, wantAngleX100&0xFF)
	}
}

func TestGetAllReportsEveryAxis(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	resp, payload := d.Handle(0x01, CmdGetAll, nil)
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if len(payload) != servo.Count*3 {
		t.Fatalf("payload length = %d, want %d", len(payload), servo.Count*3)
	}
}

func TestEnableDisableSingleAxis(t *testing.T) {
	m := servo.NewMap()
	d := newTestDispatcher(m)

	if resp, _ := d.Handle(0x01, CmdDisable, []byte{0x05}); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if m.Axes[5].Enabled {
		t.Fatal("expected axis 5 disabled")
	}

	if resp, _ := d.Handle(0x01, CmdEnable, []byte{0x05}); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if !m.Axes[5].Enabled {
		t.Fatal("expected axis 5 re-enabled")
	}
}

// TestEnableIsIdempotent covers P10: re-enabling an already-enabled axis
// is a no-op that still reports RespOK.
func TestEnableIsIdempotent(t *testing.T) {
	m := servo.NewMap()
	d := newTestDispatcher(m)
	for i := 0; i < 3; i++ {
		if resp, _ := d.Handle(0x01, CmdEnable, []byte{0x02}); resp != protocol.RespOK {
			t.Fatalf("iteration %d: resp = %d, want RespOK", i, resp)
		}
	}
	if !m.Axes[2].Enabled {
		t.Fatal("expected axis 2 enabled")
	}
}

func TestDisableBroadcastDisablesEveryAxis(t *testing.T) {
	m := servo.NewMap()
	d := newTestDispatcher(m)
	if resp, _ := d.Handle(0x01, CmdDisable, []byte{0xFF}); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	for i := 0; i < servo.Count; i++ {
		if m.Axes[i].Enabled {
			t.Fatalf("axis %d still enabled after broadcast disable", i)
		}
	}
}

func TestSaveAndLoadFlashReturnOK(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	if resp, _ := d.Handle(0x01, CmdSaveFlash, nil); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if resp, _ := d.Handle(0x01, CmdLoadFlash, nil); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
}

func TestEStopReturnsOK(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	if resp, _ := d.Handle(0x01, CmdEStop, nil); resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
}

// TestMoveBufferedQueuesThroughPlanner covers the buffered-move path
// routing through Planner.AddMotion and starting the Scheduler, rather
// than posting a MotionStart directly.
func TestMoveBufferedQueuesThroughPlanner(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	// servo 2 to 45.00deg, v=18.0 deg/s, a=d=36.0 deg/s^2: 02 11 94 00 B4 01 68 01 68.
	data := []byte{0x02, 0x11, 0x94, 0x00, 0xB4, 0x01, 0x68, 0x01, 0x68}
	resp, _ := d.Handle(0x01, CmdMoveBuffered, data)
	if resp != protocol.RespOK {
		t.Fatalf("resp = %d, want RespOK", resp)
	}
	if d.motion.Planner().Count() != 1 {
		t.Fatalf("planner count = %d, want 1", d.motion.Planner().Count())
	}
	if !d.motion.Scheduler().Running() {
		t.Fatal("expected scheduler running after a buffered move")
	}
}

func TestMoveBufferedRejectsBadID(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	data := []byte{0xFF, 0x11, 0x94, 0x00, 0xB4, 0x01, 0x68, 0x01, 0x68}
	if resp, _ := d.Handle(0x01, CmdMoveBuffered, data); resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam", resp)
	}
}

// TestSetServoModeThenSpeedQueuesContinuousMotion covers §4.5's continuous
// half: an axis must be reconfigured Cont360 before a speed command is
// accepted, then the command queues through AddContinuousMotion.
func TestSetServoModeThenSpeedQueuesContinuousMotion(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())

	// Speed command on a still-Pos180 axis is refused.
	speedData := []byte{0x07, 0x01, 0xF4, 0x00, 0x64, 0x00, 0x64, 0x00, 0x00}
	if resp, _ := d.Handle(0x01, CmdSetSpeed, speedData); resp != protocol.RespInvalidParam {
		t.Fatalf("resp = %d, want RespInvalidParam before mode switch", resp)
	}

	if resp, _ := d.Handle(0x01, CmdSetServoMode, []byte{0x07, 0x01}); resp != protocol.RespOK {
		t.Fatalf("SetServoMode resp = %d, want RespOK", resp)
	}
	if d.servoMap.Axes[7].Mode != servo.Cont360 {
		t.Fatal("axis 7 mode not switched to Cont360")
	}

	if resp, _ := d.Handle(0x01, CmdSetSpeed, speedData); resp != protocol.RespOK {
		t.Fatalf("SetSpeed resp = %d, want RespOK", resp)
	}
	if d.motion.Planner().Count() != 1 {
		t.Fatalf("planner count = %d, want 1", d.motion.Planner().Count())
	}
}

// TestTrajectoryAddStartStopClearInfo exercises the full trajectory
// command surface: points queue, start arms the first leg, info reports
// buffer depth, and stop/clear detach it.
func TestTrajectoryAddStartStopClearInfo(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())

	addData := []byte{0x04, 0x23, 0x28, 0x00, 0x5A, 0x00, 0x32, 0x00, 0x32, 0x00, 0x64}
	if resp, _ := d.Handle(0x01, CmdTrajAddPoint, addData); resp != protocol.RespOK {
		t.Fatalf("TrajAddPoint resp = %d, want RespOK", resp)
	}

	infoResp, payload := d.Handle(0x01, CmdTrajGetInfo, []byte{0x04})
	if infoResp != protocol.RespOK {
		t.Fatalf("TrajGetInfo resp = %d, want RespOK", infoResp)
	}
	if payload[0] != 4 || payload[1] != 1 || payload[4] != 1 {
		t.Fatalf("TrajGetInfo payload = %v, want [4 1 * * 1]", payload)
	}

	if resp, _ := d.Handle(0x01, CmdTrajStart, []byte{0x04, 0x00}); resp != protocol.RespOK {
		t.Fatalf("TrajStart resp = %d, want RespOK", resp)
	}

	if resp, _ := d.Handle(0x01, CmdTrajStop, []byte{0x04}); resp != protocol.RespOK {
		t.Fatalf("TrajStop resp = %d, want RespOK", resp)
	}
	if resp, _ := d.Handle(0x01, CmdTrajClear, []byte{0x04}); resp != protocol.RespOK {
		t.Fatalf("TrajClear resp = %d, want RespOK", resp)
	}

	_, payload = d.Handle(0x01, CmdTrajGetInfo, []byte{0x04})
	if payload[4] != 0 {
		t.Fatalf("TrajGetInfo after clear payload = %v, want active=0", payload)
	}
}

func TestTrajStartWithNoPointsIsBusy(t *testing.T) {
	d := newTestDispatcher(servo.NewMap())
	if resp, _ := d.Handle(0x01, CmdTrajStart, []byte{0x09, 0x00}); resp != protocol.RespBusy {
		t.Fatalf("resp = %d, want RespBusy", resp)
	}
}
