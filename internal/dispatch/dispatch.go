// Package dispatch implements the command table (§4.12): it decodes a
// completed Frame's payload, posts events to Motion AO / System AO as
// needed, and returns the response code + payload Comm AO frames back to
// the wire.
package dispatch

import (
	"encoding/binary"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/motion"
	"github.com/sagostin/servoctl/internal/protocol"
	"github.com/sagostin/servoctl/internal/servo"
	"github.com/sagostin/servoctl/internal/sysao"
)

// Command codes (§4.12, plus the buffered-motion/continuous-servo/
// trajectory extensions the original firmware's motion_buffer and servo_360
// command handlers cover).
const (
	CmdMoveSingle    byte = 0x01
	CmdMoveBuffered  byte = 0x02
	CmdMoveAll       byte = 0x03
	CmdMoveTrapezoid byte = 0x04
	CmdSetSpeed      byte = 0x05
	CmdSetServoMode  byte = 0x06
	CmdGetSingle     byte = 0x10
	CmdGetAll        byte = 0x11
	CmdEnable        byte = 0x20
	CmdDisable       byte = 0x21
	CmdSaveFlash     byte = 0x30
	CmdLoadFlash     byte = 0x31
	CmdTrajAddPoint  byte = 0x40
	CmdTrajStart     byte = 0x41
	CmdTrajStop      byte = 0x42
	CmdTrajClear     byte = 0x43
	CmdTrajGetInfo   byte = 0x44
	CmdPing          byte = 0xFE
	CmdEStop         byte = 0xFF
)

// ProtocolVersion is reported by Ping.
const ProtocolVersion = 0x01

// MotionController is Motion AO's surface visible to dispatch: EStop
// status for the move commands' busy-check (S6), the shared look-ahead
// Planner/Scheduler pair for buffered moves (§4.7/§4.8), and the per-axis
// Trajectory buffer commands (§4.6).
type MotionController interface {
	Estopped() bool
	Planner() *motion.Planner
	Scheduler() *motion.Scheduler
	TrajectoryAddPoint(id int, point motion.TrajectoryPoint) error
	TrajectoryStart(id int, loop bool) error
	TrajectoryStop(id int)
	TrajectoryClear(id int)
	TrajectoryInfo(id int) (count, index int, looping bool, ok bool)
}

// SysStatus reports System AO's supervisory state for Ping's response
// payload (§4.12: "version + state").
type SysStatus interface {
	State() sysao.State
}

// Dispatcher wires the command table to the live Servo Map and to the
// Motion/System AO handles it posts events through.
type Dispatcher struct {
	servoMap     *servo.Map
	motionHandle *ao.Handle
	sysHandle    *ao.Handle
	motion       MotionController
	sys          SysStatus
}

// New builds a Dispatcher over servoMap, posting Motion events through
// motionHandle and System events through sysHandle. motion lets the move
// commands refuse while Motion AO is latched in EStop (S6) and lets
// buffered-motion/trajectory commands reach Motion AO's planner/scheduler
// directly; sys lets Ping report System AO's live state.
func New(servoMap *servo.Map, motionHandle, sysHandle *ao.Handle, motion MotionController, sys SysStatus) *Dispatcher {
	return &Dispatcher{servoMap: servoMap, motionHandle: motionHandle, sysHandle: sysHandle, motion: motion, sys: sys}
}

// estopped reports whether Motion AO is currently latched in EStop, in
// which case move commands are refused with RespBusy rather than queued
// (S6).
func (d *Dispatcher) estopped() bool {
	return d.motion != nil && d.motion.Estopped()
}

// Handle decodes and executes one command, returning the response code and
// payload a caller should wrap into a BuildResponse frame. Unknown
// commands return RespInvalidCmd (§4.12).
func (d *Dispatcher) Handle(id, cmd byte, data []byte) (resp byte, payload []byte) {
	switch cmd {
	case CmdMoveSingle:
		return d.moveSingle(data)
	case CmdMoveBuffered:
		return d.moveBuffered(data)
	case CmdMoveAll:
		return d.moveAll(data)
	case CmdMoveTrapezoid:
		return d.moveTrapezoid(data)
	case CmdSetSpeed:
		return d.setContinuousSpeed(data)
	case CmdSetServoMode:
		return d.setServoMode(data)
	case CmdGetSingle:
		return d.getSingle(data)
	case CmdGetAll:
		return d.getAll()
	case CmdEnable:
		return d.setEnabled(data, true)
	case CmdDisable:
		return d.setEnabled(data, false)
	case CmdSaveFlash:
		return d.saveFlash()
	case CmdLoadFlash:
		return d.loadFlash()
	case CmdTrajAddPoint:
		return d.trajAddPoint(data)
	case CmdTrajStart:
		return d.trajStart(data)
	case CmdTrajStop:
		return d.trajStop(data)
	case CmdTrajClear:
		return d.trajClear(data)
	case CmdTrajGetInfo:
		return d.trajGetInfo(data)
	case CmdPing:
		return d.ping()
	case CmdEStop:
		return d.estop()
	default:
		return protocol.RespInvalidCmd, nil
	}
}

// moveSingle posts a MotionStart whose target_positions are every axis's
// *current* angle, with the commanded axis overwritten — filling all 18
// entries first and then overwriting is the fix for the bug in the
// original dispatcher, which left the other 17 entries zeroed.
func (d *Dispatcher) moveSingle(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	if len(data) != 5 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	angleX100 := binary.BigEndian.Uint16(data[1:3])
	durationMs := binary.BigEndian.Uint16(data[3:5])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}

	var targets [18]float32
	for i := range targets {
		targets[i] = d.servoMap.Axes[i].CurrentAngleDeg
	}
	targets[id] = float32(angleX100) / 100

	d.motionHandle.Post(ao.MotionStartEvent{TargetPositions: targets, DurationMs: int32(durationMs)})
	return protocol.RespOK, nil
}

// moveBuffered queues a position move through the look-ahead planner
// instead of driving the interpolator immediately (the original firmware's
// dedicated motion-buffer command): blocks for the same axis queue back to
// back and only become continuous/junction-smoothed once Recalculate runs
// (§4.7), matching the canonical `dispatch -> planner.add_motion ->
// scheduler dispatch -> interpolator` flow in §2.
func (d *Dispatcher) moveBuffered(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	if len(data) != 9 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	targetX100 := int16(binary.BigEndian.Uint16(data[1:3]))
	vX10 := binary.BigEndian.Uint16(data[3:5])
	aX10 := binary.BigEndian.Uint16(data[5:7])
	dX10 := binary.BigEndian.Uint16(data[7:9])

	planner := d.motion.Planner()
	ts := planner.NextTimestampMs()
	currentAngle := func(servoID int) float32 { return d.servoMap.Axes[servoID].CurrentAngleDeg }
	if err := planner.AddMotion(ts, id, float32(targetX100)/100, float32(vX10)/10, float32(aX10)/10, float32(dX10)/10, currentAngle); err != nil {
		return protocol.RespBusy, nil
	}
	if sched := d.motion.Scheduler(); !sched.Running() {
		sched.Start(time.Now())
	}
	return protocol.RespOK, nil
}

func (d *Dispatcher) moveAll(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	const wantLen = servo.Count*2 + 2
	if len(data) != wantLen {
		return protocol.RespInvalidParam, nil
	}
	var targets [18]float32
	for i := 0; i < servo.Count; i++ {
		angleX100 := binary.BigEndian.Uint16(data[i*2 : i*2+2])
		targets[i] = float32(angleX100) / 100
	}
	durationMs := binary.BigEndian.Uint16(data[servo.Count*2 : servo.Count*2+2])

	d.motionHandle.Post(ao.MotionStartEvent{TargetPositions: targets, DurationMs: int32(durationMs)})
	return protocol.RespOK, nil
}

func (d *Dispatcher) moveTrapezoid(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	if len(data) != 9 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	targetX100 := int16(binary.BigEndian.Uint16(data[1:3]))
	vX10 := binary.BigEndian.Uint16(data[3:5])
	aX10 := binary.BigEndian.Uint16(data[5:7])
	dX10 := binary.BigEndian.Uint16(data[7:9])

	d.motionHandle.Post(ao.TrapezoidSetEvent{
		ServoID:      id,
		TargetAngle:  float32(targetX100) / 100,
		VelocityDegS: float32(vX10) / 10,
		AccelDegS2:   float32(aX10) / 10,
		DecelDegS2:   float32(dX10) / 10,
	})

	var targets [18]float32
	for i := range targets {
		targets[i] = d.servoMap.Axes[i].CurrentAngleDeg
	}
	d.motionHandle.Post(ao.MotionStartEvent{TargetPositions: targets, DurationMs: 0})
	return protocol.RespOK, nil
}

// setContinuousSpeed commands a Cont360 axis's rotation speed through the
// planner (the original firmware's servo_360 command handler), refusing
// axes that are not configured Cont360 the way servo_manager_set_speed
// checks the axis type before touching servo_360 state.
func (d *Dispatcher) setContinuousSpeed(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	if len(data) != 9 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	if d.servoMap.Axes[id].Mode != servo.Cont360 {
		return protocol.RespInvalidParam, nil
	}
	speedX10 := int16(binary.BigEndian.Uint16(data[1:3]))
	aX10 := binary.BigEndian.Uint16(data[3:5])
	dX10 := binary.BigEndian.Uint16(data[5:7])
	durationMs := binary.BigEndian.Uint16(data[7:9])

	planner := d.motion.Planner()
	ts := planner.NextTimestampMs()
	if err := planner.AddContinuousMotion(ts, id, float32(speedX10)/10, float32(aX10)/10, float32(dX10)/10, int32(durationMs)); err != nil {
		return protocol.RespBusy, nil
	}
	if sched := d.motion.Scheduler(); !sched.Running() {
		sched.Start(time.Now())
	}
	return protocol.RespOK, nil
}

// setServoMode reconfigures an axis between Pos180 and Cont360
// (servo_manager_set_type in the original firmware — axis type is
// runtime-configurable, not fixed at boot).
func (d *Dispatcher) setServoMode(data []byte) (byte, []byte) {
	if len(data) != 2 {
		return protocol.RespInvalidParam, nil
	}
	id := data[0]
	var mode servo.Mode
	switch data[1] {
	case 0:
		mode = servo.Pos180
	case 1:
		mode = servo.Cont360
	default:
		return protocol.RespInvalidParam, nil
	}
	if !d.servoMap.SetMode(id, mode) {
		return protocol.RespInvalidParam, nil
	}
	return protocol.RespOK, nil
}

func (d *Dispatcher) getSingle(data []byte) (byte, []byte) {
	if len(data) != 1 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	axis := d.servoMap.Axes[id]
	angleX100 := uint16(axis.CurrentAngleDeg * 100)
	enabled := byte(0)
	if axis.Enabled {
		enabled = 1
	}
	payload := []byte{byte(id), byte(angleX100 >> 8), byte(angleX100 & 0xFF), enabled}
	return protocol.RespOK, payload
}

func (d *Dispatcher) getAll() (byte, []byte) {
	payload := make([]byte, 0, servo.Count*3)
	for i := 0; i < servo.Count; i++ {
		angleX100 := uint16(d.servoMap.Axes[i].CurrentAngleDeg * 100)
		payload = append(payload, byte(i), byte(angleX100>>8), byte(angleX100&0xFF))
	}
	return protocol.RespOK, payload
}

func (d *Dispatcher) setEnabled(data []byte, enabled bool) (byte, []byte) {
	if len(data) != 1 {
		return protocol.RespInvalidParam, nil
	}
	id := data[0]
	if id != 0xFF && int(id) >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	d.servoMap.SetEnabled(id, enabled)
	return protocol.RespOK, nil
}

func (d *Dispatcher) saveFlash() (byte, []byte) {
	d.sysHandle.Post(ao.CmdFlashSaveEvent{})
	return protocol.RespOK, nil
}

func (d *Dispatcher) loadFlash() (byte, []byte) {
	d.sysHandle.Post(ao.CmdFlashLoadEvent{})
	return protocol.RespOK, nil
}

// trajAddPoint appends one waypoint to an axis's trajectory buffer
// (TRAJ_ADD_POINT): id, position_x100 (i16), v_x10/a_x10/d_x10 (u16 each),
// dwell_ms (u16).
func (d *Dispatcher) trajAddPoint(data []byte) (byte, []byte) {
	if len(data) != 11 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	posX100 := int16(binary.BigEndian.Uint16(data[1:3]))
	vX10 := binary.BigEndian.Uint16(data[3:5])
	aX10 := binary.BigEndian.Uint16(data[5:7])
	dX10 := binary.BigEndian.Uint16(data[7:9])
	dwellMs := binary.BigEndian.Uint16(data[9:11])

	point := motion.TrajectoryPoint{
		Position: float32(posX100) / 100,
		Params: motion.TrapezoidParams{
			VMax:  float32(vX10) / 10,
			Accel: float32(aX10) / 10,
			Decel: float32(dX10) / 10,
		},
		DwellMs: int32(dwellMs),
	}
	if err := d.motion.TrajectoryAddPoint(id, point); err != nil {
		return protocol.RespBusy, nil
	}
	return protocol.RespOK, nil
}

// trajStart arms axis id's queued waypoint sequence (TRAJ_START): id,
// loop (0/1).
func (d *Dispatcher) trajStart(data []byte) (byte, []byte) {
	if d.estopped() {
		return protocol.RespBusy, nil
	}
	if len(data) != 2 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	loop := data[1] != 0
	if err := d.motion.TrajectoryStart(id, loop); err != nil {
		return protocol.RespBusy, nil
	}
	return protocol.RespOK, nil
}

// trajStop halts axis id's interpolator and detaches its trajectory
// (TRAJ_STOP): id.
func (d *Dispatcher) trajStop(data []byte) (byte, []byte) {
	if len(data) != 1 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	d.motion.TrajectoryStop(id)
	return protocol.RespOK, nil
}

// trajClear discards axis id's queued waypoints (TRAJ_CLEAR): id.
func (d *Dispatcher) trajClear(data []byte) (byte, []byte) {
	if len(data) != 1 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	d.motion.TrajectoryClear(id)
	return protocol.RespOK, nil
}

// trajGetInfo reports axis id's trajectory buffer depth, current waypoint
// index, and loop flag (TRAJ_GET_INFO): id in, [id, count, index, looping,
// active] out.
func (d *Dispatcher) trajGetInfo(data []byte) (byte, []byte) {
	if len(data) != 1 {
		return protocol.RespInvalidParam, nil
	}
	id := int(data[0])
	if id < 0 || id >= servo.Count {
		return protocol.RespInvalidParam, nil
	}
	count, index, looping, ok := d.motion.TrajectoryInfo(id)
	payload := []byte{byte(id), byte(count), byte(index), boolByte(looping), boolByte(ok)}
	return protocol.RespOK, payload
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ping responds with the protocol version and System AO's current
// supervisory state (§4.12: "version + state").
func (d *Dispatcher) ping() (byte, []byte) {
	state := byte(0)
	if d.sys != nil {
		state = byte(d.sys.State())
	}
	return protocol.RespOK, []byte{ProtocolVersion, state}
}

func (d *Dispatcher) estop() (byte, []byte) {
	d.motionHandle.Post(ao.EStopEvent{})
	d.sysHandle.Post(ao.EStopEvent{})
	return protocol.RespOK, nil
}
