// Command servoctld is the controller daemon: it owns both "cores" as
// goroutines sharing only the byte rings (§4.1, §5), wiring Comm/Motion/
// System AOs on Core-A to a real transport.Conn pumped by Core-B.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/bridge"
	"github.com/sagostin/servoctl/internal/comm"
	"github.com/sagostin/servoctl/internal/config"
	"github.com/sagostin/servoctl/internal/dispatch"
	"github.com/sagostin/servoctl/internal/motionao"
	"github.com/sagostin/servoctl/internal/ring"
	"github.com/sagostin/servoctl/internal/servo"
	"github.com/sagostin/servoctl/internal/store"
	"github.com/sagostin/servoctl/internal/sysao"
	"github.com/sagostin/servoctl/internal/telemetry"
	"github.com/sagostin/servoctl/internal/transport"
)

// ringCapacity comfortably holds several max-size frames (§6.1: 135 bytes
// each) in either direction.
const ringCapacity = 4096

func main() {
	configPath := flag.String("config", "/etc/servoctl/config.yaml", "Path to config file")
	deviceOverride := flag.String("device", "", "Override transport.device from config")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] servoctld starting")

	cfg := config.Load(*configPath)
	if *deviceOverride != "" {
		cfg.Transport.Device = *deviceOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	servoMap := servo.NewMap()

	dev, err := store.NewFileDevice(cfg.Store.FilePath)
	if err != nil {
		log.Fatalf("[main] store device: %v", err)
	}

	rx := ring.New(ringCapacity) // wire -> Core-A
	tx := ring.New(ringCapacity) // Core-A -> wire

	trace := telemetry.New(telemetry.Config{})

	writer := noopWriter{} // real PWM HAL is out of scope (§1); pulses are discarded
	rt := ao.NewRuntime()

	motionAO := motionao.New(servoMap, writer)
	sysAO := sysao.New(dev, servoMap, writer)

	motionHandle := rt.Register("motion", 2, telemetry.Wrap("motion", motionAO, trace, servoMap))
	sysHandle := rt.Register("system", 3, telemetry.Wrap("system", sysAO, trace, servoMap))
	motionAO.Bind(motionHandle)

	motionAO.SetCallbacks(nil, func(code uint8, msg string) {
		sysHandle.Post(ao.ErrorEvent{Code: code, Msg: msg})
	})

	disp := dispatch.New(servoMap, motionHandle, sysHandle, motionAO, sysAO)
	commAO := comm.New(rx, tx, disp)
	commHandle := rt.Register("comm", 1, telemetry.Wrap("comm", commAO, trace, servoMap))

	now := time.Now()
	commHandle.ArmPeriodic(now, time.Duration(cfg.Motion.SchedulerTickMs)*time.Millisecond, ao.SigTick10ms)
	motionHandle.ArmPeriodic(now, time.Duration(cfg.Motion.InterpTickMs)*time.Millisecond, ao.SigInterpTick)
	sysHandle.ArmPeriodic(now, time.Duration(cfg.Motion.SystemTickMs)*time.Millisecond, ao.SigLedUpdate)

	go connectAndPump(ctx, cfg.Transport.Device, cfg.Transport.BaudRate, bridge.New(tx, rx))

	log.Println("[main] AO runtime running")
	rt.Run(ctx)

	trace.Close()
	log.Println("[main] shutdown complete")
}

// noopWriter stands in for the out-of-scope PWM HAL (§1); a real build
// links a platform-specific PulseWriter instead.
type noopWriter struct{}

func (noopWriter) SetPulseMicros(axisID int, us uint16) {}

// connectAndPump opens the configured transport with exponential backoff,
// then runs Core-B's pump loop until ctx is canceled or the connection is
// lost, in which case it reconnects — mirroring the teacher's
// connectWithRetry shape.
func connectAndPump(ctx context.Context, device string, baud int, b *bridge.CoreB) {
	delay := 1 * time.Second
	maxDelay := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := transport.OpenSerial(device, baud)
		if err != nil {
			log.Printf("[main] transport open %s failed: %v (retry in %v)", device, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		delay = 1 * time.Second
		log.Printf("[main] transport connected: %s", device)
		if err := b.Run(ctx, conn); err != nil && ctx.Err() == nil {
			log.Printf("[main] bridge run exited: %v (reconnecting)", err)
		}
		conn.Close()
	}
}
