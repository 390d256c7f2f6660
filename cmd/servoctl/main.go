// Command servoctl is a host-side CLI: it sends one framed command to a
// servoctld instance over the transport and prints the decoded response
// (§4's component table — the host tooling side of the wire protocol).
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/sagostin/servoctl/internal/dispatch"
	"github.com/sagostin/servoctl/internal/protocol"
	"github.com/sagostin/servoctl/internal/transport"
)

func main() {
	device := flag.String("device", "/dev/ttyACM0", "Serial device to open")
	baud := flag.Int("baud", 115200, "Baud rate (ignored by real USB-CDC, kept for compatibility)")
	id := flag.Int("id", 0x01, "Frame id byte")
	timeout := flag.Duration("timeout", 1*time.Second, "Response wait timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cmd, payload, err := encodeCommand(args[0], args[1:])
	if err != nil {
		log.Fatalf("[servoctl] %v", err)
	}

	conn, err := transport.OpenSerial(*device, *baud)
	if err != nil {
		log.Fatalf("[servoctl] open %s: %v", *device, err)
	}
	defer conn.Close()

	frame, err := protocol.BuildFrame(byte(*id), cmd, payload)
	if err != nil {
		log.Fatalf("[servoctl] build frame: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		log.Fatalf("[servoctl] write: %v", err)
	}

	resp, err := readResponse(conn, *timeout)
	if err != nil {
		log.Fatalf("[servoctl] %v", err)
	}
	printResponse(resp)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: servoctl [flags] <command> [args...]

commands:
  ping
  move-single <servo_id> <angle_deg> <duration_ms>
  get-single  <servo_id>
  get-all
  enable      <servo_id|all>
  disable     <servo_id|all>
  save-flash
  load-flash
  estop`)
	flag.PrintDefaults()
}

func encodeCommand(name string, args []string) (cmd byte, payload []byte, err error) {
	switch name {
	case "ping":
		return dispatch.CmdPing, nil, nil
	case "get-all":
		return dispatch.CmdGetAll, nil, nil
	case "save-flash":
		return dispatch.CmdSaveFlash, nil, nil
	case "load-flash":
		return dispatch.CmdLoadFlash, nil, nil
	case "estop":
		return dispatch.CmdEStop, nil, nil
	case "get-single":
		id, err := parseServoID(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return dispatch.CmdGetSingle, []byte{id}, nil
	case "enable", "disable":
		id, err := parseEnableTarget(args)
		if err != nil {
			return 0, nil, err
		}
		if name == "enable" {
			return dispatch.CmdEnable, []byte{id}, nil
		}
		return dispatch.CmdDisable, []byte{id}, nil
	case "move-single":
		if len(args) != 3 {
			return 0, nil, fmt.Errorf("move-single needs <servo_id> <angle_deg> <duration_ms>")
		}
		id, err := parseServoID(args, 0)
		if err != nil {
			return 0, nil, err
		}
		angleDeg, err := strconv.ParseFloat(args[1], 32)
		if err != nil {
			return 0, nil, fmt.Errorf("bad angle_deg: %w", err)
		}
		durationMs, err := strconv.Atoi(args[2])
		if err != nil {
			return 0, nil, fmt.Errorf("bad duration_ms: %w", err)
		}
		buf := make([]byte, 5)
		buf[0] = id
		binary.BigEndian.PutUint16(buf[1:3], uint16(angleDeg*100))
		binary.BigEndian.PutUint16(buf[3:5], uint16(durationMs))
		return dispatch.CmdMoveSingle, buf, nil
	default:
		return 0, nil, fmt.Errorf("unknown command %q", name)
	}
}

func parseServoID(args []string, idx int) (byte, error) {
	if len(args) <= idx {
		return 0, fmt.Errorf("missing servo id argument")
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("bad servo id %q", args[idx])
	}
	return byte(n), nil
}

func parseEnableTarget(args []string) (byte, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing servo id (or \"all\")")
	}
	if args[0] == "all" {
		return 0xFF, nil
	}
	return parseServoID(args, 0)
}

// readResponse feeds bytes from conn into a fresh Parser until a complete
// frame arrives or timeout elapses.
func readResponse(conn transport.Conn, timeout time.Duration) (*protocol.Frame, error) {
	parser := protocol.NewParser()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)

	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		now := time.Now()
		for i := 0; i < n; i++ {
			if frame := parser.Feed(buf[i], now); frame != nil {
				return frame, nil
			}
		}
		if err != nil && !isTimeoutErr(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("timed out waiting for response")
}

type timeouter interface{ Timeout() bool }

func isTimeoutErr(err error) bool {
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

func printResponse(f *protocol.Frame) {
	if len(f.Data) == 0 {
		fmt.Printf("resp=?? (empty data)\n")
		return
	}
	fmt.Printf("resp=%s payload=% X\n", respName(f.Data[0]), f.Data[1:])
}

func respName(code byte) string {
	switch code {
	case protocol.RespOK:
		return "OK"
	case protocol.RespError:
		return "ERROR"
	case protocol.RespInvalidCmd:
		return "INVALID_CMD"
	case protocol.RespInvalidParam:
		return "INVALID_PARAM"
	case protocol.RespCRC:
		return "CRC"
	case protocol.RespTimeout:
		return "TIMEOUT"
	case protocol.RespBusy:
		return "BUSY"
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}
