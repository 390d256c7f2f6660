package protocol

import "github.com/sagostin/servoctl/internal/ctlerr"

// Response codes (§4.12).
const (
	RespOK           byte = 0
	RespError        byte = 1
	RespInvalidCmd   byte = 2
	RespInvalidParam byte = 3
	RespCRC          byte = 4
	RespTimeout      byte = 5
	RespBusy         byte = 6
)

// BuildFrame serializes a frame per §4.3/§6.1:
// 0xFF 0xFE id cmd len data... crc_hi crc_lo, CRC over id..data, big-endian
// on the wire. It returns the encoded frame.
func BuildFrame(id, cmd byte, data []byte) ([]byte, error) {
	if err := ValidateLength(len(data)); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 5+len(data)+2)
	out = append(out, Header1, Header2, id, cmd, byte(len(data)))
	out = append(out, data...)

	crc := crcOverHeader(id, cmd, byte(len(data)), data)
	out = append(out, byte(crc>>8), byte(crc&0xFF))
	return out, nil
}

// BuildResponse builds a frame whose data is [resp_code, payload...].
func BuildResponse(id, cmd, resp byte, payload []byte) ([]byte, error) {
	data := make([]byte, 0, 1+len(payload))
	data = append(data, resp)
	data = append(data, payload...)
	if len(data) > MaxPayload {
		return nil, ctlerr.New(ctlerr.BadLength, "response payload exceeds 128 bytes")
	}
	return BuildFrame(id, cmd, data)
}
