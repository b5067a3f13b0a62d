package mowas

import "fmt"

// KISS framing (Chepponis/Karn). A data frame is FEND, the command
// byte (port number in the high nibble, command 0 = data in the low
// nibble), the escaped payload, FEND.

const (
	FEND  = 0xC0
	FESC  = 0xDB
	TFEND = 0xDC
	TFESC = 0xDD
)

// kissEscape substitutes the two reserved bytes in a payload.
func kissEscape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case FEND:
			out = append(out, FESC, TFEND)
		case FESC:
			out = append(out, FESC, TFESC)
		default:
			out = append(out, b)
		}
	}
	return out
}

// kissUnescape reverses kissEscape.
func kissUnescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b != FESC {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(data) {
			return nil, fmt.Errorf("dangling escape at end of frame")
		}
		switch data[i] {
		case TFEND:
			out = append(out, FEND)
		case TFESC:
			out = append(out, FESC)
		default:
			return nil, fmt.Errorf("invalid escape sequence %#02x", data[i])
		}
	}
	return out, nil
}

// kissFrame wraps one AX.25 frame for the given TNC port. The command
// byte goes through escaping as well: for port 12 it collides with
// FEND and would otherwise cut the frame in two on the wire.
func kissFrame(port int, frame []byte) []byte {
	content := append([]byte{byte(port&0x0F) << 4}, frame...)
	out := make([]byte, 0, len(content)+2)
	out = append(out, FEND)
	out = append(out, kissEscape(content)...)
	out = append(out, FEND)
	return out
}

// kissStream concatenates a batch of frames for a set of TNC ports
// into one write: all frames for the first port, then all frames for
// the next, and so on.
func kissStream(frames [][]byte, ports []int) []byte {
	var out []byte
	for _, port := range ports {
		for _, frame := range frames {
			out = append(out, kissFrame(port, frame)...)
		}
	}
	return out
}

// kissSplit decodes a byte stream back into (port, frame) pairs. Used
// by the tests to check what would go over the wire.
type kissPacket struct {
	Port  int
	Frame []byte
}

func kissSplit(stream []byte) ([]kissPacket, error) {
	var packets []kissPacket
	start := -1
	for i, b := range stream {
		if b != FEND {
			if start < 0 {
				return nil, fmt.Errorf("stray byte %#02x outside frame", b)
			}
			continue
		}
		if start >= 0 && i > start {
			raw, err := kissUnescape(stream[start:i])
			if err != nil {
				return nil, err
			}
			if raw[0]&0x0F != 0 {
				return nil, fmt.Errorf("unexpected KISS command %#02x", raw[0])
			}
			packets = append(packets, kissPacket{Port: int(raw[0] >> 4), Frame: raw[1:]})
		}
		start = i + 1
	}
	if start >= 0 && start < len(stream) {
		return nil, fmt.Errorf("unterminated frame")
	}
	return packets, nil
}
