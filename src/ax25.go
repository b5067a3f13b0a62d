package mowas

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimal AX.25 v2.2 frame assembly: the gateway only ever sends UI
// frames, so this covers addresses and the unnumbered information
// encoding, nothing more.

const (
	ax25ControlUI = 0x03
	ax25PIDNoL3   = 0xF0
)

// AX25Address is one callsign-SSID pair as it appears in the address
// field of a frame.
type AX25Address struct {
	Call string
	SSID int
}

// ParseAX25Address parses the usual "CALL-N" notation. The SSID part
// is optional and defaults to 0.
func ParseAX25Address(s string) (AX25Address, error) {
	call, ssidstr, found := strings.Cut(s, "-")
	ssid := 0
	if found {
		var err error
		ssid, err = strconv.Atoi(ssidstr)
		if err != nil || ssid < 0 || ssid > 15 {
			return AX25Address{}, fmt.Errorf("invalid SSID in address %q", s)
		}
	}
	call = strings.ToUpper(call)
	if len(call) == 0 || len(call) > 6 {
		return AX25Address{}, fmt.Errorf("invalid callsign in address %q", s)
	}
	for _, r := range call {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return AX25Address{}, fmt.Errorf("invalid callsign in address %q", s)
		}
	}
	return AX25Address{Call: call, SSID: ssid}, nil
}

func (a AX25Address) String() string {
	if a.SSID == 0 {
		return a.Call
	}
	return fmt.Sprintf("%s-%d", a.Call, a.SSID)
}

// encode packs the address into its 7-byte wire form: the callsign
// space-padded to 6 characters and shifted left one bit, then the SSID
// byte. last marks the end of the address field.
func (a AX25Address) encode(last bool) []byte {
	buf := make([]byte, 7)
	for i := 0; i < 6; i++ {
		c := byte(' ')
		if i < len(a.Call) {
			c = a.Call[i]
		}
		buf[i] = c << 1
	}
	buf[6] = 0x60 | byte(a.SSID&0x0F)<<1
	if last {
		buf[6] |= 0x01
	}
	return buf
}

// AX25UIFrame is an unnumbered information frame carrying an APRS
// payload.
type AX25UIFrame struct {
	Dst   AX25Address
	Src   AX25Address
	Digis []AX25Address
	Info  []byte
}

// Bytes returns the frame in wire form, without HDLC flags or FCS;
// that framing is the KISS TNC's job.
func (f *AX25UIFrame) Bytes() []byte {
	buf := make([]byte, 0, 16+7*len(f.Digis)+2+len(f.Info))
	buf = append(buf, f.Dst.encode(false)...)
	buf = append(buf, f.Src.encode(len(f.Digis) == 0)...)
	for i, digi := range f.Digis {
		buf = append(buf, digi.encode(i == len(f.Digis)-1)...)
	}
	buf = append(buf, ax25ControlUI, ax25PIDNoL3)
	buf = append(buf, f.Info...)
	return buf
}
