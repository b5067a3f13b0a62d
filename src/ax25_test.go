package mowas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAX25Address(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected AX25Address
		wantErr  bool
	}{
		{"plain", "APMOWA", AX25Address{Call: "APMOWA"}, false},
		{"with ssid", "DB0XYZ-10", AX25Address{Call: "DB0XYZ", SSID: 10}, false},
		{"lowercase", "dl1abc-1", AX25Address{Call: "DL1ABC", SSID: 1}, false},
		{"too long", "TOOLONGCALL", AX25Address{}, true},
		{"bad ssid", "DL1ABC-16", AX25Address{}, true},
		{"bad chars", "DL1A.C", AX25Address{}, true},
		{"empty", "", AX25Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAX25Address(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}

func TestAX25AddressString(t *testing.T) {
	assert.Equal(t, "APMOWA", AX25Address{Call: "APMOWA"}.String())
	assert.Equal(t, "WIDE1-1", AX25Address{Call: "WIDE1", SSID: 1}.String())
}

func TestAX25AddressEncode(t *testing.T) {
	addr := AX25Address{Call: "WIDE1", SSID: 1}

	enc := addr.encode(false)
	require.Len(t, enc, 7)
	// Callsign bytes are shifted left one bit, space-padded to 6.
	assert.Equal(t, byte('W')<<1, enc[0])
	assert.Equal(t, byte('1')<<1, enc[4])
	assert.Equal(t, byte(' ')<<1, enc[5])
	assert.Equal(t, byte(0x62), enc[6])

	last := addr.encode(true)
	assert.Equal(t, byte(0x63), last[6])
}

func TestAX25UIFrameBytes(t *testing.T) {
	frame := AX25UIFrame{
		Dst:   AX25Address{Call: "APMOWA"},
		Src:   AX25Address{Call: "DL1ABC", SSID: 1},
		Digis: []AX25Address{{Call: "WIDE1", SSID: 1}},
		Info:  []byte("hello"),
	}
	raw := frame.Bytes()
	require.Len(t, raw, 3*7+2+5)

	// Only the final address byte has the extension bit set.
	assert.Zero(t, raw[6]&0x01)
	assert.Zero(t, raw[13]&0x01)
	assert.Equal(t, byte(0x01), raw[20]&0x01)

	assert.Equal(t, byte(ax25ControlUI), raw[21])
	assert.Equal(t, byte(ax25PIDNoL3), raw[22])
	assert.Equal(t, "hello", string(raw[23:]))
}

func TestAX25UIFrameNoDigis(t *testing.T) {
	frame := AX25UIFrame{
		Dst:  AX25Address{Call: "APMOWA"},
		Src:  AX25Address{Call: "DL1ABC", SSID: 1},
		Info: []byte("x"),
	}
	raw := frame.Bytes()
	require.Len(t, raw, 2*7+2+1)
	// Source closes the address field.
	assert.Equal(t, byte(0x01), raw[13]&0x01)
}
