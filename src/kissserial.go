package mowas

import (
	"github.com/pkg/term"
	"github.com/rs/zerolog"
)

// KISSLink is the transport below a target: it takes a fully framed
// KISS byte stream and gets it to the TNC.
type KISSLink interface {
	Send(data []byte) error
	Close() error
}

// SerialKISSLink drives a TNC attached to a serial port. The port is
// opened for each write and closed again afterwards, so other
// processes can share the device between cycles. Optional command
// sequences bracket the link (cmd_up/cmd_down) and every payload
// (cmd_pre/cmd_post), e.g. to switch a multi-mode TNC into KISS mode.
type SerialKISSLink struct {
	device  string
	baud    int
	cmdDown []byte
	cmdPre  []byte
	cmdPost []byte
	logger  zerolog.Logger
}

func NewSerialKISSLink(cfg SerialConfig, logger zerolog.Logger) (*SerialKISSLink, error) {
	l := &SerialKISSLink{
		device:  cfg.Device,
		baud:    cfg.Baud,
		cmdDown: cfg.CmdDown,
		cmdPre:  cfg.CmdPre,
		cmdPost: cfg.CmdPost,
		logger:  logger,
	}
	// Bring the TNC up once at startup. This also verifies the
	// device is usable before the first cycle.
	if err := l.write(cfg.CmdUp); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SerialKISSLink) write(chunks ...[]byte) error {
	t, err := term.Open(l.device, term.RawMode)
	if err != nil {
		return err
	}
	defer t.Close()
	if err := t.SetSpeed(l.baud); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		if _, err := t.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (l *SerialKISSLink) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return l.write(l.cmdPre, data, l.cmdPost)
}

func (l *SerialKISSLink) Close() error {
	return l.write(l.cmdDown)
}
