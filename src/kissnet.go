package mowas

import (
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// tcpDialTimeout bounds the connection attempt to a network TNC.
const tcpDialTimeout = 10 * time.Second

// TCPKISSLink drives a network KISS TNC (e.g. a sound modem exposing
// KISS-over-TCP). A fresh connection is made per batch and torn down
// after the write, mirroring the scoped acquisition of the serial
// link.
type TCPKISSLink struct {
	host   string
	port   int
	logger zerolog.Logger
}

func NewTCPKISSLink(cfg RemoteConfig, logger zerolog.Logger) *TCPKISSLink {
	return &TCPKISSLink{
		host:   cfg.Host,
		port:   cfg.Port,
		logger: logger,
	}
}

func (l *TCPKISSLink) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	conn, err := net.DialTimeout("tcp", addr, tcpDialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Send-only link, the TNC's receive side is not our business.
		tcp.CloseRead()
	}
	if _, err := conn.Write(data); err != nil {
		return err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	return nil
}

func (l *TCPKISSLink) Close() error {
	return nil
}
