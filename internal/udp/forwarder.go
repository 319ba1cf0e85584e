// Package udp forwards raw passthrough sentences (GPGGA) to a UDP peer such
// as an NTRIP client that needs the receiver's position.
package udp

import (
	"fmt"
	"net"
	"sync/atomic"

	"gnssd/internal/parser"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Forwarder struct {
	dest string
	conn udpConn

	sent   atomic.Uint64
	failed atomic.Uint64
}

type Stats struct {
	Dest   string `json:"dest"`
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newForwarder(dest string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Forwarder{dest: dest, conn: conn}, nil
}

func (f *Forwarder) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := f.conn.Write(payload); err != nil {
		f.failed.Add(1)
		return err
	}
	f.sent.Add(1)
	return nil
}

// Forward sends every raw message in msgs, one datagram each. Structured
// records are skipped. The first send error is returned after all sends are
// attempted.
func (f *Forwarder) Forward(msgs []parser.ParsedMessage) error {
	var first error
	for _, m := range msgs {
		if !m.IsRaw() {
			continue
		}
		if err := f.Send(m.Raw); err != nil && first == nil {
			first = fmt.Errorf("forward %s to %s: %w", m.Type, f.dest, err)
		}
	}
	return first
}

func (f *Forwarder) Stats() Stats {
	if f == nil {
		return Stats{}
	}
	return Stats{Dest: f.dest, Sent: f.sent.Load(), Failed: f.failed.Load()}
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
