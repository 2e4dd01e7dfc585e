package domain

import (
	"fmt"
	"net"
	"time"
)

// Transport names the socket type a message arrived on.
type Transport string

const (
	TCP Transport = "tcp"
	UDP Transport = "udp"
)

// Message is one unit of data a server received. For stream servers it is
// a single read or a single reassembled NUL-terminated message; for
// datagram servers it is one datagram.
type Message struct {
	// Session identifies the connection (TCP) or the server run (UDP).
	Session string

	Transport Transport
	Local     net.Addr
	Remote    net.Addr

	// Seq numbers messages within a session starting at 1.
	Seq int

	Payload    []byte
	ReceivedAt time.Time
}

// HostPort splits an address into the ('ip', port) pair the lab programs
// print. Unknown address types yield the address string and port 0.
func HostPort(addr net.Addr) (string, int) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), a.Port
	case *net.UDPAddr:
		return a.IP.String(), a.Port
	case nil:
		return "", 0
	default:
		return a.String(), 0
	}
}

// Peer formats addr as ('ip', port).
func Peer(addr net.Addr) string {
	host, port := HostPort(addr)
	return fmt.Sprintf("('%s', %d)", host, port)
}
