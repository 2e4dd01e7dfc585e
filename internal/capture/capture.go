// Package capture writes received lab messages to a pcap file as
// synthesized Ethernet/IP packets, so a session can be opened in
// Wireshark or tcpdump, and reads such files back.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/bft-labs/socklab/internal/domain"
)

// SnapLen is the snapshot length recorded in the file header.
const SnapLen = 65536

// maxPayload is the largest payload that fits one IPv4 packet with a
// TCP header.
const maxPayload = 65535 - 20 - 20

// ErrPayloadTooLarge is returned for payloads that do not fit a packet.
var ErrPayloadTooLarge = errors.New("capture: payload too large for one packet")

var (
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	loopback4 = net.IPv4(127, 0, 0, 1)
)

// Writer is a MessageSink that appends one packet per message. Messages
// travel from their Remote address to their Local address.
type Writer struct {
	mu      sync.Mutex
	closer  io.Closer
	pw      *pcapgo.Writer
	seq     map[string]uint32
	packets int
}

// Create truncates path and writes a pcap header to it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes a pcap header to out. Close does not close out.
func NewWriter(out io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(out)
	if err := pw.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{pw: pw, seq: make(map[string]uint32)}, nil
}

// Deliver appends msg as one packet.
func (w *Writer) Deliver(_ context.Context, msg domain.Message) error {
	if len(msg.Payload) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(msg.Payload))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.encode(msg)
	if err != nil {
		return err
	}
	at := msg.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	ci := gopacket.CaptureInfo{Timestamp: at, CaptureLength: len(data), Length: len(data)}
	if err := w.pw.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.packets++
	return nil
}

// Packets returns the number of packets written.
func (w *Writer) Packets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets
}

// Close closes the underlying file when the Writer owns it.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func (w *Writer) encode(msg domain.Message) ([]byte, error) {
	srcIP, srcPort := endpoint(msg.Remote)
	dstIP, dstPort := endpoint(msg.Local)

	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC}
	var network gopacket.NetworkLayer
	var netLayer gopacket.SerializableLayer
	if srcIP.To4() != nil && dstIP.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: ipProtocol(msg.Transport),
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
		}
		network, netLayer = ip, ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: ipProtocol(msg.Transport),
			SrcIP:      srcIP.To16(),
			DstIP:      dstIP.To16(),
		}
		network, netLayer = ip, ip
	}

	var transport gopacket.SerializableLayer
	switch msg.Transport {
	case domain.UDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		transport = udp
	default:
		seq, ok := w.seq[msg.Session]
		if !ok {
			seq = 1
		}
		w.seq[msg.Session] = seq + uint32(len(msg.Payload))
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(srcPort),
			DstPort: layers.TCPPort(dstPort),
			Seq:     seq,
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, netLayer, transport, gopacket.Payload(msg.Payload)); err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return buf.Bytes(), nil
}

func ipProtocol(t domain.Transport) layers.IPProtocol {
	if t == domain.UDP {
		return layers.IPProtocolUDP
	}
	return layers.IPProtocolTCP
}

// endpoint extracts IP and port, defaulting to 127.0.0.1:0.
func endpoint(a net.Addr) (net.IP, int) {
	switch v := a.(type) {
	case *net.TCPAddr:
		if v != nil && v.IP != nil {
			return v.IP, v.Port
		}
	case *net.UDPAddr:
		if v != nil && v.IP != nil {
			return v.IP, v.Port
		}
	}
	return loopback4, 0
}
