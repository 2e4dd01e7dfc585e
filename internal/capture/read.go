package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/bft-labs/socklab/internal/domain"
)

// Packet is one decoded message from a capture file.
type Packet struct {
	Timestamp time.Time
	Transport domain.Transport
	Src       string
	Dst       string
	// Seq is the TCP sequence number; 0 for UDP.
	Seq     uint32
	Payload []byte
}

// ReadFile decodes every TCP or UDP packet in the pcap file at path.
func ReadFile(path string) ([]Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes every TCP or UDP packet in a pcap stream. Other packets
// are skipped.
func Read(r io.Reader) ([]Packet, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var out []Packet
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read packet %d: %w", len(out)+1, err)
		}

		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		var srcIP, dstIP net.IP
		switch ip := pkt.NetworkLayer().(type) {
		case *layers.IPv4:
			srcIP, dstIP = ip.SrcIP, ip.DstIP
		case *layers.IPv6:
			srcIP, dstIP = ip.SrcIP, ip.DstIP
		default:
			continue
		}

		p := Packet{Timestamp: ci.Timestamp}
		switch t := pkt.TransportLayer().(type) {
		case *layers.TCP:
			p.Transport = domain.TCP
			p.Src = hostPort(srcIP, int(t.SrcPort))
			p.Dst = hostPort(dstIP, int(t.DstPort))
			p.Seq = t.Seq
		case *layers.UDP:
			p.Transport = domain.UDP
			p.Src = hostPort(srcIP, int(t.SrcPort))
			p.Dst = hostPort(dstIP, int(t.DstPort))
		default:
			continue
		}
		if app := pkt.ApplicationLayer(); app != nil {
			p.Payload = append([]byte(nil), app.Payload()...)
		}
		out = append(out, p)
	}
}

func hostPort(ip net.IP, port int) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
