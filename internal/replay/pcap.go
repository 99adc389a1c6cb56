// Package replay feeds captured accelerometer sample streams through the
// pipeline, regenerating reports offline from pcap files of the UDP stream.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/vibration.report/internal/accelmux"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/units"
)

// Stats summarizes a replay run.
type Stats struct {
	// Packets is the number of packets read from the capture.
	Packets int

	// Triples is the number of samples handed to the pipeline.
	Triples int

	// SkippedLines counts payload lines that were not parseable samples.
	SkippedLines int
}

// Run reads a pcap capture of the UDP sample stream and hands each packet's
// samples to batch in arrival order, stamped with the packet's capture time
// so regenerated reports land on the capture's dates. A udpPort of 0 accepts
// any destination port. Malformed lines are counted, not fatal.
func Run(ctx context.Context, path string, udpPort int, batch func(ts time.Time, samples []units.Triple)) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("replay: open capture: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("replay: read capture header: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("replay: read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if udpPort != 0 && int(udp.DstPort) != udpPort {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}

		var triples []units.Triple
		for _, line := range strings.Split(string(udp.Payload), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if accelmux.ClassifyLine(line) != accelmux.LineKindSample {
				stats.SkippedLines++
				continue
			}
			t, err := accelmux.ParseSampleLine(line)
			if err != nil {
				stats.SkippedLines++
				continue
			}
			triples = append(triples, t)
		}

		if len(triples) > 0 {
			stats.Triples += len(triples)
			batch(ci.Timestamp, triples)
		}

		if stats.Packets%10000 == 0 {
			monitoring.Logf("replay progress: %d packets, %d samples", stats.Packets, stats.Triples)
		}
	}
}
