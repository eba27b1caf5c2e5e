// Package pktdump prints pcap captures dissected by the pktstack catalog
// and crafts packets from YAML descriptions.
package pktdump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcapgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/pktstack/dissect"
	"github.com/yanet-platform/pktstack/layer"
	"github.com/yanet-platform/pktstack/xpacket"
)

// batchSize is the number of packets dissected concurrently before their
// output is flushed in capture order.
const batchSize = 256

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// DumperOption is a function that configures the dumper.
type DumperOption func(*options)

// WithLog sets the logger for the dumper.
func WithLog(log *zap.SugaredLogger) DumperOption {
	return func(o *options) {
		o.Log = log
	}
}

// Stats summarizes a dump.
type Stats struct {
	// Packets is the number of packets read.
	Packets int
	// Bytes is the number of captured bytes read.
	Bytes int
	// Truncated counts packets cut down to the snapshot length.
	Truncated int
	// Undissected counts packets ending with non-zero bytes no layer
	// claimed.
	Undissected int
	// Mismatches counts field disagreements with gopacket.
	Mismatches int
}

// Dumper dissects pcap captures.
type Dumper struct {
	cfg      *Config
	registry *dissect.Registry
	filters  []glob.Glob
	log      *zap.SugaredLogger
}

// NewDumper creates a dumper using the provided configuration.
func NewDumper(cfg *Config, options ...DumperOption) (*Dumper, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	filters := make([]glob.Glob, 0, len(cfg.Layers))
	for _, pattern := range cfg.Layers {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid layer pattern %q: %w", pattern, err)
		}
		filters = append(filters, g)
	}

	registry, err := NewRegistry(cfg, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build protocol catalog: %w", err)
	}

	return &Dumper{
		cfg:      cfg,
		registry: registry,
		filters:  filters,
		log:      opts.Log,
	}, nil
}

// Registry returns the protocol catalog used by the dumper.
func (m *Dumper) Registry() *dissect.Registry {
	return m.registry
}

type record struct {
	index      int
	info       gopacket.CaptureInfo
	data       []byte
	truncated  bool
	packet     *layer.Packet
	mismatches []xpacket.Mismatch
}

// Run reads a pcap capture from r and writes one entry per packet to w.
func (m *Dumper) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	var stats Stats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to open capture: %w", err)
	}

	linkType := uint32(reader.LinkType())
	if _, ok := m.registry.Links()[linkType]; !ok {
		return stats, fmt.Errorf("unsupported link type %d (%s)", linkType, reader.LinkType())
	}
	m.log.Infow("reading capture",
		zap.Uint32("link_type", linkType),
		zap.Uint32("snaplen", reader.Snaplen()),
		zap.Int("workers", m.cfg.Workers),
	)

	snaplen := int(m.cfg.Snaplen.Bytes())
	index := 0
	for {
		batch := make([]*record, 0, batchSize)
		for len(batch) < batchSize {
			data, info, err := reader.ReadPacketData()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return stats, fmt.Errorf("failed to read packet #%d: %w", index+1, err)
			}

			index++
			rec := &record{index: index, info: info, data: data}
			if len(rec.data) > snaplen {
				rec.data = rec.data[:snaplen]
				rec.truncated = true
			}
			batch = append(batch, rec)
		}
		if len(batch) == 0 {
			break
		}

		if err := m.dissect(ctx, linkType, batch); err != nil {
			return stats, err
		}
		for _, rec := range batch {
			stats.add(rec)
			if _, err := io.WriteString(w, m.format(rec)); err != nil {
				return stats, fmt.Errorf("failed to write output: %w", err)
			}
		}
	}

	m.log.Infow("capture done",
		zap.Int("packets", stats.Packets),
		zap.Int("undissected", stats.Undissected),
		zap.Int("mismatches", stats.Mismatches),
	)
	return stats, nil
}

func (m *Stats) add(rec *record) {
	m.Packets++
	m.Bytes += len(rec.data)
	if rec.truncated {
		m.Truncated++
	}
	if undissected(rec.packet) {
		m.Undissected++
	}
	m.Mismatches += len(rec.mismatches)
}

// undissected reports whether the packet ends with bytes no layer claimed.
// An all-zero tail is link-layer padding of a short frame.
func undissected(pkt *layer.Packet) bool {
	raw, err := pkt.Layer(layer.RawName)
	if err != nil {
		return false
	}
	load, err := raw.Bytes("load")
	if err != nil {
		return true
	}
	return slices.ContainsFunc(load, func(b byte) bool { return b != 0 })
}

func (m *Dumper) dissect(ctx context.Context, linkType uint32, batch []*record) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.SetLimit(m.cfg.Workers)

	for _, rec := range batch {
		wg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			pkt, err := m.registry.Dissect(linkType, rec.data)
			if err != nil {
				return fmt.Errorf("failed to dissect packet #%d: %w", rec.index, err)
			}
			rec.packet = pkt

			if m.cfg.CrossCheck {
				rec.mismatches = m.crossCheck(linkType, rec)
			}
			return nil
		})
	}

	return wg.Wait()
}

func (m *Dumper) crossCheck(linkType uint32, rec *record) []xpacket.Mismatch {
	ref, err := xpacket.Decode(linkType, rec.data)
	if err != nil {
		m.log.Debugw("reference decoder failed", zap.Int("packet", rec.index), zap.Error(err))
	}

	mismatches := xpacket.Compare(rec.packet, ref)
	for _, mismatch := range mismatches {
		m.log.Warnw("dissection disagrees with gopacket",
			zap.Int("packet", rec.index),
			zap.Stringer("mismatch", mismatch),
		)
	}
	return mismatches
}

func (m *Dumper) selected(l *layer.Instance) bool {
	if len(m.filters) == 0 {
		return true
	}
	for _, g := range m.filters {
		if g.Match(l.Name()) {
			return true
		}
	}
	return false
}

func (m *Dumper) format(rec *record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#%d %s %d bytes: ", rec.index, rec.info.Timestamp.UTC().Format(time.RFC3339Nano), len(rec.data))
	if len(m.filters) == 0 {
		b.WriteString(rec.packet.String())
	} else {
		var parts []string
		for _, l := range rec.packet.Layers() {
			if m.selected(l) {
				parts = append(parts, l.String())
			}
		}
		b.WriteString(strings.Join(parts, " / "))
	}
	if rec.truncated {
		b.WriteString(" [truncated]")
	}
	if n := len(rec.mismatches); n > 0 {
		fmt.Fprintf(&b, " [%d mismatches]", n)
	}
	b.WriteByte('\n')

	if m.cfg.Dump {
		for _, l := range rec.packet.Layers() {
			if m.selected(l) {
				b.WriteString(l.Dump())
			}
		}
	}
	return b.String()
}
