package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
)

// ContainerSource demultiplexes one input into elementary stream packets.
//
// Streams returns descriptors whose Index matches Packet.StreamIndex.
// ReadPacket returns io.EOF once the input is exhausted. Packet data stays
// valid after the next ReadPacket call.
type ContainerSource interface {
	io.Closer
	Format() ContainerFormat
	Streams() []StreamDescriptor
	ReadPacket() (*Packet, error)
}

// BestStreamChooser is implemented by sources that rank their own streams.
// BestStream returns the index of the preferred stream among candidates,
// which all have the same media type.
type BestStreamChooser interface {
	BestStream(candidates []StreamDescriptor) int
}

// ContainerConfig configures OpenContainer.
type ContainerConfig struct {
	// Format forces a demuxer. FormatUnknown probes the input.
	Format ContainerFormat

	// ProbePackets is how many packets are read ahead to fill stream
	// parameters the container header does not carry.
	ProbePackets int

	// PayloadMap resolves RTP payload types for rtpdump input.
	PayloadMap PayloadMap

	// ProbeTimeout bounds the wait for a live publisher's first packets.
	ProbeTimeout time.Duration

	Logger *slog.Logger
}

const (
	defaultProbePackets = 64
	defaultProbeTimeout = 10 * time.Second
	probeHeadSize       = 4 * tsPacketSize
)

func (c ContainerConfig) withDefaults() ContainerConfig {
	if c.ProbePackets <= 0 {
		c.ProbePackets = defaultProbePackets
	}
	if c.PayloadMap == nil {
		c.PayloadMap = DefaultPayloadMap()
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type containerOpener func(ctx context.Context, f *os.File, cfg ContainerConfig) (ContainerSource, error)

var containerOpeners = map[ContainerFormat]containerOpener{
	FormatMP4:     openMP4,
	FormatFLV:     openFLV,
	FormatMPEGTS:  openTS,
	FormatOgg:     openOgg,
	FormatIVF:     openIVF,
	FormatRTPDump: openRTPDump,
	FormatAnnexB:  openAnnexB,
	FormatADTS:    openADTS,
	FormatMP3:     openMP3,
}

var extensionFormats = map[string]ContainerFormat{
	".mp4":     FormatMP4,
	".m4a":     FormatMP4,
	".mov":     FormatMP4,
	".flv":     FormatFLV,
	".ts":      FormatMPEGTS,
	".m2ts":    FormatMPEGTS,
	".ogg":     FormatOgg,
	".ogv":     FormatOgg,
	".opus":    FormatOgg,
	".ivf":     FormatIVF,
	".rtp":     FormatRTPDump,
	".rtpdump": FormatRTPDump,
	".h264":    FormatAnnexB,
	".264":     FormatAnnexB,
	".aac":     FormatADTS,
	".mp3":     FormatMP3,
}

// OpenContainer opens path and returns a source positioned at the first
// packet. A path of the form rtmp://host:port/app/key listens for a single
// publisher instead of opening a file.
func OpenContainer(ctx context.Context, path string, cfg ContainerConfig) (ContainerSource, error) {
	cfg = cfg.withDefaults()

	var (
		src ContainerSource
		err error
	)
	if strings.HasPrefix(path, "rtmp://") {
		src, err = openRTMP(ctx, path, cfg)
	} else {
		src, err = openFile(ctx, path, cfg)
	}
	if err != nil {
		return nil, err
	}

	probed, err := probeStreams(src, cfg.ProbePackets)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return probed, nil
}

func openFile(ctx context.Context, path string, cfg ContainerConfig) (ContainerSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	format := cfg.Format
	if format == FormatUnknown {
		head := make([]byte, probeHeadSize)
		n, err := f.ReadAt(head, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		format = DetectContainerFormat(head[:n])
		if format == FormatUnknown {
			format = extensionFormats[strings.ToLower(filepath.Ext(path))]
		}
	}

	open, ok := containerOpeners[format]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	src, err := open(ctx, f, cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s as %s: %w", path, format, err)
	}
	cfg.Logger.Debug("container opened", "path", path, "format", format, "streams", len(src.Streams()))
	return src, nil
}

// Describe renders the stream table of a source, one line per stream.
func Describe(src ContainerSource, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input %s, from '%s':\n", src.Format(), name)
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, s := range src.Streams() {
		switch s.MediaType {
		case MediaTypeVideo:
			fmt.Fprintf(w, "  Stream #%d\t%s\t%s\t%dx%d\t%s\n", s.Index, s.MediaType, s.CodecName(), s.Width, s.Height, s.PixelFormat.Name())
		case MediaTypeAudio:
			fmt.Fprintf(w, "  Stream #%d\t%s\t%s\t%d Hz\t%d ch\n", s.Index, s.MediaType, s.CodecName(), s.SampleRate, s.Channels)
		default:
			fmt.Fprintf(w, "  Stream #%d\t%s\t\t\t\n", s.Index, s.MediaType)
		}
	}
	w.Flush()
	return b.String()
}

// streamTable assigns stream indices in order of first appearance.
type streamTable struct {
	streams []StreamDescriptor
	byKey   map[string]int
}

func newStreamTable() *streamTable {
	return &streamTable{byKey: make(map[string]int)}
}

// lookup returns the index registered for key, adding desc when missing.
func (t *streamTable) lookup(key string, desc func() StreamDescriptor) int {
	if idx, ok := t.byKey[key]; ok {
		return idx
	}
	d := desc()
	d.Index = len(t.streams)
	t.streams = append(t.streams, d)
	t.byKey[key] = d.Index
	return d.Index
}

func (t *streamTable) has(mt MediaType) bool {
	for _, s := range t.streams {
		if s.MediaType == mt {
			return true
		}
	}
	return false
}

func (t *streamTable) snapshot() []StreamDescriptor {
	out := make([]StreamDescriptor, len(t.streams))
	copy(out, t.streams)
	return out
}

// inputFile closes the underlying file once.
type inputFile struct {
	f      *os.File
	closed bool
	err    error
}

func (in *inputFile) Close() error {
	if !in.closed {
		in.closed = true
		in.err = in.f.Close()
	}
	return in.err
}
