package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"path"
	"sync"
	"sync/atomic"

	flv "github.com/yapingcat/gomedia/go-flv"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

const defaultRTMPPort = "1935"

var (
	errRTMPBusy       = errors.New("rtmp: a publisher is already connected")
	errRTMPWrongKey   = errors.New("rtmp: unexpected stream key")
	errRTMPNoPublish  = errors.New("rtmp: publisher sent no media")
	errRTMPIngestDone = errors.New("rtmp: ingest closed")
)

// rtmpIngest accepts one publisher and turns its FLV tags into packets.
type rtmpIngest struct {
	ln   net.Listener
	key  string
	log  *slog.Logger
	pump *packetPump

	publishing atomic.Bool
	finished   chan struct{}
	finishOnce sync.Once

	// gate keeps handlers from emitting once serve has returned and the
	// packet channel is closed.
	gate   sync.RWMutex
	closed bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// rtmpSource is the pull side of an rtmpIngest.
type rtmpSource struct {
	ingest  *rtmpIngest
	streams []StreamDescriptor
	pending []*Packet
}

// openRTMP listens on the host of an rtmp://host[:port]/app/key URL and
// waits for a publisher. An empty key accepts any stream name.
func openRTMP(ctx context.Context, rawURL string, cfg ContainerConfig) (ContainerSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rtmp url: %w", err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultRTMPPort)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtmp listen: %w", err)
	}

	in := &rtmpIngest{
		ln:       ln,
		key:      rtmpStreamKey(u.Path),
		log:      cfg.Logger.With("component", "rtmp"),
		finished: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	in.log.Info("waiting for publisher", "addr", ln.Addr().String(), "key", in.key)
	in.pump = startPump(ctx, in.serve)
	s := &rtmpSource{ingest: in}

	// The publisher may take arbitrarily long to connect; only the
	// remaining streams are bounded by the probe timeout.
	first, err := in.pump.next()
	if err != nil {
		s.Close()
		if errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errRTMPNoPublish
		}
		return nil, err
	}
	rest, err := in.pump.discover(cfg.ProbePackets-1, cfg.ProbeTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pending = append([]*Packet{first}, rest...)
	s.streams = in.pump.streams()
	return s, nil
}

// rtmpStreamKey returns the last path element of an RTMP URL path.
func rtmpStreamKey(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	key := path.Base(p)
	if path.Dir(p) == "/" {
		// rtmp://host/app names an application, not a stream.
		return ""
	}
	return key
}

func (in *rtmpIngest) serve(ctx context.Context, p *packetPump) error {
	srv := rtmp.NewServer(&rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			in.connsMu.Lock()
			in.conns[conn] = struct{}{}
			in.connsMu.Unlock()
			in.log.Debug("connection", "remote", conn.RemoteAddr().String())
			return conn, &rtmp.ConnConfig{
				Handler: in.newHandler(ctx, p),
				ControlState: rtmp.StreamControlStateConfig{
					DefaultBandwidthWindowSize: 6 * 1024 * 1024,
				},
			}
		},
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(in.ln) }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-in.finished:
	case err = <-serveErr:
	}

	in.ln.Close()
	in.connsMu.Lock()
	for c := range in.conns {
		c.Close()
	}
	in.connsMu.Unlock()

	in.gate.Lock()
	in.closed = true
	in.gate.Unlock()
	return err
}

func (in *rtmpIngest) finish() {
	in.finishOnce.Do(func() { close(in.finished) })
}

// emit hands packets to the pump unless serve has already returned.
func (in *rtmpIngest) emit(ctx context.Context, p *packetPump, pkts []*Packet) error {
	in.gate.RLock()
	defer in.gate.RUnlock()
	if in.closed {
		return errRTMPIngestDone
	}
	for _, pkt := range pkts {
		if !p.emit(ctx, pkt) {
			return ctx.Err()
		}
	}
	return nil
}

func (in *rtmpIngest) newHandler(ctx context.Context, p *packetPump) *rtmpHandler {
	h := &rtmpHandler{ingest: in, ctx: ctx, pump: p}
	h.tags = newFLVTagDemuxer(
		func(desc StreamDescriptor) int {
			return p.stream(desc.MediaType.String(), func() StreamDescriptor { return desc })
		},
		p.update,
	)
	return h
}

// rtmpHandler serves one RTMP connection. Only the connection that won the
// publish slot delivers media.
type rtmpHandler struct {
	rtmp.DefaultHandler
	ingest    *rtmpIngest
	ctx       context.Context
	pump      *packetPump
	tags      *flvTagDemuxer
	publisher bool
}

func (h *rtmpHandler) OnPublish(_ *rtmp.StreamContext, _ uint32, cmd *rtmpmsg.NetStreamPublish) error {
	if h.ingest.key != "" && cmd.PublishingName != h.ingest.key {
		h.ingest.log.Warn("rejected publisher", "name", cmd.PublishingName)
		return errRTMPWrongKey
	}
	if !h.ingest.publishing.CompareAndSwap(false, true) {
		return errRTMPBusy
	}
	h.publisher = true
	h.ingest.log.Info("publishing", "name", cmd.PublishingName, "type", cmd.PublishingType)
	return nil
}

func (h *rtmpHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	return h.input(flv.VIDEO_TAG, timestamp, payload)
}

func (h *rtmpHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	return h.input(flv.AUDIO_TAG, timestamp, payload)
}

func (h *rtmpHandler) input(tagType flv.TagType, timestamp uint32, payload io.Reader) error {
	if !h.publisher {
		return nil
	}
	body, err := io.ReadAll(payload)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := h.tags.input(tagType, timestamp, body); err != nil {
		h.ingest.log.Warn("dropped tag", "type", tagType, "error", err)
		return nil
	}
	return h.ingest.emit(h.ctx, h.pump, h.tags.take())
}

func (h *rtmpHandler) OnClose() {
	if h.publisher {
		h.ingest.log.Info("publisher disconnected")
		h.ingest.finish()
	}
}

func (s *rtmpSource) Format() ContainerFormat { return FormatRTMP }

func (s *rtmpSource) Streams() []StreamDescriptor { return s.streams }

func (s *rtmpSource) ReadPacket() (*Packet, error) {
	if len(s.pending) > 0 {
		p := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		return p, nil
	}
	return s.ingest.pump.next()
}

func (s *rtmpSource) Close() error {
	return s.ingest.pump.stop()
}
