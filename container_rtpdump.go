package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/pion/rtp"
)

// rtpdump file layout (rtptools): a "#!rtpplay1.0 addr/port\n" line, a
// 16-byte binary header, then records of an 8-byte header followed by the
// captured packet.
const (
	rtpdumpFileHeaderSize   = 16
	rtpdumpRecordHeaderSize = 8
	rtpdumpMaxLine          = 256
)

var errRTPDumpHeader = errors.New("rtpdump: bad file header")

// rtpStream is one SSRC of a capture.
type rtpStream struct {
	index        int
	depacketizer RTPDepacketizer
	first        bool
	last         uint32
	ext          int64
}

// unwrap extends a 32-bit RTP timestamp relative to the first packet.
func (s *rtpStream) unwrap(ts uint32) int64 {
	if !s.first {
		s.first = true
		s.last = ts
		return 0
	}
	s.ext += int64(int32(ts - s.last))
	s.last = ts
	return s.ext
}

// rtpdumpSource reads rtpdump captures. Streams are keyed by SSRC and typed
// by the payload map; RTCP records and unmapped payload types are skipped.
type rtpdumpSource struct {
	inputFile
	r        *bufio.Reader
	payloads PayloadMap
	table    *streamTable
	bySSRC   map[uint32]*rtpStream
	queue    []*Packet
	record   []byte
	warned   map[uint8]bool
	log      *slog.Logger
}

func openRTPDump(_ context.Context, f *os.File, cfg ContainerConfig) (ContainerSource, error) {
	s := &rtpdumpSource{
		inputFile: inputFile{f: f},
		r:         bufio.NewReaderSize(f, 64*1024),
		payloads:  cfg.PayloadMap,
		table:     newStreamTable(),
		bySSRC:    make(map[uint32]*rtpStream),
		warned:    make(map[uint8]bool),
		log:       cfg.Logger,
	}

	line, err := s.r.ReadSlice('\n')
	if err != nil || len(line) > rtpdumpMaxLine || !bytes.HasPrefix(line, []byte("#!rtpplay1.0")) {
		return nil, errRTPDumpHeader
	}
	if _, err := s.r.Discard(rtpdumpFileHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: %w", errRTPDumpHeader, err)
	}

	for i := 0; i < cfg.ProbePackets && !(s.table.has(MediaTypeVideo) && s.table.has(MediaTypeAudio)); i++ {
		if err := s.readRecord(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	if len(s.table.streams) == 0 {
		return nil, errors.New("rtpdump: no mapped RTP streams")
	}
	return s, nil
}

// readRecord reads one capture record and depacketizes it.
func (s *rtpdumpSource) readRecord() error {
	var hdr [rtpdumpRecordHeaderSize]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	length := int(binary.BigEndian.Uint16(hdr[0:2]))
	plen := int(binary.BigEndian.Uint16(hdr[2:4]))
	if length < rtpdumpRecordHeaderSize {
		return fmt.Errorf("rtpdump: record length %d", length)
	}
	size := length - rtpdumpRecordHeaderSize
	if cap(s.record) < size {
		s.record = make([]byte, size)
	}
	s.record = s.record[:size]
	if _, err := io.ReadFull(s.r, s.record); err != nil {
		return io.EOF
	}
	if plen == 0 {
		return nil // RTCP
	}
	if plen < size {
		s.record = s.record[:plen]
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(s.record); err != nil {
		return nil // not RTP
	}
	st, err := s.streamFor(&pkt)
	if st == nil || err != nil {
		return err
	}
	frame, err := st.depacketizer.Depacketize(&pkt)
	if err != nil {
		// A damaged packet loses the frame it belongs to.
		st.depacketizer.Reset()
		return nil
	}
	if frame == nil {
		return nil
	}
	ts := st.unwrap(frame.Timestamp)
	p := NewPacket(st.index, frame.Data, ts, ts)
	p.Keyframe = frame.IsKeyframe()
	s.queue = append(s.queue, p)
	return nil
}

func (s *rtpdumpSource) streamFor(pkt *rtp.Packet) (*rtpStream, error) {
	if st, ok := s.bySSRC[pkt.SSRC]; ok {
		return st, nil
	}
	m, ok := s.payloads[pkt.PayloadType]
	if !ok {
		if !s.warned[pkt.PayloadType] {
			s.warned[pkt.PayloadType] = true
			s.log.Warn("rtpdump: unmapped payload type", "pt", pkt.PayloadType, "ssrc", pkt.SSRC)
		}
		return nil, nil
	}
	desc := StreamDescriptor{
		MediaType:  m.MediaType,
		VideoCodec: m.VideoCodec,
		AudioCodec: m.AudioCodec,
		ClockRate:  m.ClockRate,
		Channels:   m.Channels,
	}
	switch m.MediaType {
	case MediaTypeVideo:
		desc.PixelFormat = PixelFormatI420
	case MediaTypeAudio:
		if m.AudioCodec == AudioCodecG711A || m.AudioCodec == AudioCodecG711U {
			desc.SampleRate = m.ClockRate
		}
	}
	dp, err := createDepacketizer(desc)
	if err != nil {
		return nil, err
	}
	st := &rtpStream{
		index:        s.table.lookup(strconv.FormatUint(uint64(pkt.SSRC), 10), func() StreamDescriptor { return desc }),
		depacketizer: dp,
	}
	s.bySSRC[pkt.SSRC] = st
	return st, nil
}

func (s *rtpdumpSource) Format() ContainerFormat { return FormatRTPDump }

func (s *rtpdumpSource) Streams() []StreamDescriptor { return s.table.streams }

func (s *rtpdumpSource) ReadPacket() (*Packet, error) {
	for len(s.queue) == 0 {
		if err := s.readRecord(); err != nil {
			return nil, err
		}
	}
	p := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return p, nil
}
