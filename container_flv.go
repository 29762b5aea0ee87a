package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	flv "github.com/yapingcat/gomedia/go-flv"
)

const (
	flvHeaderSize    = 9
	flvTagHeaderSize = 11
	flvHasAudio      = 0x04
	flvHasVideo      = 0x01
)

// flvSource reads FLV files tag by tag. Tag bodies go through the same
// demuxer as RTMP ingest.
type flvSource struct {
	inputFile
	r       *bufio.Reader
	tags    *flvTagDemuxer
	streams []StreamDescriptor
	queue   []*Packet
	hdr     [flvTagHeaderSize + 4]byte
}

func openFLV(_ context.Context, f *os.File, cfg ContainerConfig) (ContainerSource, error) {
	s := &flvSource{inputFile: inputFile{f: f}, r: bufio.NewReaderSize(f, 64*1024)}
	s.tags = newFLVTagDemuxer(s.register, s.update)

	var header [flvHeaderSize]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		return nil, fmt.Errorf("flv header: %w", err)
	}
	if !bytes.HasPrefix(header[:], []byte("FLV")) {
		return nil, errors.New("flv: bad signature")
	}
	flags := header[4]
	if skip := int(binary.BigEndian.Uint32(header[5:9])) - flvHeaderSize; skip > 0 {
		if _, err := s.r.Discard(skip); err != nil {
			return nil, fmt.Errorf("flv header: %w", err)
		}
	}

	// Codecs are only known once the first tag of each kind was read.
	for tags := 0; tags < cfg.ProbePackets && !s.announced(flags); tags++ {
		err := s.readTag()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *flvSource) announced(flags byte) bool {
	want := map[MediaType]bool{
		MediaTypeVideo: flags&flvHasVideo != 0,
		MediaTypeAudio: flags&flvHasAudio != 0,
	}
	for _, st := range s.streams {
		delete(want, st.MediaType)
	}
	for _, pending := range want {
		if pending {
			return false
		}
	}
	return true
}

func (s *flvSource) register(desc StreamDescriptor) int {
	desc.Index = len(s.streams)
	s.streams = append(s.streams, desc)
	return desc.Index
}

func (s *flvSource) update(idx int, fn func(*StreamDescriptor)) {
	fn(&s.streams[idx])
}

// readTag reads one tag (with its leading PreviousTagSize) and queues the
// packets it produced.
func (s *flvSource) readTag() error {
	if _, err := io.ReadFull(s.r, s.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	h := s.hdr[4:]
	tagType := flv.TagType(h[0] & 0x1F)
	size := int(flv.GetUint24(h[1:4]))
	ts := flv.GetUint24(h[4:7]) | uint32(h[7])<<24

	body := make([]byte, size)
	if _, err := io.ReadFull(s.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("flv tag: %w", err)
	}
	if size == 0 || h[0]&0x20 != 0 {
		return nil // empty or encrypted
	}
	if tagType != flv.VIDEO_TAG && tagType != flv.AUDIO_TAG {
		return nil
	}
	if err := s.tags.input(tagType, ts, body); err != nil {
		return err
	}
	s.queue = append(s.queue, s.tags.take()...)
	return nil
}

func (s *flvSource) Format() ContainerFormat { return FormatFLV }

func (s *flvSource) Streams() []StreamDescriptor { return s.streams }

func (s *flvSource) ReadPacket() (*Packet, error) {
	for len(s.queue) == 0 {
		if err := s.readTag(); err != nil {
			return nil, err
		}
	}
	p := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return p, nil
}
