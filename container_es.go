package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yapingcat/gomedia/go-codec"
)

const (
	esReadSize    = 64 * 1024
	esMaxToken    = 8 << 20
	annexBFPS     = 25 // raw H.264 carries no timing
	aacFrameSize  = 1024
	id3HeaderSize = 10
)

// esSource reads a headerless elementary stream: one stream, split into
// packets by a bufio.SplitFunc.
type esSource struct {
	inputFile
	format  ContainerFormat
	sc      *bufio.Scanner
	streams []StreamDescriptor
	read    func() (*Packet, error)
}

func newESSource(f *os.File, format ContainerFormat, split bufio.SplitFunc) *esSource {
	sc := bufio.NewScanner(bufio.NewReaderSize(f, esReadSize))
	sc.Buffer(make([]byte, esReadSize), esMaxToken)
	sc.Split(split)
	return &esSource{inputFile: inputFile{f: f}, format: format, sc: sc}
}

// token returns a copy of the next token, or io.EOF.
func (s *esSource) token() ([]byte, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.format, err)
		}
		return nil, io.EOF
	}
	return append([]byte(nil), s.sc.Bytes()...), nil
}

func (s *esSource) Format() ContainerFormat { return s.format }

func (s *esSource) Streams() []StreamDescriptor { return s.streams }

func (s *esSource) ReadPacket() (*Packet, error) { return s.read() }

// --- ADTS ---

func openADTS(_ context.Context, f *os.File, _ ContainerConfig) (ContainerSource, error) {
	s := newESSource(f, FormatADTS, splitADTS)
	first, err := s.token()
	if err != nil {
		return nil, fmt.Errorf("adts: no frames: %w", err)
	}
	h, err := parseADTSHeader(first)
	if err != nil {
		return nil, err
	}
	rate := h.SampleRate()
	s.streams = []StreamDescriptor{{
		MediaType:  MediaTypeAudio,
		AudioCodec: AudioCodecAAC,
		SampleRate: rate,
		Channels:   h.ChannelConfig,
		ClockRate:  rate,
	}}

	var pts int64
	pending := first
	s.read = func() (*Packet, error) {
		data := pending
		pending = nil
		if data == nil {
			var err error
			if data, err = s.token(); err != nil {
				return nil, err
			}
		}
		p := NewPacket(0, data, pts, pts)
		p.Keyframe = true
		pts += aacFrameSize
		return p, nil
	}
	return s, nil
}

// splitADTS yields whole ADTS frames. Bytes that do not start a valid
// header are skipped in the same call, so a damaged stretch near the end of
// the file does not stop the scan.
func splitADTS(data []byte, atEOF bool) (int, []byte, error) {
	return resync(data, atEOF, adtsHeaderSize, func(b []byte) (int, error) {
		h, err := parseADTSHeader(b)
		return h.FrameLength, err
	})
}

// resync scans data for the first offset where frameSize accepts a header
// of at least minHeader bytes and returns that frame. Before EOF it stops at
// a header whose frame is not fully buffered yet; at EOF such a header is
// treated as garbage and the scan goes on.
func resync(data []byte, atEOF bool, minHeader int, frameSize func([]byte) (int, error)) (int, []byte, error) {
	off := 0
	for ; off < len(data); off++ {
		if data[off] != 0xFF {
			continue
		}
		rest := data[off:]
		if len(rest) < minHeader {
			break
		}
		n, err := frameSize(rest)
		if err != nil {
			continue
		}
		if len(rest) >= n {
			return off + n, rest[:n], nil
		}
		if !atEOF {
			break
		}
	}
	if atEOF {
		return len(data), nil, nil
	}
	return off, nil, nil
}

// --- MPEG audio ---

func openMP3(_ context.Context, f *os.File, _ ContainerConfig) (ContainerSource, error) {
	s := newESSource(f, FormatMP3, splitMP3())
	first, err := s.token()
	if err != nil {
		return nil, fmt.Errorf("mp3: no frames: %w", err)
	}
	head, err := codec.DecodeMp3Head(first)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	rate := head.GetSampleRate()
	s.streams = []StreamDescriptor{{
		MediaType:  MediaTypeAudio,
		AudioCodec: AudioCodecMP3,
		SampleRate: rate,
		Channels:   mp3Channels(head),
		ClockRate:  rate,
	}}

	var pts int64
	pending := first
	s.read = func() (*Packet, error) {
		data := pending
		pending = nil
		if data == nil {
			var err error
			if data, err = s.token(); err != nil {
				return nil, err
			}
		}
		p := NewPacket(0, data, pts, pts)
		p.Keyframe = true
		if h, err := codec.DecodeMp3Head(data); err == nil {
			pts += int64(h.SampleSize)
		}
		return p, nil
	}
	return s, nil
}

// splitMP3 yields whole MPEG audio frames. A leading ID3v2 tag is skipped,
// as is anything between frames that does not parse as a header.
func splitMP3() bufio.SplitFunc {
	start := true
	skip := 0
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if start {
			if len(data) < id3HeaderSize && !atEOF {
				return 0, nil, nil
			}
			start = false
			skip = id3TagSize(data)
		}
		if skip >= len(data) {
			skip -= len(data)
			return len(data), nil, nil
		}
		tag := skip
		skip = 0
		adv, tok, err := resync(data[tag:], atEOF, 4, mp3FrameSize)
		return tag + adv, tok, err
	}
}

// id3TagSize returns the length of an ID3v2 tag at the start of data, or 0.
func id3TagSize(data []byte) int {
	if len(data) < id3HeaderSize || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	n := id3HeaderSize + size
	if data[5]&0x10 != 0 {
		n += id3HeaderSize // footer
	}
	return n
}

// --- H.264 Annex-B ---

func openAnnexB(_ context.Context, f *os.File, _ ContainerConfig) (ContainerSource, error) {
	s := newESSource(f, FormatAnnexB, splitNALUnits)
	s.streams = []StreamDescriptor{{
		MediaType:   MediaTypeVideo,
		VideoCodec:  VideoCodecH264,
		PixelFormat: PixelFormatI420,
		ClockRate:   annexBFPS,
	}}
	a := &auAssembler{next: s.token}
	var pts int64
	s.read = func() (*Packet, error) {
		au, err := a.accessUnit()
		if err != nil {
			return nil, err
		}
		p := NewPacket(0, au, pts, pts)
		p.Keyframe = annexBKeyframe(au)
		pts++
		return p, nil
	}
	return s, nil
}

// splitNALUnits yields NAL units without their start codes.
func splitNALUnits(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	begin := bytes.Index(data, []byte{0, 0, 1})
	if begin < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a possible partial start code.
		if len(data) > 2 {
			return len(data) - 2, nil, nil
		}
		return 0, nil, nil
	}
	begin += 3
	end := bytes.Index(data[begin:], []byte{0, 0, 1})
	if end < 0 {
		if !atEOF {
			return 0, nil, nil
		}
		end = len(data) - begin
	}
	nal := bytes.TrimRight(data[begin:begin+end], "\x00")
	if len(nal) == 0 {
		if !atEOF {
			return begin + end, nil, nil
		}
		// The scanner stops on an empty token at EOF; look past it here.
		adv, tok, err := splitNALUnits(data[begin+end:], atEOF)
		return begin + end + adv, tok, err
	}
	return begin + end, nal, nil
}

// auAssembler groups NAL units into access units (H.264 7.4.1.2.3): an AU
// ends before an AUD, SEI or parameter set that follows a slice, or before
// a slice with first_mb_in_slice equal to zero.
type auAssembler struct {
	next    func() ([]byte, error)
	pending []byte
}

func (a *auAssembler) accessUnit() ([]byte, error) {
	var au []byte
	hasSlice := false
	for {
		nal := a.pending
		a.pending = nil
		if nal == nil {
			var err error
			nal, err = a.next()
			if errors.Is(err, io.EOF) {
				if len(au) > 0 {
					return au, nil
				}
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
		}
		if hasSlice && startsAccessUnit(nal) {
			a.pending = nal
			return au, nil
		}
		au = append(au, 0, 0, 0, 1)
		au = append(au, nal...)
		if isVCLNALType(nal[0] & 0x1F) {
			hasSlice = true
		}
	}
}

func startsAccessUnit(nal []byte) bool {
	switch t := nal[0] & 0x1F; {
	case t == nalTypeAUD, t == nalTypeSEI, t == nalTypeSPS, t == nalTypePPS, t >= 14 && t <= 18:
		return true
	case isVCLNALType(t):
		// first_mb_in_slice is ue(v); a leading 1 bit encodes zero.
		return len(nal) > 1 && nal[1]&0x80 != 0
	}
	return false
}
