package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// ivfSource reads IVF files: one video stream of VP8, VP9 or AV1 frames.
// Packet timestamps count frames; ClockRate is the nominal frame rate.
type ivfSource struct {
	inputFile
	reader  *ivfreader.IVFReader
	streams []StreamDescriptor
	frame   int64
}

func ivfCodec(fourcc string) VideoCodec {
	switch fourcc {
	case "VP80":
		return VideoCodecVP8
	case "VP90":
		return VideoCodecVP9
	case "AV01":
		return VideoCodecAV1
	}
	return VideoCodecUnknown
}

func openIVF(_ context.Context, f *os.File, _ ContainerConfig) (ContainerSource, error) {
	reader, header, err := ivfreader.NewWith(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	rate := 1
	if header.TimebaseNumerator > 0 && header.TimebaseDenominator >= header.TimebaseNumerator {
		rate = int(header.TimebaseDenominator / header.TimebaseNumerator)
	}
	desc := StreamDescriptor{
		MediaType:   MediaTypeVideo,
		VideoCodec:  ivfCodec(header.FourCC),
		Width:       int(header.Width),
		Height:      int(header.Height),
		PixelFormat: PixelFormatI420,
		ClockRate:   rate,
	}
	return &ivfSource{
		inputFile: inputFile{f: f},
		reader:    reader,
		streams:   []StreamDescriptor{desc},
	}, nil
}

func (s *ivfSource) Format() ContainerFormat { return FormatIVF }

func (s *ivfSource) Streams() []StreamDescriptor { return s.streams }

func (s *ivfSource) ReadPacket() (*Packet, error) {
	payload, _, err := s.reader.ParseNextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ivf: %w", err)
	}
	p := NewPacket(0, payload, s.frame, s.frame)
	s.frame++
	switch s.streams[0].VideoCodec {
	case VideoCodecVP8:
		p.Keyframe = isVP8Keyframe(payload)
	case VideoCodecVP9:
		p.Keyframe = len(payload) > 0 && payload[0]&0x04 == 0
	}
	return p, nil
}
