package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/yapingcat/gomedia/go-codec"
	ogg "github.com/yapingcat/gomedia/go-ogg"
)

const oggReadSize = 16 * 1024

// oggSource reads Ogg files carrying Opus or VP8. The demuxer is fed in
// chunks; each chunk may complete any number of packets.
type oggSource struct {
	inputFile
	demuxer *ogg.Demuxer
	table   *streamTable
	queue   []*Packet
	buf     []byte
	err     error
}

func openOgg(_ context.Context, f *os.File, cfg ContainerConfig) (ContainerSource, error) {
	s := &oggSource{
		inputFile: inputFile{f: f},
		demuxer:   ogg.NewDemuxer(),
		table:     newStreamTable(),
		buf:       make([]byte, oggReadSize),
	}
	s.demuxer.OnFrame = s.onFrame

	// Headers sit on the first pages; read until a packet of every
	// stream is queued or the probe budget runs out.
	for i := 0; i < cfg.ProbePackets && len(s.queue) < cfg.ProbePackets; i++ {
		if err := s.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if s.table.has(MediaTypeVideo) && s.table.has(MediaTypeAudio) {
			break
		}
	}
	if len(s.table.streams) == 0 {
		return nil, errors.New("ogg: no supported streams")
	}
	s.applyParams()
	return s, nil
}

func (s *oggSource) onFrame(streamID uint32, cid codec.CodecID, frame []byte, pts, dts uint64, lost int) {
	idx := s.table.lookup(strconv.FormatUint(uint64(streamID), 10), func() StreamDescriptor {
		desc := StreamDescriptor{ClockRate: 1000}
		switch cid {
		case codec.CODECID_AUDIO_OPUS:
			desc.MediaType = MediaTypeAudio
			desc.AudioCodec = AudioCodecOpus
		case codec.CODECID_VIDEO_VP8:
			desc.MediaType = MediaTypeVideo
			desc.VideoCodec = VideoCodecVP8
			desc.PixelFormat = PixelFormatI420
		default:
			desc.MediaType = MediaTypeData
		}
		return desc
	})
	data := make([]byte, len(frame))
	copy(data, frame)
	p := NewPacket(idx, data, int64(pts), int64(dts))
	if cid == codec.CODECID_VIDEO_VP8 {
		p.Keyframe = isVP8Keyframe(data)
	}
	s.queue = append(s.queue, p)
}

// applyParams copies the identification headers into the descriptors.
func (s *oggSource) applyParams() {
	for i := range s.table.streams {
		st := &s.table.streams[i]
		switch st.MediaType {
		case MediaTypeAudio:
			if ap := s.demuxer.GetAudioParam(); ap != nil {
				st.SampleRate = int(ap.SampleRate)
				st.Channels = int(ap.ChannelCount)
				st.ExtraData = ap.ExtraData
			}
		case MediaTypeVideo:
			if vp := s.demuxer.GetVideoParam(); vp != nil {
				st.Width = int(vp.Width)
				st.Height = int(vp.Height)
				st.ExtraData = vp.ExtraData
			}
		}
	}
}

func (s *oggSource) fill() error {
	if s.err != nil {
		return s.err
	}
	n, err := s.f.Read(s.buf)
	if n > 0 {
		if derr := s.demuxer.Input(s.buf[:n]); derr != nil {
			s.err = fmt.Errorf("ogg: %w", derr)
			return s.err
		}
	}
	if err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *oggSource) Format() ContainerFormat { return FormatOgg }

func (s *oggSource) Streams() []StreamDescriptor { return s.table.streams }

func (s *oggSource) ReadPacket() (*Packet, error) {
	for len(s.queue) == 0 {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	p := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return p, nil
}
