package media

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strconv"

	mpeg2 "github.com/yapingcat/gomedia/go-mpeg2"
)

// tsSource reads MPEG transport streams. gomedia's demuxer consumes the
// whole reader in one call, so it runs on a pump goroutine. Timestamps are
// delivered in milliseconds.
type tsSource struct {
	inputFile
	pump    *packetPump
	streams []StreamDescriptor
	pending []*Packet
}

func openTS(ctx context.Context, f *os.File, cfg ContainerConfig) (ContainerSource, error) {
	s := &tsSource{inputFile: inputFile{f: f}}
	s.pump = startPump(ctx, func(ctx context.Context, p *packetPump) error {
		demuxer := mpeg2.NewTSDemuxer()
		stopped := false
		demuxer.OnFrame = func(cid mpeg2.TS_STREAM_TYPE, frame []byte, pts, dts uint64) {
			if stopped {
				return
			}
			idx := p.stream(strconv.Itoa(int(cid)), func() StreamDescriptor {
				return tsStreamDescriptor(cid)
			})
			data := make([]byte, len(frame))
			copy(data, frame)
			pkt := NewPacket(idx, data, int64(pts), int64(dts))
			if cid == mpeg2.TS_STREAM_H264 {
				pkt.Keyframe = annexBKeyframe(data)
			}
			if !p.emit(ctx, pkt) {
				stopped = true
			}
		}
		err := demuxer.Input(bufio.NewReaderSize(f, 64*tsPacketSize))
		if stopped {
			return ctx.Err()
		}
		return err
	})

	pending, err := s.pump.discover(cfg.ProbePackets, cfg.ProbeTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pending = pending
	s.streams = s.pump.streams()
	if len(s.streams) == 0 {
		s.Close()
		return nil, errors.New("mpegts: no elementary streams")
	}
	return s, nil
}

func tsStreamDescriptor(cid mpeg2.TS_STREAM_TYPE) StreamDescriptor {
	desc := StreamDescriptor{ClockRate: 1000}
	switch cid {
	case mpeg2.TS_STREAM_H264:
		desc.MediaType = MediaTypeVideo
		desc.VideoCodec = VideoCodecH264
	case mpeg2.TS_STREAM_H265:
		desc.MediaType = MediaTypeVideo
		desc.VideoCodec = VideoCodecH265
	case mpeg2.TS_STREAM_AAC:
		desc.MediaType = MediaTypeAudio
		desc.AudioCodec = AudioCodecAAC
	case mpeg2.TS_STREAM_AUDIO_MPEG1, mpeg2.TS_STREAM_AUDIO_MPEG2:
		desc.MediaType = MediaTypeAudio
		desc.AudioCodec = AudioCodecMP3
	default:
		desc.MediaType = MediaTypeData
	}
	if desc.MediaType == MediaTypeVideo {
		desc.PixelFormat = PixelFormatI420
	}
	return desc
}

func (s *tsSource) Format() ContainerFormat { return FormatMPEGTS }

func (s *tsSource) Streams() []StreamDescriptor { return s.streams }

func (s *tsSource) ReadPacket() (*Packet, error) {
	if len(s.pending) > 0 {
		p := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		return p, nil
	}
	return s.pump.next()
}

// Close closes the file first so a demuxer blocked on I/O returns.
func (s *tsSource) Close() error {
	ferr := s.inputFile.Close()
	return errors.Join(s.pump.stop(), ferr)
}
