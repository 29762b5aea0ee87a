package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yapingcat/gomedia/go-mp4"
)

// mp4Source reads ISO BMFF files. gomedia returns H.264 as Annex-B with
// parameter sets ahead of keyframes, AAC with ADTS headers, and timestamps
// in milliseconds.
type mp4Source struct {
	inputFile
	demuxer *mp4.MovDemuxer
	streams []StreamDescriptor
	byTrack map[int]int
}

func openMP4(_ context.Context, f *os.File, _ ContainerConfig) (ContainerSource, error) {
	demuxer := mp4.CreateMp4Demuxer(f)
	tracks, err := demuxer.ReadHead()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.New("no tracks")
	}

	s := &mp4Source{inputFile: inputFile{f: f}, demuxer: demuxer, byTrack: make(map[int]int)}
	for _, t := range tracks {
		desc := StreamDescriptor{Index: len(s.streams), ClockRate: 1000}
		switch t.Cid {
		case mp4.MP4_CODEC_H264, mp4.MP4_CODEC_H265:
			desc.MediaType = MediaTypeVideo
			desc.VideoCodec = VideoCodecH264
			if t.Cid == mp4.MP4_CODEC_H265 {
				desc.VideoCodec = VideoCodecH265
			}
			desc.Width = int(t.Width)
			desc.Height = int(t.Height)
			desc.PixelFormat = PixelFormatI420
		case mp4.MP4_CODEC_AAC, mp4.MP4_CODEC_G711A, mp4.MP4_CODEC_G711U, mp4.MP4_CODEC_MP3, mp4.MP4_CODEC_OPUS:
			desc.MediaType = MediaTypeAudio
			desc.AudioCodec = mp4AudioCodec(t.Cid)
			desc.SampleRate = int(t.SampleRate)
			desc.Channels = int(t.ChannelCount)
		default:
			desc.MediaType = MediaTypeData
		}
		s.byTrack[int(t.TrackId)] = desc.Index
		s.streams = append(s.streams, desc)
	}
	return s, nil
}

func mp4AudioCodec(cid mp4.MP4_CODEC_TYPE) AudioCodec {
	switch cid {
	case mp4.MP4_CODEC_AAC:
		return AudioCodecAAC
	case mp4.MP4_CODEC_G711A:
		return AudioCodecG711A
	case mp4.MP4_CODEC_G711U:
		return AudioCodecG711U
	case mp4.MP4_CODEC_MP3:
		return AudioCodecMP3
	case mp4.MP4_CODEC_OPUS:
		return AudioCodecOpus
	}
	return AudioCodecUnknown
}

func (s *mp4Source) Format() ContainerFormat { return FormatMP4 }

func (s *mp4Source) Streams() []StreamDescriptor { return s.streams }

func (s *mp4Source) ReadPacket() (*Packet, error) {
	for {
		pkt, err := s.demuxer.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("mp4: %w", err)
		}
		idx, ok := s.byTrack[int(pkt.TrackId)]
		if !ok {
			continue
		}
		data := make([]byte, len(pkt.Data))
		copy(data, pkt.Data)
		p := NewPacket(idx, data, int64(pkt.Pts), int64(pkt.Dts))
		if s.streams[idx].VideoCodec == VideoCodecH264 {
			p.Keyframe = annexBKeyframe(data)
		}
		return p, nil
	}
}
