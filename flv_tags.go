package media

import (
	"errors"
	"fmt"

	"github.com/yapingcat/gomedia/go-codec"
	flv "github.com/yapingcat/gomedia/go-flv"
)

// flvTagDemuxer turns FLV audio and video tag bodies into packets. It backs
// both FLV files and RTMP ingest, which carry identical tag bodies.
type flvTagDemuxer struct {
	video      flv.VideoTagDemuxer
	audio      flv.AudioTagDemuxer
	videoIndex int
	audioIndex int

	// register adds a stream and returns its index.
	register func(desc StreamDescriptor) int
	// update amends a registered stream.
	update func(idx int, fn func(*StreamDescriptor))

	out []*Packet
	dts int64
	key bool
}

var errFLVTagTooShort = errors.New("flv: empty tag body")

// flvSoundRates maps the FLV SoundRate field to Hz.
var flvSoundRates = [4]int{5512, 11025, 22050, 44100}

func newFLVTagDemuxer(register func(StreamDescriptor) int, update func(int, func(*StreamDescriptor))) *flvTagDemuxer {
	return &flvTagDemuxer{
		videoIndex: -1,
		audioIndex: -1,
		register:   register,
		update:     update,
	}
}

// input demuxes one tag body. Packets produced are appended to d.out.
func (d *flvTagDemuxer) input(tagType flv.TagType, timestamp uint32, body []byte) error {
	if len(body) == 0 {
		return errFLVTagTooShort
	}
	d.dts = int64(timestamp)
	switch tagType {
	case flv.VIDEO_TAG:
		return d.inputVideo(body)
	case flv.AUDIO_TAG:
		return d.inputAudio(body)
	}
	return nil
}

func (d *flvTagDemuxer) inputVideo(body []byte) error {
	cid := flv.FLV_VIDEO_CODEC_ID(body[0] & 0x0F)
	if cid != flv.FLV_AVC && cid != flv.FLV_HEVC {
		// Sorenson, VP6 and screen video have no decoder here.
		if d.videoIndex < 0 {
			d.videoIndex = d.register(StreamDescriptor{MediaType: MediaTypeVideo, ClockRate: 1000})
		}
		return nil
	}
	if d.video == nil {
		codecID := VideoCodecH264
		if cid == flv.FLV_HEVC {
			codecID = VideoCodecH265
		}
		d.videoIndex = d.register(StreamDescriptor{
			MediaType:   MediaTypeVideo,
			VideoCodec:  codecID,
			PixelFormat: PixelFormatI420,
			ClockRate:   1000,
		})
		d.video = flv.CreateFlvVideoTagHandle(cid)
		d.video.OnFrame(func(_ codec.CodecID, frame []byte, cts int) {
			data := make([]byte, len(frame))
			copy(data, frame)
			p := NewPacket(d.videoIndex, data, d.dts+int64(cts), d.dts)
			p.Keyframe = d.key
			d.out = append(d.out, p)
		})
	}
	d.key = flv.FLV_VIDEO_FRAME_TYPE(body[0]>>4) == flv.KEY_FRAME
	if err := d.video.Decode(body); err != nil {
		return fmt.Errorf("flv video tag: %w", err)
	}
	return nil
}

func (d *flvTagDemuxer) inputAudio(body []byte) error {
	format := flv.FLV_SOUND_FORMAT(body[0] >> 4)
	if d.audioIndex < 0 {
		desc := StreamDescriptor{
			MediaType:  MediaTypeAudio,
			AudioCodec: flvAudioCodec(format),
			SampleRate: flvSoundRates[(body[0]>>2)&0x03],
			Channels:   int(body[0]&0x01) + 1,
			ClockRate:  1000,
		}
		switch format {
		case flv.FLV_G711A, flv.FLV_G711U:
			desc.SampleRate = 8000
		case flv.FLV_AAC, flv.FLV_MP3:
			// Carried in the bitstream; the tag header value is nominal.
			desc.SampleRate, desc.Channels = 0, 0
		}
		d.audioIndex = d.register(desc)
	}

	switch format {
	case flv.FLV_MP3:
		// gomedia only demuxes G.711 and AAC tags; MP3 bodies follow the
		// one-byte tag header unchanged.
		if len(body) > 1 {
			data := append([]byte(nil), body[1:]...)
			d.out = append(d.out, NewPacket(d.audioIndex, data, d.dts, d.dts))
		}
		return nil
	case flv.FLV_AAC, flv.FLV_G711A, flv.FLV_G711U:
	default:
		return nil
	}

	if format == flv.FLV_AAC && len(body) > 2 && body[1] == flv.AAC_SEQUENCE_HEADER {
		asc := append([]byte(nil), body[2:]...)
		d.update(d.audioIndex, func(s *StreamDescriptor) {
			s.ExtraData = asc
			if rate, ch, err := parseASC(asc); err == nil {
				s.SampleRate, s.Channels = rate, ch
			}
		})
	}
	if d.audio == nil {
		d.audio = flv.CreateAudioTagDemuxer(format)
		d.audio.OnFrame(func(_ codec.CodecID, frame []byte) {
			data := make([]byte, len(frame))
			copy(data, frame)
			d.out = append(d.out, NewPacket(d.audioIndex, data, d.dts, d.dts))
		})
	}
	if err := d.audio.Decode(body); err != nil {
		return fmt.Errorf("flv audio tag: %w", err)
	}
	return nil
}

func flvAudioCodec(format flv.FLV_SOUND_FORMAT) AudioCodec {
	switch format {
	case flv.FLV_AAC:
		return AudioCodecAAC
	case flv.FLV_G711A:
		return AudioCodecG711A
	case flv.FLV_G711U:
		return AudioCodecG711U
	case flv.FLV_MP3:
		return AudioCodecMP3
	}
	return AudioCodecUnknown
}

// take returns and clears the packets produced so far.
func (d *flvTagDemuxer) take() []*Packet {
	out := d.out
	d.out = nil
	return out
}
