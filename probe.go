package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/yapingcat/gomedia/go-codec"
)

// probedSource replays the packets read while filling in stream parameters
// the container header left out.
type probedSource struct {
	ContainerSource
	streams []StreamDescriptor
	pending []*Packet
	counts  []int // packets seen per stream during probing
}

func probeStreams(src ContainerSource, limit int) (*probedSource, error) {
	streams := src.Streams()
	p := &probedSource{
		ContainerSource: src,
		streams:         append([]StreamDescriptor(nil), streams...),
		counts:          make([]int, len(streams)),
	}
	for len(p.pending) < limit && p.incomplete() {
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		p.pending = append(p.pending, pkt)
		if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(p.streams) {
			continue
		}
		p.counts[pkt.StreamIndex]++
		fillStreamParams(&p.streams[pkt.StreamIndex], pkt.Data)
	}
	for i := range p.streams {
		fillStreamDefaults(&p.streams[i])
	}
	return p, nil
}

func (p *probedSource) incomplete() bool {
	for _, s := range p.streams {
		if needsProbe(s) {
			return true
		}
	}
	return false
}

func (p *probedSource) Streams() []StreamDescriptor {
	return p.streams
}

func (p *probedSource) ReadPacket() (*Packet, error) {
	if len(p.pending) > 0 {
		pkt := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		return pkt, nil
	}
	return p.ContainerSource.ReadPacket()
}

// BestStream prefers the stream that delivered more packets while probing
// when the descriptors alone tie.
func (p *probedSource) BestStream(candidates []StreamDescriptor) int {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch cmp := compareStreams(c, best); {
		case cmp > 0:
			best = c
		case cmp == 0 && p.count(c.Index) > p.count(best.Index):
			best = c
		}
	}
	return best.Index
}

func (p *probedSource) count(idx int) int {
	if idx < 0 || idx >= len(p.counts) {
		return 0
	}
	return p.counts[idx]
}

func needsProbe(s StreamDescriptor) bool {
	switch s.MediaType {
	case MediaTypeVideo:
		switch s.VideoCodec {
		case VideoCodecH264, VideoCodecVP8:
			return s.Width == 0 || s.Height == 0
		}
	case MediaTypeAudio:
		switch s.AudioCodec {
		case AudioCodecAAC, AudioCodecMP3:
			return s.SampleRate == 0 || s.Channels == 0
		}
	}
	return false
}

// fillStreamParams reads geometry or audio parameters from one packet.
func fillStreamParams(s *StreamDescriptor, data []byte) {
	if !needsProbe(*s) {
		return
	}
	switch s.VideoCodec {
	case VideoCodecH264:
		if w, h, ok := h264Resolution(data); ok && s.MediaType == MediaTypeVideo {
			s.Width, s.Height = w, h
		}
	case VideoCodecVP8:
		if w, h, ok := vp8Resolution(data); ok && s.MediaType == MediaTypeVideo {
			s.Width, s.Height = w, h
		}
	}
	if s.MediaType != MediaTypeAudio {
		return
	}
	switch s.AudioCodec {
	case AudioCodecAAC:
		if h, err := parseADTSHeader(data); err == nil {
			s.SampleRate = h.SampleRate()
			s.Channels = h.ChannelConfig
		} else if rate, ch, err := parseASC(s.ExtraData); err == nil {
			s.SampleRate, s.Channels = rate, ch
		}
	case AudioCodecMP3:
		if len(data) >= 4 && isMP3Header(data) {
			if head, err := codec.DecodeMp3Head(data); err == nil {
				s.SampleRate = head.GetSampleRate()
				s.Channels = mp3Channels(head)
			}
		}
	}
}

// fillStreamDefaults sets parameters that are fixed by the codec.
func fillStreamDefaults(s *StreamDescriptor) {
	if s.MediaType != MediaTypeAudio {
		return
	}
	switch s.AudioCodec {
	case AudioCodecG711A, AudioCodecG711U:
		if s.SampleRate == 0 {
			s.SampleRate = 8000
		}
		if s.Channels == 0 {
			s.Channels = 1
		}
		s.SampleFormat = AudioFormatS16
	case AudioCodecOpus:
		s.SampleRate = 48000
		s.SampleFormat = AudioFormatS16
	}
}

// h264Resolution parses the first SPS of an Annex-B access unit.
func h264Resolution(data []byte) (w, h int, ok bool) {
	sps := findSPS(data)
	if len(sps) < len(annexBStartCode)+4 {
		return 0, 0, false
	}
	w, h, err := spsGeometry(sps[len(annexBStartCode):])
	if err != nil || w > 16384 || h > 16384 {
		return 0, 0, false
	}
	return w, h, true
}

// spsHighProfiles carry chroma_format_idc and scaling matrices in the SPS.
var spsHighProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true, 86: true,
	118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

// spsGeometry returns the cropped picture size of an SPS NAL unit
// (H.264 7.3.2.1.1 and 7.4.2.1.1). Crop offsets count in chroma samples
// and, for field coding, in frame line pairs.
func spsGeometry(nalu []byte) (w, h int, err error) {
	// BitStream panics when it runs past the end of the buffer.
	defer func() {
		if recover() != nil {
			w, h, err = 0, 0, errors.New("h264: truncated SPS")
		}
	}()
	bs := codec.NewBitStream(codec.CovertRbspToSodb(nalu[1:]))
	profile := bs.Uint8(8)
	bs.SkipBits(16) // constraint flags, level_idc
	bs.ReadUE()     // seq_parameter_set_id

	chromaFormat := uint64(1)
	separatePlanes := false
	if spsHighProfiles[profile] {
		chromaFormat = bs.ReadUE()
		if chromaFormat == 3 {
			separatePlanes = bs.GetBit() == 1
		}
		bs.ReadUE()    // bit_depth_luma_minus8
		bs.ReadUE()    // bit_depth_chroma_minus8
		bs.SkipBits(1) // qpprime_y_zero_transform_bypass_flag
		if bs.GetBit() == 1 {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if bs.GetBit() == 0 {
					continue
				}
				if i < 6 {
					skipScalingList(bs, 16)
				} else {
					skipScalingList(bs, 64)
				}
			}
		}
	}

	bs.ReadUE() // log2_max_frame_num_minus4
	switch bs.ReadUE() {
	case 0:
		bs.ReadUE() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		bs.SkipBits(1) // delta_pic_order_always_zero_flag
		bs.ReadSE()    // offset_for_non_ref_pic
		bs.ReadSE()    // offset_for_top_to_bottom_field
		for n := bs.ReadUE(); n > 0; n-- {
			bs.ReadSE()
		}
	}
	bs.ReadUE()    // max_num_ref_frames
	bs.SkipBits(1) // gaps_in_frame_num_value_allowed_flag
	widthMbs := bs.ReadUE() + 1
	heightMapUnits := bs.ReadUE() + 1
	frameMbsOnly := uint64(bs.GetBit())
	if frameMbsOnly == 0 {
		bs.SkipBits(1) // mb_adaptive_frame_field_flag
	}
	bs.SkipBits(1) // direct_8x8_inference_flag

	var crop [4]uint64 // left, right, top, bottom
	if bs.GetBit() == 1 {
		for i := range crop {
			crop[i] = bs.ReadUE()
		}
	}

	const maxMbs = 1024
	if widthMbs > maxMbs || heightMapUnits > maxMbs {
		return 0, 0, fmt.Errorf("h264: SPS size %dx%d macroblocks out of range", widthMbs, heightMapUnits)
	}
	width := widthMbs * 16
	height := (2 - frameMbsOnly) * heightMapUnits * 16

	unitX, unitY := uint64(1), 2-frameMbsOnly
	if !separatePlanes && chromaFormat != 0 {
		subW, subH := uint64(2), uint64(2)
		switch chromaFormat {
		case 2:
			subH = 1
		case 3:
			subW, subH = 1, 1
		}
		unitX *= subW
		unitY *= subH
	}
	for _, c := range crop {
		if c > maxMbs*16 {
			return 0, 0, errors.New("h264: SPS crop exceeds the picture")
		}
	}
	cropW, cropH := unitX*(crop[0]+crop[1]), unitY*(crop[2]+crop[3])
	if cropW >= width || cropH >= height {
		return 0, 0, errors.New("h264: SPS crop exceeds the picture")
	}
	return int(width - cropW), int(height - cropH), nil
}

// skipScalingList consumes one scaling_list() (H.264 7.3.2.1.1.1).
func skipScalingList(bs *codec.BitStream, size int) {
	last := int64(8)
	for j := 0; j < size; j++ {
		next := (last + bs.ReadSE()) % 256
		if next == 0 {
			return
		}
		last = (next + 256) % 256
	}
}

// vp8Resolution reads the dimensions of a VP8 keyframe (RFC 6386 9.1).
func vp8Resolution(data []byte) (w, h int, ok bool) {
	if !isVP8Keyframe(data) || len(data) < 10 {
		return 0, 0, false
	}
	w = int(binary.LittleEndian.Uint16(data[6:8]) & 0x3FFF)
	h = int(binary.LittleEndian.Uint16(data[8:10]) & 0x3FFF)
	return w, h, w > 0 && h > 0
}

// mp3Channels maps the channel mode; mode 3 is single channel.
func mp3Channels(head *codec.MP3FrameHead) int {
	if head.Mode == 3 {
		return 1
	}
	return 2
}
