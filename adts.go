package media

import (
	"errors"
	"fmt"

	"github.com/yapingcat/gomedia/go-codec"
)

const adtsHeaderSize = 7

// adtsHeader is what the demuxer and decoder need from an ADTS frame header.
type adtsHeader struct {
	Profile         int // audio object type minus one
	SampleRateIndex int
	ChannelConfig   int
	FrameLength     int // header plus payload
	HeaderLength    int // 7, or 9 with CRC
}

func (h adtsHeader) SampleRate() int {
	return aacSampleRate(h.SampleRateIndex)
}

// aacSampleRate maps sampling_frequency_index to Hz, or 0 for the reserved
// and escape values.
func aacSampleRate(idx int) int {
	if idx < 0 || idx >= len(codec.AAC_Sampling_Idx) {
		return 0
	}
	return codec.AACSampleIdxToSample(idx)
}

var errShortADTS = errors.New("adts: short header")

func parseADTSHeader(data []byte) (adtsHeader, error) {
	if len(data) < adtsHeaderSize {
		return adtsHeader{}, errShortADTS
	}
	if !isAACAdts(data) {
		return adtsHeader{}, errors.New("adts: missing syncword")
	}
	var fh codec.ADTS_Frame_Header
	fh.Decode(data)
	h := adtsHeader{
		Profile:         int(fh.Fix_Header.Profile),
		SampleRateIndex: int(fh.Fix_Header.Sampling_frequency_index),
		ChannelConfig:   int(fh.Fix_Header.Channel_configuration),
		FrameLength:     int(fh.Variable_Header.Frame_length),
		HeaderLength:    adtsHeaderSize,
	}
	if fh.Fix_Header.Protection_absent == 0 {
		h.HeaderLength = 9
	}
	if h.SampleRate() == 0 {
		return adtsHeader{}, fmt.Errorf("adts: reserved sample rate index %d", h.SampleRateIndex)
	}
	if h.FrameLength < h.HeaderLength {
		return adtsHeader{}, fmt.Errorf("adts: frame length %d below header length %d", h.FrameLength, h.HeaderLength)
	}
	return h, nil
}

// adtsHeaderFromASC builds a 7-byte ADTS header for a raw AAC frame
// described by an AudioSpecificConfig.
func adtsHeaderFromASC(asc []byte, payloadLen int) ([]byte, error) {
	var cfg codec.AudioSpecificConfiguration
	if err := cfg.Decode(asc); err != nil {
		return nil, fmt.Errorf("adts: AudioSpecificConfig: %w", err)
	}
	// ADTS has two bits for the profile: Main, LC, SSR and LTP.
	if cfg.Audio_object_type == 0 || cfg.Audio_object_type > 4 {
		return nil, fmt.Errorf("adts: object type %d cannot be carried in ADTS", cfg.Audio_object_type)
	}
	if aacSampleRate(int(cfg.Sample_freq_index)) == 0 {
		return nil, fmt.Errorf("adts: unsupported frequency index %d", cfg.Sample_freq_index)
	}
	frameLen := payloadLen + adtsHeaderSize
	if frameLen > 0x1FFF {
		return nil, fmt.Errorf("adts: frame of %d bytes too large", frameLen)
	}
	fh, err := codec.ConvertASCToADTS(asc, frameLen)
	if err != nil {
		return nil, fmt.Errorf("adts: %w", err)
	}
	hdr := fh.Encode()
	// Encode loses the top two bits of frame_length.
	hdr[3] = hdr[3]&^0x03 | byte(frameLen>>11)&0x03
	return hdr, nil
}

// parseASC returns the sample rate and channel count of an
// AudioSpecificConfig.
func parseASC(asc []byte) (rate, channels int, err error) {
	var cfg codec.AudioSpecificConfiguration
	if err := cfg.Decode(asc); err != nil {
		return 0, 0, fmt.Errorf("aac: AudioSpecificConfig: %w", err)
	}
	rate = aacSampleRate(int(cfg.Sample_freq_index))
	if rate == 0 {
		return 0, 0, fmt.Errorf("aac: unsupported frequency index %d", cfg.Sample_freq_index)
	}
	return rate, int(cfg.Channel_configuration), nil
}
