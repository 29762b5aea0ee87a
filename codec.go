package media

import "strings"

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecH265
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecH265:
		return "H265"
	case VideoCodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return "video/VP8"
	case VideoCodecVP9:
		return "video/VP9"
	case VideoCodecH264:
		return "video/H264"
	case VideoCodecH265:
		return "video/H265"
	case VideoCodecAV1:
		return "video/AV1"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	// All video codecs use 90kHz clock
	return 90000
}

// DefaultPayloadType returns a typical payload type for this codec.
// Note: Actual payload type is negotiated via SDP.
func (c VideoCodec) DefaultPayloadType() uint8 {
	switch c {
	case VideoCodecVP8:
		return 96
	case VideoCodecVP9:
		return 98
	case VideoCodecH264:
		return 102
	case VideoCodecH265:
		return 104
	case VideoCodecAV1:
		return 35
	default:
		return 96
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecG711A // A-law (PCMA)
	AudioCodecG711U // µ-law (PCMU)
	AudioCodecAAC
	AudioCodecMP3
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecG711A:
		return "PCMA"
	case AudioCodecG711U:
		return "PCMU"
	case AudioCodecAAC:
		return "AAC"
	case AudioCodecMP3:
		return "MP3"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "audio/opus"
	case AudioCodecG711A:
		return "audio/PCMA"
	case AudioCodecG711U:
		return "audio/PCMU"
	case AudioCodecAAC:
		return "audio/AAC"
	case AudioCodecMP3:
		return "audio/mpeg"
	default:
		return ""
	}
}

// RTPClockRate returns the timestamp clock of the codec's RTP payload
// format. It is 0 for AAC, whose clock is the negotiated sample rate.
func (c AudioCodec) RTPClockRate() uint32 {
	switch c {
	case AudioCodecOpus:
		return 48000
	case AudioCodecG711A, AudioCodecG711U:
		return 8000
	case AudioCodecMP3:
		return 90000 // RFC 3551 MPA
	default:
		return 0
	}
}

// DefaultPayloadType returns a typical payload type for this codec.
func (c AudioCodec) DefaultPayloadType() uint8 {
	switch c {
	case AudioCodecOpus:
		return 111
	case AudioCodecG711A:
		return 8 // Static payload type
	case AudioCodecG711U:
		return 0 // Static payload type
	case AudioCodecAAC:
		return 97
	case AudioCodecMP3:
		return 14 // Static payload type (MPA)
	default:
		return 111
	}
}

// ParseVideoCodec maps a codec name such as "h264" or "VP8" to a VideoCodec.
func ParseVideoCodec(name string) VideoCodec {
	for c := VideoCodecVP8; c <= VideoCodecAV1; c++ {
		if strings.EqualFold(c.String(), name) {
			return c
		}
	}
	if strings.EqualFold(name, "avc") {
		return VideoCodecH264
	}
	if strings.EqualFold(name, "hevc") {
		return VideoCodecH265
	}
	return VideoCodecUnknown
}

// ParseAudioCodec maps a codec name such as "opus" or "pcmu" to an AudioCodec.
func ParseAudioCodec(name string) AudioCodec {
	for c := AudioCodecOpus; c <= AudioCodecMP3; c++ {
		if strings.EqualFold(c.String(), name) {
			return c
		}
	}
	switch strings.ToLower(name) {
	case "g711a", "alaw":
		return AudioCodecG711A
	case "g711u", "ulaw", "mulaw":
		return AudioCodecG711U
	}
	return AudioCodecUnknown
}
