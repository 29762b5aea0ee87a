package media

import (
	"bytes"
	"fmt"
)

// DetectVideoCodec guesses the codec of a raw video buffer: H.264 as
// Annex-B or length prefixed (AVCC), an IVF file header, a VP8 keyframe, a
// VP9 frame marker or an AV1 OBU header, tried in that order. The later
// checks look at a few bits only, so callers should prefer codec ids from
// a container when they have one.
func DetectVideoCodec(data []byte) VideoCodec {
	if len(data) < 4 {
		return VideoCodecUnknown
	}
	switch {
	case isAnnexBStartCode(data) && isH264NALType(getNALType(data)):
		return VideoCodecH264
	case isAVCCFormat(data):
		return VideoCodecH264
	case len(data) >= 32 && string(data[:4]) == "DKIF":
		return ivfCodec(string(data[8:12]))
	case isVP8Keyframe(data):
		return VideoCodecVP8
	case isVP9Frame(data):
		return VideoCodecVP9
	case isAV1OBU(data):
		return VideoCodecAV1
	}
	return VideoCodecUnknown
}

func isAnnexBStartCode(data []byte) bool {
	return len(data) >= 4 && (bytes.HasPrefix(data, []byte{0, 0, 1}) || bytes.HasPrefix(data, []byte{0, 0, 0, 1}))
}

// getNALType returns the type of the NAL unit after a leading start code.
func getNALType(data []byte) byte {
	if len(data) < 4 {
		return 0
	}
	off := 3
	if data[2] == 0 {
		off = 4
	}
	if off >= len(data) {
		return 0
	}
	return data[off] & 0x1F
}

// isH264NALType accepts the types H.264 assigns (Table 7-1); 13-18 and
// 22 and up are reserved or belong to extensions.
func isH264NALType(t byte) bool {
	return (t >= 1 && t <= 12) || (t >= 19 && t <= 21)
}

// isAVCCFormat accepts a plausible 32-bit NAL length prefix.
func isAVCCFormat(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	return n > 0 && n < len(data) && n < 10<<20
}

// isVP8Keyframe checks the frame type bit and the 9D 01 2A start code of
// a keyframe header (RFC 6386 9.1).
func isVP8Keyframe(data []byte) bool {
	return len(data) >= 10 && data[0]&0x01 == 0 &&
		data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A
}

// isVP9Frame checks the two bit frame_marker.
func isVP9Frame(data []byte) bool {
	return len(data) >= 3 && data[0]>>6 == 0x02
}

// isAV1OBU checks the forbidden bit and that the OBU type is assigned
// (1-8 or padding).
func isAV1OBU(data []byte) bool {
	if len(data) < 2 || data[0]&0x80 != 0 {
		return false
	}
	t := data[0] >> 3 & 0x0F
	return (t >= 1 && t <= 8) || t == 15
}

// DetectAudioCodec recognizes ADTS, MPEG audio Layer III and Ogg Opus
// from their first bytes. Other Ogg payloads and FLAC are unknown.
func DetectAudioCodec(data []byte) AudioCodec {
	switch {
	case len(data) < 4:
		return AudioCodecUnknown
	case bytes.HasPrefix(data, []byte("OggS")):
		if len(data) >= 36 && string(data[28:36]) == "OpusHead" {
			return AudioCodecOpus
		}
		return AudioCodecUnknown
	case isAACAdts(data):
		return AudioCodecAAC
	case isMP3Frame(data):
		return AudioCodecMP3
	}
	return AudioCodecUnknown
}

// isAACAdts checks the 12 bit syncword and layer 0.
func isAACAdts(data []byte) bool {
	return len(data) >= 7 && data[0] == 0xFF && data[1]&0xF6 == 0xF0
}

// isMP3Frame checks the 11 bit frame sync and Layer III.
func isMP3Frame(data []byte) bool {
	return len(data) >= 4 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && (data[1]>>1)&0x03 == 1
}

// ContainerFormat identifies a demuxer.
type ContainerFormat int

const (
	FormatUnknown ContainerFormat = iota
	FormatMP4
	FormatFLV
	FormatMPEGTS
	FormatOgg
	FormatIVF
	FormatRTPDump
	FormatRTMP
	FormatAnnexB // raw H.264 elementary stream
	FormatADTS   // raw AAC elementary stream
	FormatMP3    // raw MPEG audio elementary stream
)

var containerFormatNames = [...]string{
	FormatUnknown: "unknown",
	FormatMP4:     "mp4",
	FormatFLV:     "flv",
	FormatMPEGTS:  "mpegts",
	FormatOgg:     "ogg",
	FormatIVF:     "ivf",
	FormatRTPDump: "rtpdump",
	FormatRTMP:    "rtmp",
	FormatAnnexB:  "h264",
	FormatADTS:    "adts",
	FormatMP3:     "mp3",
}

func (f ContainerFormat) String() string {
	if f < 0 || int(f) >= len(containerFormatNames) {
		return "unknown"
	}
	return containerFormatNames[f]
}

// ParseContainerFormat maps a format name to a ContainerFormat.
func ParseContainerFormat(name string) (ContainerFormat, error) {
	for f, n := range containerFormatNames {
		if n == name && f != int(FormatUnknown) {
			return ContainerFormat(f), nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
)

// DetectContainerFormat identifies a container from the first bytes of a file.
// Elementary streams are recognized last, by their codec syncwords.
func DetectContainerFormat(head []byte) ContainerFormat {
	switch {
	case len(head) >= 8 && isMP4Box(head[4:8]):
		return FormatMP4
	case bytes.HasPrefix(head, []byte("FLV\x01")):
		return FormatFLV
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(head, []byte("DKIF")):
		return FormatIVF
	case bytes.HasPrefix(head, []byte("#!rtpplay1.0")):
		return FormatRTPDump
	case isMPEGTS(head):
		return FormatMPEGTS
	}

	if isAnnexBStartCode(head) && DetectVideoCodec(head) == VideoCodecH264 {
		return FormatAnnexB
	}
	switch DetectAudioCodec(head) {
	case AudioCodecAAC:
		return FormatADTS
	case AudioCodecMP3:
		return FormatMP3
	}
	if bytes.HasPrefix(head, []byte("ID3")) {
		return FormatMP3
	}
	return FormatUnknown
}

func isMP4Box(boxType []byte) bool {
	switch string(boxType) {
	case "ftyp", "moov", "mdat", "free", "skip", "wide":
		return true
	}
	return false
}

// isMPEGTS requires the sync byte at every packet boundary present in head.
func isMPEGTS(head []byte) bool {
	if len(head) < tsPacketSize || head[0] != tsSyncByte {
		return false
	}
	for off := 0; off < len(head); off += tsPacketSize {
		if head[off] != tsSyncByte {
			return false
		}
	}
	return true
}
