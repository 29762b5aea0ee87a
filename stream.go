package media

import (
	"fmt"
	"math"
)

// MediaType classifies an elementary stream.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeData
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// NoPTS marks a packet or frame without a presentation timestamp.
const NoPTS int64 = math.MinInt64

// StreamDescriptor describes one elementary stream of a container.
// Descriptors are owned by the ContainerSource and must not be modified.
type StreamDescriptor struct {
	Index     int
	MediaType MediaType

	VideoCodec VideoCodec // valid for MediaTypeVideo
	AudioCodec AudioCodec // valid for MediaTypeAudio

	// Video parameters. Zero when the container does not carry them.
	Width       int
	Height      int
	PixelFormat PixelFormat

	// Audio parameters.
	SampleFormat AudioFormat
	SampleRate   int
	Channels     int

	BitRate   int
	ClockRate int // packet timestamp units per second
	ExtraData []byte
}

// CodecName returns the codec name for the stream's media type.
func (d StreamDescriptor) CodecName() string {
	switch d.MediaType {
	case MediaTypeVideo:
		return d.VideoCodec.String()
	case MediaTypeAudio:
		return d.AudioCodec.String()
	default:
		return "none"
	}
}

// MimeType returns the MIME type of the stream's codec.
func (d StreamDescriptor) MimeType() string {
	switch d.MediaType {
	case MediaTypeVideo:
		return d.VideoCodec.MimeType()
	case MediaTypeAudio:
		return d.AudioCodec.MimeType()
	default:
		return ""
	}
}

// Seconds converts a timestamp in stream units to seconds.
func (d StreamDescriptor) Seconds(ts int64) float64 {
	if ts == NoPTS || d.ClockRate <= 0 {
		return math.NaN()
	}
	return float64(ts) / float64(d.ClockRate)
}

func (d StreamDescriptor) String() string {
	switch d.MediaType {
	case MediaTypeVideo:
		return fmt.Sprintf("#%d video %s %dx%d %s", d.Index, d.VideoCodec, d.Width, d.Height, d.PixelFormat.Name())
	case MediaTypeAudio:
		return fmt.Sprintf("#%d audio %s %d Hz %d ch", d.Index, d.AudioCodec, d.SampleRate, d.Channels)
	default:
		return fmt.Sprintf("#%d %s", d.Index, d.MediaType)
	}
}

// Packet is one compressed chunk of a single stream. The read cursor tracks
// how many bytes a decoder has consumed so far.
type Packet struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Keyframe    bool

	offset int
}

// NewPacket returns a packet with its cursor at the start of data.
func NewPacket(stream int, data []byte, pts, dts int64) *Packet {
	return &Packet{StreamIndex: stream, Data: data, PTS: pts, DTS: dts}
}

// Offset returns the number of bytes consumed so far.
func (p *Packet) Offset() int { return p.offset }

// Remaining returns the number of unconsumed bytes.
func (p *Packet) Remaining() int { return len(p.Data) - p.offset }

// Current returns the unconsumed bytes.
func (p *Packet) Current() []byte { return p.Data[p.offset:] }

// Advance moves the cursor forward by n bytes.
func (p *Packet) Advance(n int) error {
	if n < 0 || n > p.Remaining() {
		return fmt.Errorf("advance %d bytes with %d remaining", n, p.Remaining())
	}
	p.offset += n
	return nil
}
