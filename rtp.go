package media

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/pion/rtp"
)

// Re-export pion/rtp types for convenience
type (
	// RTPPacket is an alias to pion's rtp.Packet
	RTPPacket = rtp.Packet

	// RTPHeader is an alias to pion's rtp.Header
	RTPHeader = rtp.Header
)

// RTPDepacketizer reassembles RTP packets into encoded frames.
type RTPDepacketizer interface {
	// Depacketize processes an RTP packet and returns a complete frame if available.
	// Returns nil if the frame is not yet complete.
	Depacketize(packet *RTPPacket) (*EncodedFrame, error)

	// Reset clears any buffered partial frames.
	Reset()
}

// DepacketizerFactory creates an RTP depacketizer.
type DepacketizerFactory func() (RTPDepacketizer, error)

// rtpRegistry holds depacketizer factories.
type rtpRegistry struct {
	depacketizers      map[VideoCodec]DepacketizerFactory
	audioDepacketizers map[AudioCodec]DepacketizerFactory
	mu                 sync.RWMutex
}

var globalRTPRegistry = &rtpRegistry{
	depacketizers:      make(map[VideoCodec]DepacketizerFactory),
	audioDepacketizers: make(map[AudioCodec]DepacketizerFactory),
}

// RegisterVideoDepacketizer registers a video RTP depacketizer factory.
func RegisterVideoDepacketizer(codec VideoCodec, factory DepacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.depacketizers[codec] = factory
}

// RegisterAudioDepacketizer registers an audio RTP depacketizer factory.
func RegisterAudioDepacketizer(codec AudioCodec, factory DepacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.audioDepacketizers[codec] = factory
}

// CreateVideoDepacketizer creates a video RTP depacketizer.
func CreateVideoDepacketizer(codec VideoCodec) (RTPDepacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.depacketizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("video depacketizer not available: %v", codec)
	}

	return factory()
}

// CreateAudioDepacketizer creates an audio RTP depacketizer.
func CreateAudioDepacketizer(codec AudioCodec) (RTPDepacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.audioDepacketizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("audio depacketizer not available: %v", codec)
	}

	return factory()
}

// createDepacketizer picks the video or audio factory for a stream.
func createDepacketizer(desc StreamDescriptor) (RTPDepacketizer, error) {
	if desc.MediaType == MediaTypeVideo {
		return CreateVideoDepacketizer(desc.VideoCodec)
	}
	return CreateAudioDepacketizer(desc.AudioCodec)
}

// PayloadMapping binds an RTP payload type to a codec.
type PayloadMapping struct {
	MediaType  MediaType
	VideoCodec VideoCodec
	AudioCodec AudioCodec
	ClockRate  int
	Channels   int
}

// PayloadMap resolves RTP payload types. Static types from RFC 3551 are
// always present; dynamic types come from configuration.
type PayloadMap map[uint8]PayloadMapping

// DefaultPayloadMap returns the static assignments plus the usual dynamic
// types browsers and SFUs negotiate.
func DefaultPayloadMap() PayloadMap {
	m := PayloadMap{
		0:  {MediaType: MediaTypeAudio, AudioCodec: AudioCodecG711U, ClockRate: 8000, Channels: 1},
		8:  {MediaType: MediaTypeAudio, AudioCodec: AudioCodecG711A, ClockRate: 8000, Channels: 1},
		14: {MediaType: MediaTypeAudio, AudioCodec: AudioCodecMP3, ClockRate: int(AudioCodecMP3.RTPClockRate())},
	}
	for _, c := range []VideoCodec{VideoCodecVP8, VideoCodecVP9, VideoCodecH264} {
		m[c.DefaultPayloadType()] = PayloadMapping{MediaType: MediaTypeVideo, VideoCodec: c, ClockRate: int(c.ClockRate())}
	}
	m[AudioCodecOpus.DefaultPayloadType()] = PayloadMapping{MediaType: MediaTypeAudio, AudioCodec: AudioCodecOpus, ClockRate: int(AudioCodecOpus.RTPClockRate()), Channels: 2}
	return m
}

// Set maps a payload type to a codec by name, e.g. "h264" or "opus". A
// clockRate of 0 takes the codec's default.
func (m PayloadMap) Set(pt uint8, codec string, clockRate int) error {
	if v := ParseVideoCodec(codec); v != VideoCodecUnknown {
		if clockRate <= 0 {
			clockRate = int(v.ClockRate())
		}
		m[pt] = PayloadMapping{MediaType: MediaTypeVideo, VideoCodec: v, ClockRate: clockRate}
		return nil
	}
	if a := ParseAudioCodec(codec); a != AudioCodecUnknown {
		if clockRate <= 0 {
			clockRate = int(a.RTPClockRate())
		}
		if clockRate <= 0 {
			return fmt.Errorf("rtp payload type %d: %s needs an explicit clock rate", pt, a)
		}
		m[pt] = PayloadMapping{MediaType: MediaTypeAudio, AudioCodec: a, ClockRate: clockRate}
		return nil
	}
	return fmt.Errorf("%w: payload type %d codec %q", ErrCodecNotSupported, pt, codec)
}

// applyPayloadTypes merges configured "pt" -> codec name overrides.
func (m PayloadMap) applyPayloadTypes(types map[string]string, clockRates map[string]int) error {
	for key, codec := range types {
		pt, err := strconv.ParseUint(key, 10, 7)
		if err != nil {
			return fmt.Errorf("rtp payload type %q: %w", key, err)
		}
		if err := m.Set(uint8(pt), codec, clockRates[key]); err != nil {
			return err
		}
	}
	return nil
}

// IsRTPTimestampOlder returns true if ts1 is older than or equal to ts2,
// handling 32-bit wraparound correctly per RTP timestamp comparison rules.
// This is used by depacketizers to discard late-arriving packets.
func IsRTPTimestampOlder(ts1, ts2 uint32) bool {
	if ts1 == ts2 {
		return true
	}
	// Standard RTP timestamp comparison with wraparound handling:
	// ts1 is older if (ts2 - ts1) < 2^31
	diff := ts2 - ts1
	return diff < 0x80000000
}
