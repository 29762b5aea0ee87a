package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp/codecs"
	"github.com/yapingcat/gomedia/go-codec"
)

// OpusDepacketizer extracts Opus packets (RFC 7587). One RTP packet holds
// one Opus packet and every Opus packet decodes on its own.
type OpusDepacketizer struct {
	pkt codecs.OpusPacket
}

// NewOpusDepacketizer returns an Opus depacketizer.
func NewOpusDepacketizer() (*OpusDepacketizer, error) {
	return &OpusDepacketizer{}, nil
}

func (d *OpusDepacketizer) Depacketize(packet *RTPPacket) (*EncodedFrame, error) {
	if len(packet.Payload) == 0 {
		return nil, nil
	}
	payload, err := d.pkt.Unmarshal(packet.Payload)
	if err != nil {
		return nil, fmt.Errorf("opus payload: %w", err)
	}
	return &EncodedFrame{
		Data:      append([]byte(nil), payload...),
		FrameType: FrameTypeKey,
		Timestamp: packet.Timestamp,
	}, nil
}

// Reset clears any buffered state (no-op for Opus).
func (d *OpusDepacketizer) Reset() {}

// G711Depacketizer passes G.711 payloads through; every octet is one sample.
type G711Depacketizer struct{}

// Depacketize implements RTPDepacketizer.
func (G711Depacketizer) Depacketize(packet *RTPPacket) (*EncodedFrame, error) {
	if len(packet.Payload) == 0 {
		return nil, nil
	}
	return &EncodedFrame{
		Data:      append([]byte(nil), packet.Payload...),
		FrameType: FrameTypeKey,
		Timestamp: packet.Header.Timestamp,
	}, nil
}

// Reset implements RTPDepacketizer.
func (G711Depacketizer) Reset() {}

// MPADepacketizer reassembles MPEG audio frames carried per RFC 2250.
// Each payload starts with a 4-byte header holding the fragment offset; a
// frame is complete once the buffered bytes cover whole frames.
type MPADepacketizer struct {
	buffer    []byte
	timestamp uint32
	mu        sync.Mutex
}

var errShortMPA = errors.New("MPA payload too short")

// Depacketize implements RTPDepacketizer.
func (d *MPADepacketizer) Depacketize(packet *RTPPacket) (*EncodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(packet.Payload) < 4 {
		return nil, errShortMPA
	}
	offset := int(binary.BigEndian.Uint16(packet.Payload[2:4]))
	if offset == 0 || packet.Header.Timestamp != d.timestamp {
		d.buffer = d.buffer[:0]
	}
	d.timestamp = packet.Header.Timestamp
	if offset != len(d.buffer) {
		// Missing fragment.
		d.buffer = d.buffer[:0]
		return nil, nil
	}
	d.buffer = append(d.buffer, packet.Payload[4:]...)

	complete, err := mp3FramesComplete(d.buffer)
	if err != nil {
		d.buffer = d.buffer[:0]
		return nil, err
	}
	if !complete {
		return nil, nil
	}
	frame := &EncodedFrame{
		Data:      append([]byte(nil), d.buffer...),
		FrameType: FrameTypeKey,
		Timestamp: d.timestamp,
	}
	d.buffer = d.buffer[:0]
	return frame, nil
}

// mp3FrameSize returns the length of the MPEG audio frame at the start of data.
func mp3FrameSize(data []byte) (int, error) {
	if len(data) < 4 || !isMP3Header(data) {
		return 0, errors.New("mpeg audio: bad frame header")
	}
	head, err := codec.DecodeMp3Head(data)
	if err != nil {
		return 0, err
	}
	if head.FrameSize <= 4 {
		return 0, errors.New("mpeg audio: free-format frames are not supported")
	}
	return head.FrameSize, nil
}

// isMP3Header rejects reserved header fields that gomedia's tables cannot index.
func isMP3Header(h []byte) bool {
	if h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return false
	}
	version := (h[1] >> 3) & 0x03
	layer := (h[1] >> 1) & 0x03
	bitrate := h[2] >> 4
	rate := (h[2] >> 2) & 0x03
	return version != 1 && layer != 0 && bitrate != 0 && bitrate != 15 && rate != 3
}

// mp3FramesComplete reports whether data holds a whole number of frames.
func mp3FramesComplete(data []byte) (bool, error) {
	off := 0
	for off < len(data) {
		n, err := mp3FrameSize(data[off:])
		if err != nil {
			return false, err
		}
		off += n
	}
	return off == len(data), nil
}

// Reset implements RTPDepacketizer.
func (d *MPADepacketizer) Reset() {
	d.mu.Lock()
	d.buffer = d.buffer[:0]
	d.timestamp = 0
	d.mu.Unlock()
}

func init() {
	RegisterAudioDepacketizer(AudioCodecOpus, func() (RTPDepacketizer, error) {
		return NewOpusDepacketizer()
	})
	for _, c := range []AudioCodec{AudioCodecG711A, AudioCodecG711U} {
		RegisterAudioDepacketizer(c, func() (RTPDepacketizer, error) {
			return G711Depacketizer{}, nil
		})
	}
	RegisterAudioDepacketizer(AudioCodecMP3, func() (RTPDepacketizer, error) {
		return &MPADepacketizer{}, nil
	})
}
