package media

import (
	"fmt"

	"github.com/pion/rtp/codecs"
)

// vpxFrame collects the payloads of one picture. A packet with a new
// timestamp discards whatever the previous picture left unfinished.
type vpxFrame struct {
	buf     []byte
	ts      uint32
	kind    FrameType
	started bool
}

func (f *vpxFrame) add(ts uint32, payload []byte) {
	if f.started && f.ts != ts {
		f.buf = f.buf[:0]
		f.kind = FrameTypeUnknown
	}
	f.ts, f.started = ts, true
	f.buf = append(f.buf, payload...)
}

// take returns the collected picture and starts a new one.
func (f *vpxFrame) take() *EncodedFrame {
	out := &EncodedFrame{
		Data:      append([]byte(nil), f.buf...),
		FrameType: f.kind,
		Timestamp: f.ts,
	}
	f.buf = f.buf[:0]
	f.kind = FrameTypeUnknown
	return out
}

func (f *vpxFrame) reset() {
	f.buf = f.buf[:0]
	f.ts, f.started = 0, false
	f.kind = FrameTypeUnknown
}

// VP8Depacketizer reassembles VP8 pictures (RFC 7741). A picture ends on
// the RTP marker bit.
type VP8Depacketizer struct {
	pkt   codecs.VP8Packet
	frame vpxFrame
}

// NewVP8Depacketizer returns an empty VP8 depacketizer.
func NewVP8Depacketizer() (*VP8Depacketizer, error) {
	return &VP8Depacketizer{}, nil
}

func (d *VP8Depacketizer) Depacketize(packet *RTPPacket) (*EncodedFrame, error) {
	if _, err := d.pkt.Unmarshal(packet.Payload); err != nil {
		return nil, fmt.Errorf("vp8 payload: %w", err)
	}
	d.frame.add(packet.Timestamp, d.pkt.Payload)

	// The P bit of the first partition tells key (0) from inter frames.
	if d.pkt.S == 1 && d.pkt.PID == 0 && len(d.pkt.Payload) > 0 {
		d.frame.kind = FrameTypeDelta
		if d.pkt.Payload[0]&0x01 == 0 {
			d.frame.kind = FrameTypeKey
		}
	}
	if !packet.Marker {
		return nil, nil
	}
	return d.frame.take(), nil
}

func (d *VP8Depacketizer) Reset() { d.frame.reset() }

// VP9Depacketizer reassembles VP9 pictures. A picture ends on the marker
// bit or the E flag, so every spatial layer comes out as its own frame.
// Packets older than the last completed picture are dropped.
type VP9Depacketizer struct {
	pkt      codecs.VP9Packet
	frame    vpxFrame
	lastTS   uint32
	haveLast bool
}

// NewVP9Depacketizer returns an empty VP9 depacketizer.
func NewVP9Depacketizer() (*VP9Depacketizer, error) {
	return &VP9Depacketizer{}, nil
}

func (d *VP9Depacketizer) Depacketize(packet *RTPPacket) (*EncodedFrame, error) {
	if _, err := d.pkt.Unmarshal(packet.Payload); err != nil {
		return nil, fmt.Errorf("vp9 payload: %w", err)
	}
	if d.haveLast && IsRTPTimestampOlder(packet.Timestamp, d.lastTS) {
		return nil, nil
	}
	d.frame.add(packet.Timestamp, d.pkt.Payload)
	if d.pkt.B {
		d.frame.kind = FrameTypeKey
		if d.pkt.P {
			d.frame.kind = FrameTypeDelta
		}
	}
	if !packet.Marker && !d.pkt.E {
		return nil, nil
	}
	out := d.frame.take()
	out.TemporalLayerID = d.pkt.TID
	out.SpatialLayerID = d.pkt.SID
	d.lastTS, d.haveLast = out.Timestamp, true
	return out, nil
}

func (d *VP9Depacketizer) Reset() {
	d.frame.reset()
	d.lastTS, d.haveLast = 0, false
}

func init() {
	RegisterVideoDepacketizer(VideoCodecVP8, func() (RTPDepacketizer, error) {
		return NewVP8Depacketizer()
	})
	RegisterVideoDepacketizer(VideoCodecVP9, func() (RTPDepacketizer, error) {
		return NewVP9Depacketizer()
	})
}
