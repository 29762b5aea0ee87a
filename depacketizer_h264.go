package media

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
	"github.com/yapingcat/gomedia/go-codec"
)

const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSEI   = 6
	nalTypeSPS   = 7
	nalTypePPS   = 8
	nalTypeAUD   = 9
	nalTypeSTAPA = 24
	nalTypeFUA   = 28
)

var annexBStartCode = []byte{0, 0, 0, 1}

// parseAnnexBNALUnits splits an Annex-B buffer into NAL units without
// their start codes. Empty units are skipped.
func parseAnnexBNALUnits(data []byte) [][]byte {
	var units [][]byte
	codec.SplitFrame(data, func(nalu []byte) bool {
		if len(nalu) > 0 {
			units = append(units, nalu)
		}
		return true
	})
	return units
}

func isVCLNALType(t byte) bool {
	return t >= nalTypeSlice && t <= nalTypeIDR
}

// annexBKeyframe reports whether an access unit holds an IDR slice.
func annexBKeyframe(au []byte) bool {
	for _, nalu := range parseAnnexBNALUnits(au) {
		if nalu[0]&0x1F == nalTypeIDR {
			return true
		}
	}
	return false
}

// findSPS returns the first SPS of an Annex-B buffer with a start code.
func findSPS(data []byte) []byte {
	for _, nalu := range parseAnnexBNALUnits(data) {
		if nalu[0]&0x1F == nalTypeSPS {
			return append(append([]byte(nil), annexBStartCode...), nalu...)
		}
	}
	return nil
}

// H264Depacketizer turns RFC 6184 packets (single NAL, STAP-A, FU-A) into
// Annex-B access units. An access unit ends on the RTP marker bit; one that
// is still open when a packet with another timestamp arrives is dropped.
type H264Depacketizer struct {
	au      []byte
	fu      []byte // NAL unit being rebuilt from FU-A fragments; nil when none
	ts      uint32
	kind    FrameType
	started bool
}

// NewH264Depacketizer returns an empty H.264 depacketizer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

func (d *H264Depacketizer) Depacketize(pkt *rtp.Packet) (*EncodedFrame, error) {
	if len(pkt.Payload) == 0 {
		return nil, nil
	}
	if d.started && d.ts != pkt.Timestamp {
		d.Reset()
	}
	d.ts, d.started = pkt.Timestamp, true

	var err error
	switch t := pkt.Payload[0] & 0x1F; {
	case t >= 1 && t <= 23:
		d.appendNAL(pkt.Payload)
	case t == nalTypeSTAPA:
		d.unpackSTAPA(pkt.Payload[1:])
	case t == nalTypeFUA:
		err = d.unpackFUA(pkt.Payload)
	default:
		err = fmt.Errorf("h264 payload: NAL type %d not supported", t)
	}
	if err != nil {
		return nil, err
	}

	if !pkt.Marker || len(d.au) == 0 {
		return nil, nil
	}
	out := &EncodedFrame{
		Data:      append([]byte(nil), d.au...),
		FrameType: d.kind,
		Timestamp: d.ts,
	}
	d.au = d.au[:0]
	d.kind = FrameTypeUnknown
	return out, nil
}

// appendNAL adds one complete NAL unit to the access unit. A single IDR
// slice makes the whole unit a key frame.
func (d *H264Depacketizer) appendNAL(nalu []byte) {
	switch {
	case nalu[0]&0x1F == nalTypeIDR:
		d.kind = FrameTypeKey
	case d.kind != FrameTypeKey:
		d.kind = FrameTypeDelta
	}
	d.au = append(d.au, annexBStartCode...)
	d.au = append(d.au, nalu...)
}

// unpackSTAPA walks the 16-bit length prefixed units after the STAP-A
// header. A truncated tail is ignored.
func (d *H264Depacketizer) unpackSTAPA(b []byte) {
	for len(b) >= 2 {
		n := int(binary.BigEndian.Uint16(b))
		b = b[2:]
		if n > len(b) {
			return
		}
		if n > 0 {
			d.appendNAL(b[:n])
		}
		b = b[n:]
	}
}

func (d *H264Depacketizer) unpackFUA(b []byte) error {
	if len(b) < 2 {
		return errors.New("h264 payload: FU-A shorter than its header")
	}
	indicator, header := b[0], b[1]
	if header&0x80 != 0 {
		// Rebuild the NAL header from the indicator's NRI and the original type.
		d.fu = append(d.fu[:0], indicator&0xE0|header&0x1F)
	}
	if d.fu == nil {
		return nil
	}
	d.fu = append(d.fu, b[2:]...)
	if header&0x40 != 0 {
		d.appendNAL(d.fu)
		d.fu = nil
	}
	return nil
}

// Reset drops the partial access unit.
func (d *H264Depacketizer) Reset() {
	d.au = d.au[:0]
	d.fu = nil
	d.ts, d.started = 0, false
	d.kind = FrameTypeUnknown
}

func init() {
	RegisterVideoDepacketizer(VideoCodecH264, func() (RTPDepacketizer, error) {
		return NewH264Depacketizer(), nil
	})
}
