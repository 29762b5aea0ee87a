package media

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/llehouerou/go-aac"
)

// AACDecoder decodes AAC-LC with the pure Go FAAD2 port. Input is a run of
// ADTS frames, or raw frames when the stream carries an AudioSpecificConfig.
// One frame is consumed per call. Mono output is S16; more channels are
// deinterleaved into S16P.
type AACDecoder struct {
	config DecoderConfig

	dec         *aac.Decoder
	initialized bool
	sampleRate  int
	channels    int
	out         *AudioSampleBuffer
	frame       []byte

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewAACDecoder creates a new AAC decoder.
func NewAACDecoder(config DecoderConfig) (*AACDecoder, error) {
	return &AACDecoder{
		config: config,
		dec:    aac.NewDecoder(),
	}, nil
}

// nextFrame returns the ADTS frame at the start of data and the number of
// input bytes it covers.
func (d *AACDecoder) nextFrame(data []byte) ([]byte, int, error) {
	if isAACAdts(data) {
		h, err := parseADTSHeader(data)
		if err != nil {
			return nil, 0, err
		}
		if h.FrameLength > len(data) {
			return nil, 0, fmt.Errorf("adts: frame of %d bytes truncated to %d", h.FrameLength, len(data))
		}
		return data[:h.FrameLength], h.FrameLength, nil
	}

	if len(d.config.ExtraData) == 0 {
		return nil, 0, fmt.Errorf("aac: raw frame without AudioSpecificConfig")
	}
	hdr, err := adtsHeaderFromASC(d.config.ExtraData, len(data))
	if err != nil {
		return nil, 0, err
	}
	d.frame = append(append(d.frame[:0], hdr...), data...)
	return d.frame, len(data), nil
}

// Decode implements Decoder.
func (d *AACDecoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dec == nil {
		return DecodeResult{}, ErrSessionClosed
	}
	if len(data) == 0 {
		return DecodeResult{}, nil
	}

	frame, consumed, err := d.nextFrame(data)
	if err != nil {
		d.countCorrupt()
		return DecodeResult{}, err
	}

	if !d.initialized {
		rate, ch, err := d.dec.SimpleInit(frame)
		if err != nil {
			d.countCorrupt()
			return DecodeResult{}, fmt.Errorf("aac init: %w", err)
		}
		d.sampleRate = int(rate)
		d.channels = int(ch)
		if d.channels <= 0 {
			d.channels = 1
		}
		format := AudioFormatS16
		if d.channels > 1 {
			format = AudioFormatS16P
		}
		d.out = NewAudioSampleBuffer(1024, d.channels, format)
		d.out.SampleRate = d.sampleRate
		d.initialized = true
	}

	pcm, err := d.dec.DecodeInt16(frame)
	if err != nil {
		d.countCorrupt()
		return DecodeResult{}, fmt.Errorf("aac decode: %w", err)
	}

	d.statsMu.Lock()
	d.stats.BytesDecoded += uint64(consumed)
	d.statsMu.Unlock()

	res := DecodeResult{Consumed: consumed}
	n := len(pcm) / d.channels
	if n == 0 {
		return res, nil // decoder priming
	}

	d.out.Grow(n)
	deinterleaveS16(d.out, pcm, n)

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.SamplesDecoded += uint64(n)
	d.statsMu.Unlock()

	samples := d.out.ToAudioSamples()
	res.Audio = &samples
	return res, nil
}

// deinterleaveS16 writes n interleaved samples per channel into buf in
// host byte order, one plane per channel for planar buffers.
func deinterleaveS16(buf *AudioSampleBuffer, pcm []int16, n int) {
	ch := buf.Channels
	if !buf.Format.IsPlanar() {
		dst := buf.Planes[0]
		for i := 0; i < n*ch; i++ {
			binary.NativeEndian.PutUint16(dst[i*2:], uint16(pcm[i]))
		}
	} else {
		for c := 0; c < ch; c++ {
			dst := buf.Planes[c]
			for i := 0; i < n; i++ {
				binary.NativeEndian.PutUint16(dst[i*2:], uint16(pcm[i*ch+c]))
			}
		}
	}
	buf.SampleCount = n
}

func (d *AACDecoder) countCorrupt() {
	d.statsMu.Lock()
	d.stats.CorruptedFrames++
	d.statsMu.Unlock()
}

// Provider implements Decoder.
func (d *AACDecoder) Provider() Provider {
	return ProviderGoAAC
}

// Stats implements Decoder.
func (d *AACDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *AACDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dec != nil {
		d.dec.Close()
		d.dec = nil
	}
	return nil
}

func init() {
	setProviderAvailable(ProviderGoAAC)
	registerAudioDecoder(AudioCodecAAC, ProviderGoAAC, func(config DecoderConfig) (Decoder, error) {
		return NewAACDecoder(config)
	})
}
