package media

import (
	"sync"

	"github.com/zaf/g711"
)

// defaultG711FrameSamples is 20ms at 8 kHz.
const defaultG711FrameSamples = 160

// G711Decoder expands A-law or µ-law bytes to S16 PCM. G.711 has no framing,
// so each call consumes at most MaxFrameSamples samples per channel.
type G711Decoder struct {
	config  DecoderConfig
	codec   AudioCodec
	expand  func([]byte) []byte
	maxRead int
	out     *AudioSampleBuffer

	stats  DecoderStats
	closed bool
	mu     sync.Mutex
}

// NewG711Decoder creates a decoder for AudioCodecG711A or AudioCodecG711U.
func NewG711Decoder(codec AudioCodec, config DecoderConfig) (*G711Decoder, error) {
	d := &G711Decoder{config: config, codec: codec}
	switch codec {
	case AudioCodecG711A:
		d.expand = g711.DecodeAlaw
	case AudioCodecG711U:
		d.expand = g711.DecodeUlaw
	default:
		return nil, ErrCodecNotSupported
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := config.SampleRate
	if rate <= 0 {
		rate = 8000
	}
	frame := config.MaxFrameSamples
	if frame <= 0 {
		frame = defaultG711FrameSamples
	}

	d.maxRead = frame * channels
	d.out = NewAudioSampleBuffer(frame, channels, AudioFormatS16)
	d.out.SampleRate = rate
	return d, nil
}

// Decode implements Decoder.
func (d *G711Decoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return DecodeResult{}, ErrSessionClosed
	}

	// Whole samples across all channels only.
	n := min(len(data), d.maxRead)
	n -= n % d.out.Channels
	if n == 0 {
		return DecodeResult{}, nil
	}

	pcm := d.expand(data[:n]) // 16-bit little-endian
	dst := d.out.Planes[0]
	copy(dst, pcm)
	if hostBigEndian {
		for i := 0; i+1 < len(pcm); i += 2 {
			dst[i], dst[i+1] = dst[i+1], dst[i]
		}
	}
	d.out.SampleCount = n / d.out.Channels

	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(n)
	d.stats.SamplesDecoded += uint64(d.out.SampleCount)

	samples := d.out.ToAudioSamples()
	return DecodeResult{Consumed: n, Audio: &samples}, nil
}

// Provider implements Decoder.
func (d *G711Decoder) Provider() Provider {
	return ProviderG711
}

// Stats implements Decoder.
func (d *G711Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *G711Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func init() {
	setProviderAvailable(ProviderG711)
	for _, codec := range []AudioCodec{AudioCodecG711A, AudioCodecG711U} {
		codec := codec
		registerAudioDecoder(codec, ProviderG711, func(config DecoderConfig) (Decoder, error) {
			return NewG711Decoder(codec, config)
		})
	}
}
