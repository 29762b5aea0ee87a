package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/yapingcat/gomedia/go-codec"
)

// frameFeeder hands go-mp3 exactly the bytes queued by the last Decode call.
type frameFeeder struct {
	buf []byte
}

func (f *frameFeeder) Read(p []byte) (int, error) {
	if len(f.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// MP3Decoder decodes MPEG-1 and MPEG-2 Layer III audio. Each call consumes
// one frame. go-mp3 always renders stereo; mono streams keep the left
// channel and stereo streams are deinterleaved into S16P.
type MP3Decoder struct {
	config DecoderConfig
	feed   frameFeeder
	dec    *mp3.Decoder
	pcm    []byte
	ints   []int16
	out    *AudioSampleBuffer

	stats  DecoderStats
	closed bool
	mu     sync.Mutex
}

// NewMP3Decoder creates a Layer III decoder.
func NewMP3Decoder(config DecoderConfig) (*MP3Decoder, error) {
	return &MP3Decoder{config: config}, nil
}

// Decode implements Decoder.
func (d *MP3Decoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return DecodeResult{}, ErrSessionClosed
	}
	if len(data) == 0 {
		return DecodeResult{}, nil
	}

	size, err := mp3FrameSize(data)
	if err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, err
	}
	if size > len(data) {
		d.stats.CorruptedFrames++
		return DecodeResult{}, fmt.Errorf("mpeg audio: frame of %d bytes truncated to %d", size, len(data))
	}
	head, err := codec.DecodeMp3Head(data)
	if err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, err
	}
	if head.Layer != codec.LAYER_3 || head.Version == codec.VERSION_MPEG_2_5 {
		d.stats.CorruptedFrames++
		return DecodeResult{}, fmt.Errorf("%w: mpeg audio version %d layer %d", ErrCodecNotSupported, head.Version, head.Layer)
	}

	d.feed.buf = data[:size]
	if d.dec == nil {
		dec, err := mp3.NewDecoder(&d.feed)
		if err != nil {
			d.stats.CorruptedFrames++
			return DecodeResult{}, fmt.Errorf("mp3 init: %w", err)
		}
		d.dec = dec
		channels := mp3Channels(head)
		format := AudioFormatS16
		if channels > 1 {
			format = AudioFormatS16P
		}
		d.out = NewAudioSampleBuffer(head.SampleSize, channels, format)
		d.out.SampleRate = dec.SampleRate()
	}

	// go-mp3 renders every frame as 16-bit little-endian stereo.
	n := head.SampleSize
	if cap(d.pcm) < n*4 {
		d.pcm = make([]byte, n*4)
		d.ints = make([]int16, n*2)
	}
	d.pcm = d.pcm[:n*4]
	if _, err := io.ReadFull(d.dec, d.pcm); err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, fmt.Errorf("mp3 decode: %w", err)
	}
	d.stats.BytesDecoded += uint64(size)

	d.ints = d.ints[:n*2]
	for i := range d.ints {
		d.ints[i] = int16(binary.LittleEndian.Uint16(d.pcm[i*2:]))
	}
	d.out.Grow(n)
	if d.out.Channels == 1 {
		dst := d.out.Planes[0]
		for i := 0; i < n; i++ {
			binary.NativeEndian.PutUint16(dst[i*2:], uint16(d.ints[i*2]))
		}
		d.out.SampleCount = n
	} else {
		deinterleaveS16(d.out, d.ints, n)
	}

	d.stats.FramesDecoded++
	d.stats.SamplesDecoded += uint64(n)

	samples := d.out.ToAudioSamples()
	return DecodeResult{Consumed: size, Audio: &samples}, nil
}

// Provider implements Decoder.
func (d *MP3Decoder) Provider() Provider {
	return ProviderGoMP3
}

// Stats implements Decoder.
func (d *MP3Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *MP3Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.dec = nil
	return nil
}

func init() {
	setProviderAvailable(ProviderGoMP3)
	registerAudioDecoder(AudioCodecMP3, ProviderGoMP3, func(config DecoderConfig) (Decoder, error) {
		return NewMP3Decoder(config)
	})
}
