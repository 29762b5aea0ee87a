//go:build (darwin || linux) && !noopus

// Opus decoding via libstream_opus using purego.

package media

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"
)

var (
	streamOpusOnce    sync.Once
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusDecoderCreate    func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode    func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusPacketGetSamples func(data uintptr, dataLen, sampleRate int32) int32
	streamOpusDecoderDestroy   func(decoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		_, streamOpusInitErr = openNativeLib("libstream_opus", "STREAM_OPUS_LIB_PATH", func(h uintptr) error {
			return registerSymbols(h, map[string]any{
				"stream_opus_decoder_create":     &streamOpusDecoderCreate,
				"stream_opus_decoder_decode":     &streamOpusDecoderDecode,
				"stream_opus_packet_get_samples": &streamOpusPacketGetSamples,
				"stream_opus_decoder_destroy":    &streamOpusDecoderDestroy,
				"stream_opus_get_error":          &streamOpusGetError,
				"stream_opus_get_version":        &streamOpusGetVersion,
			})
		})
	})
	return streamOpusInitErr
}

// IsOpusAvailable checks if libstream_opus is available.
func IsOpusAvailable() bool {
	return loadStreamOpus() == nil
}

// GetOpusVersion returns the libopus version string.
func GetOpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func getOpusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// OpusDecoder decodes one Opus packet per call into interleaved S16 PCM.
// Opus holds no reordering delay, so draining yields nothing.
type OpusDecoder struct {
	config     DecoderConfig
	handle     uint64
	sampleRate int
	channels   int
	pcm        []int16
	out        *AudioSampleBuffer

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewOpusDecoder creates a new Opus decoder.
func NewOpusDecoder(config DecoderConfig) (*OpusDecoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("Opus decoder not available: %w", err)
	}

	sampleRate := config.SampleRate
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		sampleRate = 48000
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels > 2 {
		return nil, fmt.Errorf("%w: Opus supports max 2 channels, got %d", ErrCodecNotSupported, channels)
	}

	handle := streamOpusDecoderCreate(int32(sampleRate), int32(channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus decoder: %s", getOpusError())
	}

	// Buffer for 120ms of audio (max Opus frame size)
	maxFrame := sampleRate * 120 / 1000
	out := NewAudioSampleBuffer(maxFrame, channels, AudioFormatS16)
	out.SampleRate = sampleRate

	return &OpusDecoder{
		config:     config,
		handle:     handle,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, maxFrame*channels),
		out:        out,
	}, nil
}

// Decode implements Decoder.
func (d *OpusDecoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return DecodeResult{}, ErrSessionClosed
	}
	if len(data) == 0 {
		return DecodeResult{}, nil
	}

	result := streamOpusDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&data[0])),
		int32(len(data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		int32(len(d.pcm)/d.channels),
		0,
	)
	if result < 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("opus decode: %s", getOpusError())
	}

	n := int(result) * d.channels
	dst := d.out.Planes[0]
	for i := 0; i < n; i++ {
		binary.NativeEndian.PutUint16(dst[i*2:], uint16(d.pcm[i]))
	}
	d.out.SampleCount = int(result)

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(len(data))
	d.stats.SamplesDecoded += uint64(result)
	d.statsMu.Unlock()

	samples := d.out.ToAudioSamples()
	return DecodeResult{Consumed: len(data), Audio: &samples}, nil
}

// Provider implements Decoder.
func (d *OpusDecoder) Provider() Provider {
	return ProviderLibopus
}

// Stats implements Decoder.
func (d *OpusDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// GetOpusPacketSamples returns the number of samples in an Opus packet.
func GetOpusPacketSamples(data []byte, sampleRate int) int {
	if !IsOpusAvailable() || len(data) == 0 {
		return 0
	}
	return int(streamOpusPacketGetSamples(
		uintptr(unsafe.Pointer(&data[0])),
		int32(len(data)),
		int32(sampleRate),
	))
}

func init() {
	if !IsOpusAvailable() {
		return
	}
	setProviderAvailable(ProviderLibopus)
	registerAudioDecoder(AudioCodecOpus, ProviderLibopus, func(config DecoderConfig) (Decoder, error) {
		return NewOpusDecoder(config)
	})
}
