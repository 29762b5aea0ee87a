package media

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// DecoderConfig configures a decoder.
type DecoderConfig struct {
	Provider Provider // Provider to use (ProviderAuto = library chooses)
	Threads  int      // Decoder threads (0 = auto)

	// Stream parameters as reported by the container. Decoders treat them
	// as hints; the bitstream wins when they disagree.
	Width      int
	Height     int
	SampleRate int
	Channels   int
	ExtraData  []byte

	// MaxFrameSamples caps the samples per channel returned by one call for
	// decoders of unframed PCM-like codecs (G.711).
	MaxFrameSamples int
}

// DecoderConfigFor returns a DecoderConfig seeded from a stream descriptor.
func DecoderConfigFor(desc StreamDescriptor) DecoderConfig {
	return DecoderConfig{
		Width:      desc.Width,
		Height:     desc.Height,
		SampleRate: desc.SampleRate,
		Channels:   desc.Channels,
		ExtraData:  desc.ExtraData,
	}
}

// DecoderStats provides decoding metrics.
type DecoderStats struct {
	FramesDecoded    uint64 // Total frames produced
	KeyframesDecoded uint64 // Keyframes produced (video only)
	BytesDecoded     uint64 // Compressed bytes consumed
	SamplesDecoded   uint64 // Samples per channel produced (audio only)
	CorruptedFrames  uint64 // Calls that failed
}

// DecodeResult is the outcome of one decoder call: how many input bytes
// were consumed and at most one decoded frame.
type DecodeResult struct {
	Consumed int
	Video    *VideoFrame
	Audio    *AudioSamples
}

// HasFrame reports whether the call produced a frame.
func (r DecodeResult) HasFrame() bool { return r.Video != nil || r.Audio != nil }

// Decoder turns compressed bytes into raw frames.
//
// Decode consumes a prefix of data and returns at most one frame. A decoder
// may consume bytes without producing a frame (buffering) and may produce a
// frame while consuming nothing (draining). An empty data slice signals end
// of stream: the decoder returns buffered frames one per call and then a
// result without a frame.
//
// Returned frames may reference memory owned by the decoder that stays valid
// only until the next Decode or Close call.
type Decoder interface {
	io.Closer
	Decode(data []byte) (DecodeResult, error)
	Provider() Provider
	Stats() DecoderStats
}

// DecoderFinder resolves a decoder for a stream.
type DecoderFinder func(desc StreamDescriptor, config DecoderConfig) (Decoder, error)

// --- Registry ---

type decoderFactory func(DecoderConfig) (Decoder, error)

type decoderRegistry struct {
	mu sync.RWMutex

	// Provider-aware registry: codec -> provider -> factory
	videoProviders map[VideoCodec]map[Provider]decoderFactory
	audioProviders map[AudioCodec]map[Provider]decoderFactory

	// Default provider per codec
	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

var globalDecoderRegistry = &decoderRegistry{
	videoProviders: make(map[VideoCodec]map[Provider]decoderFactory),
	audioProviders: make(map[AudioCodec]map[Provider]decoderFactory),
	videoDefaults:  make(map[VideoCodec]Provider),
	audioDefaults:  make(map[AudioCodec]Provider),
}

// registerVideoDecoder registers a video decoder factory for a codec+provider.
func registerVideoDecoder(codec VideoCodec, provider Provider, factory decoderFactory) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()

	if globalDecoderRegistry.videoProviders[codec] == nil {
		globalDecoderRegistry.videoProviders[codec] = make(map[Provider]decoderFactory)
	}
	globalDecoderRegistry.videoProviders[codec][provider] = factory

	current, exists := globalDecoderRegistry.videoDefaults[codec]
	if !exists || provider.preferredOver(current) {
		globalDecoderRegistry.videoDefaults[codec] = provider
	}
}

// registerAudioDecoder registers an audio decoder factory for a codec+provider.
func registerAudioDecoder(codec AudioCodec, provider Provider, factory decoderFactory) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()

	if globalDecoderRegistry.audioProviders[codec] == nil {
		globalDecoderRegistry.audioProviders[codec] = make(map[Provider]decoderFactory)
	}
	globalDecoderRegistry.audioProviders[codec][provider] = factory

	current, exists := globalDecoderRegistry.audioDefaults[codec]
	if !exists || provider.preferredOver(current) {
		globalDecoderRegistry.audioDefaults[codec] = provider
	}
}

// SetDefaultVideoDecoderProvider sets the default provider for a video codec.
func SetDefaultVideoDecoderProvider(codec VideoCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.videoDefaults[codec] = provider
}

// SetDefaultAudioDecoderProvider sets the default provider for an audio codec.
func SetDefaultAudioDecoderProvider(codec AudioCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.audioDefaults[codec] = provider
}

func (r *decoderRegistry) lookup(desc StreamDescriptor, p Provider) (decoderFactory, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auto := p == ProviderAuto
	var providers map[Provider]decoderFactory
	switch desc.MediaType {
	case MediaTypeVideo:
		providers = r.videoProviders[desc.VideoCodec]
		if p == ProviderAuto {
			p = r.videoDefaults[desc.VideoCodec]
		}
	case MediaTypeAudio:
		providers = r.audioProviders[desc.AudioCodec]
		if p == ProviderAuto {
			p = r.audioDefaults[desc.AudioCodec]
		}
	}
	if providers == nil {
		return nil, p, fmt.Errorf("%w: no providers for %s %s", ErrNoDecoderFound, desc.MediaType, desc.CodecName())
	}

	// The default may point at a native provider whose library failed to load.
	if auto && !p.Available() {
		p = bestAvailable(providers)
	}

	factory, ok := providers[p]
	if !ok || !p.Available() {
		return nil, p, fmt.Errorf("%w: %w: %s for %s", ErrNoDecoderFound, ErrProviderNotFound, p, desc.CodecName())
	}
	return factory, p, nil
}

func bestAvailable(providers map[Provider]decoderFactory) Provider {
	best := ProviderAuto
	for p := range providers {
		if !p.Available() {
			continue
		}
		if best == ProviderAuto || p.preferredOver(best) {
			best = p
		}
	}
	return best
}

// FindDecoder creates a decoder for the stream described by desc.
// It fails with ErrNoDecoderFound when no available provider handles the codec.
func FindDecoder(desc StreamDescriptor, config DecoderConfig) (Decoder, error) {
	factory, _, err := globalDecoderRegistry.lookup(desc, config.Provider)
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// HasDecoder reports whether FindDecoder would find a provider for desc.
func HasDecoder(desc StreamDescriptor) bool {
	_, _, err := globalDecoderRegistry.lookup(desc, ProviderAuto)
	return err == nil
}

// VideoDecoderProviders returns available providers for a video codec.
func VideoDecoderProviders(codec VideoCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	return availableProviders(globalDecoderRegistry.videoProviders[codec])
}

// AudioDecoderProviders returns available providers for an audio codec.
func AudioDecoderProviders(codec AudioCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	return availableProviders(globalDecoderRegistry.audioProviders[codec])
}

func availableProviders(providers map[Provider]decoderFactory) []Provider {
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
