//go:build (darwin || linux) && !noh264 && !noopus && !novpx

package media

import (
	"errors"
	"testing"
)

func TestNativeDecoders_Registration(t *testing.T) {
	tests := []struct {
		name      string
		available func() bool
		provider  Provider
		desc      StreamDescriptor
	}{
		{"openh264", IsH264DecoderAvailable, ProviderOpenH264, StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecH264}},
		{"libvpx vp8", IsVP8Available, ProviderLibvpx, StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8}},
		{"libvpx vp9", IsVP9Available, ProviderLibvpx, StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP9}},
		{"libopus", IsOpusAvailable, ProviderLibopus, StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecOpus, SampleRate: 48000, Channels: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := FindDecoder(tt.desc, DecoderConfig{Provider: tt.provider, SampleRate: tt.desc.SampleRate, Channels: tt.desc.Channels})
			if !tt.available() {
				if !errors.Is(err, ErrNoDecoderFound) {
					t.Errorf("FindDecoder() error = %v, want ErrNoDecoderFound", err)
				}
				t.Skipf("%s not available", tt.name)
			}
			if err != nil {
				t.Fatalf("FindDecoder() error = %v", err)
			}
			if d.Provider() != tt.provider {
				t.Errorf("Provider() = %v, want %v", d.Provider(), tt.provider)
			}
			if err := d.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
			if _, err := d.Decode([]byte{0}); !errors.Is(err, ErrSessionClosed) {
				t.Errorf("Decode() after Close error = %v, want ErrSessionClosed", err)
			}
		})
	}
}

func TestVP8DefaultPrefersLibvpx(t *testing.T) {
	if !IsVP8Available() {
		t.Skip("libvpx not available")
	}
	d, err := FindDecoder(StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8}, DecoderConfig{})
	if err != nil {
		t.Fatalf("FindDecoder() error = %v", err)
	}
	defer d.Close()
	if d.Provider() != ProviderLibvpx {
		t.Errorf("Provider() = %v, want %v", d.Provider(), ProviderLibvpx)
	}
}

func TestOpusPacketSamples(t *testing.T) {
	if got := GetOpusPacketSamples(nil, 48000); got != 0 {
		t.Errorf("GetOpusPacketSamples(nil) = %d, want 0", got)
	}
	if !IsOpusAvailable() {
		t.Skip("libopus not available")
	}
	if GetOpusVersion() == "" {
		t.Error("GetOpusVersion() = empty")
	}
	// TOC 0xFC: CELT fullband, 20 ms, one frame.
	if got := GetOpusPacketSamples([]byte{0xFC, 0xFF, 0xFE}, 48000); got != 960 {
		t.Errorf("GetOpusPacketSamples() = %d, want 960", got)
	}
}

func TestIsVPXKeyframe(t *testing.T) {
	tests := []struct {
		name  string
		codec VideoCodec
		data  []byte
		want  bool
	}{
		{"vp8 key", VideoCodecVP8, []byte{0x00}, true},
		{"vp8 inter", VideoCodecVP8, []byte{0x01}, false},
		{"vp9 key", VideoCodecVP9, []byte{0x82}, true},
		{"vp9 inter", VideoCodecVP9, []byte{0x86}, false},
		{"vp9 show existing", VideoCodecVP9, []byte{0x88}, false},
		{"h264", VideoCodecH264, []byte{0x65}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isVPXKeyframe(tt.codec, tt.data); got != tt.want {
				t.Errorf("isVPXKeyframe() = %v, want %v", got, tt.want)
			}
		})
	}
}
