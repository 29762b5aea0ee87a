package media

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestVideoSink_PackedSize(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
	}{
		{"i420", Geometry{320, 240, PixelFormatI420}},
		{"i420 odd", Geometry{33, 17, PixelFormatI420}},
		{"nv12", Geometry{64, 48, PixelFormatNV12}},
		{"rgb24", Geometry{10, 10, PixelFormatRGB24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			sink := NewVideoSink(&out, tt.g)
			const frames = 5
			for i := 0; i < frames; i++ {
				if err := sink.WriteVideoFrame(paddedFrame(tt.g, 32, byte(i))); err != nil {
					t.Fatalf("WriteVideoFrame() error = %v", err)
				}
			}
			want := frames * tt.g.Format.FrameSize(tt.g.Width, tt.g.Height)
			if out.Len() != want {
				t.Errorf("output size = %d, want %d", out.Len(), want)
			}
			if sink.BytesWritten() != int64(want) {
				t.Errorf("BytesWritten() = %d, want %d", sink.BytesWritten(), want)
			}
			if sink.Frames() != frames {
				t.Errorf("Frames() = %d, want %d", sink.Frames(), frames)
			}
			if bytes.IndexByte(out.Bytes(), 0xEE) >= 0 {
				t.Error("row padding written to output")
			}
		})
	}
}

func TestVideoSink_LazyGeometry(t *testing.T) {
	var out bytes.Buffer
	sink := NewVideoSink(&out, Geometry{})
	if g := sink.Geometry(); g != (Geometry{}) {
		t.Fatalf("Geometry() = %v, want zero", g)
	}
	g := Geometry{16, 8, PixelFormatI420}
	if err := sink.WriteVideoFrame(paddedFrame(g, 0, 1)); err != nil {
		t.Fatalf("WriteVideoFrame() error = %v", err)
	}
	if sink.Geometry() != g {
		t.Errorf("Geometry() = %v, want %v", sink.Geometry(), g)
	}
}

func TestVideoSink_GeometryMismatch(t *testing.T) {
	var out bytes.Buffer
	sink := NewVideoSink(&out, Geometry{320, 240, PixelFormatI420})
	err := sink.WriteVideoFrame(paddedFrame(Geometry{160, 120, PixelFormatI420}, 0, 1))
	if !errors.Is(err, ErrGeometryChanged) {
		t.Fatalf("WriteVideoFrame() error = %v, want ErrGeometryChanged", err)
	}
	if out.Len() != 0 {
		t.Errorf("output size = %d, want 0", out.Len())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestVideoSink_WriteError(t *testing.T) {
	g := Geometry{8, 8, PixelFormatI420}
	sink := NewVideoSink(failingWriter{}, g)
	if err := sink.WriteVideoFrame(paddedFrame(g, 0, 1)); err == nil {
		t.Error("WriteVideoFrame() error = nil, want write error")
	}
}

func TestAudioSink_Size(t *testing.T) {
	tests := []struct {
		name         string
		format       AudioFormat
		channels     int
		samples      []int
		wantFormat   AudioFormat
		wantChannels int
		wantPlanar   bool
	}{
		{"s16 mono", AudioFormatS16, 1, []int{1024, 1024, 512}, AudioFormatS16, 1, false},
		{"flt mono", AudioFormatF32, 1, []int{960, 960}, AudioFormatF32, 1, false},
		{"u8 mono", AudioFormatU8, 1, []int{160}, AudioFormatU8, 1, false},
		{"fltp stereo", AudioFormatF32P, 2, []int{1024, 1024}, AudioFormatF32, 1, true},
		{"s16p stereo", AudioFormatS16P, 2, []int{1152}, AudioFormatS16, 1, true},
		{"s16 stereo", AudioFormatS16, 2, []int{1024}, AudioFormatS16, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			sink := NewAudioSink(&out, slog.New(slog.NewTextHandler(io.Discard, nil)))
			want := 0
			for i, n := range tt.samples {
				if err := sink.WriteAudioFrame(audioFrame(tt.format, tt.channels, 48000, n, byte(i))); err != nil {
					t.Fatalf("WriteAudioFrame() error = %v", err)
				}
				want += n * tt.format.BytesPerSample()
			}
			if out.Len() != want {
				t.Errorf("output size = %d, want %d", out.Len(), want)
			}
			f, ok := sink.OutputFormat()
			if !ok {
				t.Fatal("OutputFormat() not known after writing")
			}
			if f.Format != tt.wantFormat || f.Channels != tt.wantChannels || f.SampleRate != 48000 {
				t.Errorf("OutputFormat() = %+v, want %v %d ch 48000 Hz", f, tt.wantFormat, tt.wantChannels)
			}
			if sink.Planar() != tt.wantPlanar {
				t.Errorf("Planar() = %v, want %v", sink.Planar(), tt.wantPlanar)
			}
			if sink.Frames() != len(tt.samples) {
				t.Errorf("Frames() = %d, want %d", sink.Frames(), len(tt.samples))
			}
		})
	}
}

func TestAudioSink_PlanarWritesFirstChannel(t *testing.T) {
	var out bytes.Buffer
	sink := NewAudioSink(&out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	frame := audioFrame(AudioFormatS16P, 2, 44100, 4, 10)
	if err := sink.WriteAudioFrame(frame); err != nil {
		t.Fatalf("WriteAudioFrame() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), frame.Data[0]) {
		t.Errorf("output = %v, want first plane %v", out.Bytes(), frame.Data[0])
	}
}

func TestAudioSink_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame *AudioSamples
	}{
		{"no planes", &AudioSamples{Format: AudioFormatS16, SampleCount: 10}},
		{"short plane", &AudioSamples{Format: AudioFormatS16, SampleCount: 10, Data: [][]byte{make([]byte, 19)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewAudioSink(io.Discard, nil)
			if err := sink.WriteAudioFrame(tt.frame); err == nil {
				t.Error("WriteAudioFrame() error = nil, want error")
			}
			if _, ok := sink.OutputFormat(); ok {
				t.Error("OutputFormat() known after a rejected frame")
			}
		})
	}
}
