package media

import (
	"testing"
)

func TestPixelFormat_PlaneCount(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
	}{
		{PixelFormatI420, 3},
		{PixelFormatNV12, 2},
		{PixelFormatRGB24, 1},
		{PixelFormatRGBA32, 1},
		{PixelFormatBGRA32, 1},
		{PixelFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.PlaneCount(); got != tt.want {
				t.Errorf("PixelFormat.PlaneCount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioFormat_BytesPerSample(t *testing.T) {
	tests := []struct {
		format AudioFormat
		want   int
	}{
		{AudioFormatS16, 2},
		{AudioFormatF32, 4},
		{AudioFormatU8, 1},
		{AudioFormatF64P, 8},
		{AudioFormatS32P, 4},
		{AudioFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerSample(); got != tt.want {
				t.Errorf("AudioFormat.BytesPerSample() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 1920*1080 + 2*(960*540)},
		{1280, 720, 1280*720 + 2*(640*360)},
		{640, 480, 640*480 + 2*(320*240)},
		{320, 240, 320*240 + 2*(160*120)},
		{321, 241, 321*241 + 2*(161*121)},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			if got := I420Size(tt.width, tt.height); got != tt.want {
				t.Errorf("I420Size(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	original := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 4},
			{5, 6},
			{7, 8},
		},
		Stride:    []int{4, 2, 2},
		Width:     2,
		Height:    2,
		Format:    PixelFormatI420,
		Timestamp: 12345,
		Duration:  33333,
	}

	clone := original.Clone()

	// Verify values match
	if clone.Width != original.Width || clone.Height != original.Height {
		t.Error("Clone dimensions mismatch")
	}
	if clone.Format != original.Format {
		t.Error("Clone format mismatch")
	}
	if clone.Timestamp != original.Timestamp || clone.Duration != original.Duration {
		t.Error("Clone timing mismatch")
	}

	// Verify data is copied
	for i := range original.Data {
		for j := range original.Data[i] {
			if clone.Data[i][j] != original.Data[i][j] {
				t.Errorf("Clone data mismatch at plane %d, index %d", i, j)
			}
		}
	}

	// Verify independence (modify clone, original unchanged)
	clone.Data[0][0] = 99
	if original.Data[0][0] == 99 {
		t.Error("Clone is not independent from original")
	}
}

func TestAudioSamples_Clone(t *testing.T) {
	original := &AudioSamples{
		Data:        [][]byte{{0x00, 0x01}, {0x02, 0x03}},
		SampleRate:  48000,
		Channels:    2,
		SampleCount: 1,
		Format:      AudioFormatS16P,
		Timestamp:   12345,
	}

	clone := original.Clone()

	if clone.SampleRate != original.SampleRate {
		t.Error("Clone sample rate mismatch")
	}
	if clone.Channels != original.Channels {
		t.Error("Clone channels mismatch")
	}
	if len(clone.Data) != len(original.Data) {
		t.Fatal("Clone plane count mismatch")
	}

	// Verify independence
	clone.Data[1][0] = 0xFF
	if original.Data[1][0] == 0xFF {
		t.Error("Clone is not independent from original")
	}
}

func TestAudioFormat_Planar(t *testing.T) {
	tests := []struct {
		format AudioFormat
		planar bool
		packed AudioFormat
		name   string
	}{
		{AudioFormatS16, false, AudioFormatS16, "s16"},
		{AudioFormatF32, false, AudioFormatF32, "flt"},
		{AudioFormatS16P, true, AudioFormatS16, "s16p"},
		{AudioFormatF32P, true, AudioFormatF32, "fltp"},
		{AudioFormatU8P, true, AudioFormatU8, "u8p"},
		{AudioFormatF64P, true, AudioFormatF64, "dblp"},
		{AudioFormatS64P, true, AudioFormatS64, "s64p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.IsPlanar(); got != tt.planar {
				t.Errorf("IsPlanar() = %v, want %v", got, tt.planar)
			}
			if got := tt.format.Packed(); got != tt.packed {
				t.Errorf("Packed() = %v, want %v", got, tt.packed)
			}
			if got := tt.format.Name(); got != tt.name {
				t.Errorf("Name() = %v, want %v", got, tt.name)
			}
			if got := tt.packed.Planar().Packed(); got != tt.packed {
				t.Errorf("Planar().Packed() = %v, want %v", got, tt.packed)
			}
		})
	}
}

func TestPixelFormat_PlaneDimensions(t *testing.T) {
	tests := []struct {
		name          string
		format        PixelFormat
		plane         int
		width, height int
		rowBytes      int
		rows          int
	}{
		{"i420 luma", PixelFormatI420, 0, 320, 240, 320, 240},
		{"i420 chroma", PixelFormatI420, 1, 320, 240, 160, 120},
		{"i420 odd chroma", PixelFormatI420, 2, 5, 3, 3, 2},
		{"nv12 chroma", PixelFormatNV12, 1, 5, 3, 6, 2},
		{"rgb24", PixelFormatRGB24, 0, 10, 2, 30, 2},
		{"out of range", PixelFormatI420, 3, 10, 2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowBytes, rows := tt.format.PlaneDimensions(tt.plane, tt.width, tt.height)
			if rowBytes != tt.rowBytes || rows != tt.rows {
				t.Errorf("PlaneDimensions() = (%d, %d), want (%d, %d)", rowBytes, rows, tt.rowBytes, tt.rows)
			}
		})
	}
}

func TestGeometry_String(t *testing.T) {
	g := Geometry{Width: 320, Height: 240, Format: PixelFormatI420}
	if got, want := g.String(), "320x240 yuv420p"; got != want {
		t.Errorf("Geometry.String() = %q, want %q", got, want)
	}
}
