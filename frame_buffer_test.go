package media

import (
	"bytes"
	"testing"
)

func TestVideoFrameBuffer_I420(t *testing.T) {
	buf := NewVideoFrameBuffer(1280, 720, PixelFormatI420)

	ySize := 1280 * 720
	uvSize := 640 * 360

	if len(buf.Planes) != 3 {
		t.Fatalf("planes = %d, want 3", len(buf.Planes))
	}
	if len(buf.Planes[0]) != ySize {
		t.Errorf("Y plane size = %d, want %d", len(buf.Planes[0]), ySize)
	}
	if len(buf.Planes[1]) != uvSize || len(buf.Planes[2]) != uvSize {
		t.Errorf("U/V plane size = %d/%d, want %d", len(buf.Planes[1]), len(buf.Planes[2]), uvSize)
	}
	if buf.Strides[0] != 1280 {
		t.Errorf("StrideY = %d, want 1280", buf.Strides[0])
	}
	if buf.Strides[1] != 640 || buf.Strides[2] != 640 {
		t.Errorf("StrideU/V = %d/%d, want 640", buf.Strides[1], buf.Strides[2])
	}
}

func TestVideoFrameBuffer_OddDimensions(t *testing.T) {
	buf := NewVideoFrameBuffer(321, 241, PixelFormatI420)

	if got, want := len(buf.Planes[1]), 161*121; got != want {
		t.Errorf("U plane size = %d, want %d", got, want)
	}
	if got, want := buf.Size(), 321*241+2*161*121; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestVideoFrameBuffer_NV12(t *testing.T) {
	buf := NewVideoFrameBuffer(1920, 1080, PixelFormatNV12)

	ySize := 1920 * 1080
	uvSize := (1920 / 2) * (1080 / 2) * 2 // Interleaved UV

	if len(buf.Planes[0]) != ySize {
		t.Errorf("Y plane size = %d, want %d", len(buf.Planes[0]), ySize)
	}
	if len(buf.Planes[1]) != uvSize {
		t.Errorf("UV plane size = %d, want %d", len(buf.Planes[1]), uvSize)
	}
}

func TestVideoFrameBuffer_RGB(t *testing.T) {
	tests := []struct {
		format PixelFormat
		bpp    int
	}{
		{PixelFormatRGB24, 3},
		{PixelFormatRGBA32, 4},
		{PixelFormatBGRA32, 4},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			buf := NewVideoFrameBuffer(640, 480, tt.format)

			expectedSize := 640 * 480 * tt.bpp
			if len(buf.Planes) != 1 {
				t.Fatalf("planes = %d, want 1", len(buf.Planes))
			}
			if len(buf.Planes[0]) != expectedSize {
				t.Errorf("Data size = %d, want %d", len(buf.Planes[0]), expectedSize)
			}
			if buf.Strides[0] != 640*tt.bpp {
				t.Errorf("Stride = %d, want %d", buf.Strides[0], 640*tt.bpp)
			}
		})
	}
}

func TestVideoFrameBuffer_CopyFromPadded(t *testing.T) {
	const w, h = 4, 2
	// Source planes with 8-byte luma and 4-byte chroma strides.
	frame := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 4, 0, 0, 0, 0, 5, 6, 7, 8, 0, 0, 0, 0},
			{9, 10, 0, 0},
			{11, 12, 0, 0},
		},
		Stride: []int{8, 4, 4},
		Width:  w,
		Height: h,
		Format: PixelFormatI420,
	}

	buf := NewVideoFrameBuffer(w, h, PixelFormatI420)
	if err := buf.CopyFrom(frame); err != nil {
		t.Fatalf("CopyFrom() error = %v", err)
	}

	want := [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}, {9, 10}, {11, 12}}
	for i := range want {
		if !bytes.Equal(buf.Planes[i], want[i]) {
			t.Errorf("plane %d = %v, want %v", i, buf.Planes[i], want[i])
		}
	}
}

func TestVideoFrameBuffer_CopyFromErrors(t *testing.T) {
	buf := NewVideoFrameBuffer(4, 2, PixelFormatI420)

	tests := []struct {
		name  string
		frame *VideoFrame
	}{
		{
			name:  "geometry mismatch",
			frame: &VideoFrame{Width: 8, Height: 2, Format: PixelFormatI420},
		},
		{
			name: "missing planes",
			frame: &VideoFrame{
				Data:   [][]byte{make([]byte, 8)},
				Stride: []int{4},
				Width:  4, Height: 2, Format: PixelFormatI420,
			},
		},
		{
			name: "short plane",
			frame: &VideoFrame{
				Data:   [][]byte{make([]byte, 5), make([]byte, 2), make([]byte, 2)},
				Stride: []int{4, 2, 2},
				Width:  4, Height: 2, Format: PixelFormatI420,
			},
		},
		{
			name: "stride below row width",
			frame: &VideoFrame{
				Data:   [][]byte{make([]byte, 8), make([]byte, 2), make([]byte, 2)},
				Stride: []int{2, 2, 2},
				Width:  4, Height: 2, Format: PixelFormatI420,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := buf.CopyFrom(tt.frame); err == nil {
				t.Error("CopyFrom() error = nil, want error")
			}
		})
	}
}

func TestVideoFrameBuffer_ToVideoFrame(t *testing.T) {
	buf := NewVideoFrameBuffer(640, 480, PixelFormatI420)
	buf.TimestampNs = 1000000
	buf.DurationNs = 33333333

	frame := buf.ToVideoFrame()

	if frame.Width != 640 || frame.Height != 480 {
		t.Errorf("Dimensions = %dx%d, want 640x480", frame.Width, frame.Height)
	}
	if frame.Format != PixelFormatI420 {
		t.Errorf("Format = %v, want I420", frame.Format)
	}
	if frame.Timestamp != 1000000 {
		t.Errorf("Timestamp = %d, want 1000000", frame.Timestamp)
	}
	if len(frame.Data) != 3 || len(frame.Stride) != 3 {
		t.Fatalf("planes = %d/%d, want 3", len(frame.Data), len(frame.Stride))
	}
	if &frame.Data[0][0] != &buf.Planes[0][0] {
		t.Error("ToVideoFrame() should share the buffer's memory")
	}
}

func TestAudioSampleBuffer(t *testing.T) {
	buf := NewAudioSampleBuffer(960, 2, AudioFormatS16)

	if len(buf.Planes) != 1 {
		t.Fatalf("planes = %d, want 1", len(buf.Planes))
	}
	expectedSize := 960 * 2 * 2 // samples * channels * bytes_per_sample
	if len(buf.Planes[0]) != expectedSize {
		t.Errorf("Data size = %d, want %d", len(buf.Planes[0]), expectedSize)
	}
	if got := buf.Capacity(); got != 960 {
		t.Errorf("Capacity() = %d, want 960", got)
	}
}

func TestAudioSampleBuffer_Planar(t *testing.T) {
	buf := NewAudioSampleBuffer(1024, 2, AudioFormatS16P)

	if len(buf.Planes) != 2 {
		t.Fatalf("planes = %d, want 2", len(buf.Planes))
	}
	if len(buf.Planes[1]) != 1024*2 {
		t.Errorf("plane size = %d, want %d", len(buf.Planes[1]), 1024*2)
	}
	if got := buf.Capacity(); got != 1024 {
		t.Errorf("Capacity() = %d, want 1024", got)
	}

	buf.SampleRate = 44100
	buf.Grow(4096)
	if got := buf.Capacity(); got != 4096 {
		t.Errorf("Capacity() after Grow = %d, want 4096", got)
	}
	if buf.SampleRate != 44100 {
		t.Errorf("SampleRate after Grow = %d, want 44100", buf.SampleRate)
	}
}

func TestAudioSampleBuffer_ToAudioSamples(t *testing.T) {
	buf := NewAudioSampleBuffer(960, 2, AudioFormatS16P)
	buf.SampleRate = 48000
	buf.SampleCount = 480
	buf.TimestampNs = 20000000

	samples := buf.ToAudioSamples()

	if samples.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", samples.SampleRate)
	}
	if samples.SampleCount != 480 {
		t.Errorf("SampleCount = %d, want 480", samples.SampleCount)
	}
	if len(samples.Data) != 2 {
		t.Fatalf("planes = %d, want 2", len(samples.Data))
	}
	if len(samples.Data[0]) != 480*2 {
		t.Errorf("plane length = %d, want %d", len(samples.Data[0]), 480*2)
	}
}
