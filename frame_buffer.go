package media

import "fmt"

// VideoFrameBuffer is an owned, tightly packed image. Plane i holds
// PlaneDimensions(i) rows of exactly rowBytes bytes, so Stride == row width.
type VideoFrameBuffer struct {
	Planes  [][]byte
	Strides []int

	Width       int
	Height      int
	Format      PixelFormat
	TimestampNs int64
	DurationNs  int64
}

// NewVideoFrameBuffer creates a new pre-allocated frame buffer.
// Odd dimensions round the 4:2:0 chroma planes up.
func NewVideoFrameBuffer(width, height int, format PixelFormat) *VideoFrameBuffer {
	n := format.PlaneCount()
	buf := &VideoFrameBuffer{
		Planes:  make([][]byte, n),
		Strides: make([]int, n),
		Width:   width,
		Height:  height,
		Format:  format,
	}
	for i := 0; i < n; i++ {
		rowBytes, rows := format.PlaneDimensions(i, width, height)
		buf.Planes[i] = make([]byte, rowBytes*rows)
		buf.Strides[i] = rowBytes
	}
	return buf
}

// Size returns the total number of bytes across all planes.
func (b *VideoFrameBuffer) Size() int {
	total := 0
	for _, p := range b.Planes {
		total += len(p)
	}
	return total
}

// CopyFrom repacks a possibly stride-padded frame into the buffer. The frame
// must have the buffer's geometry.
func (b *VideoFrameBuffer) CopyFrom(frame *VideoFrame) error {
	if frame.Width != b.Width || frame.Height != b.Height || frame.Format != b.Format {
		return fmt.Errorf("image copy: frame %s into buffer %s", frame.Geometry(), Geometry{b.Width, b.Height, b.Format})
	}
	if len(frame.Data) < len(b.Planes) || len(frame.Stride) < len(b.Planes) {
		return fmt.Errorf("image copy: frame has %d planes, want %d", len(frame.Data), len(b.Planes))
	}
	for i, dst := range b.Planes {
		rowBytes, rows := b.Format.PlaneDimensions(i, b.Width, b.Height)
		if err := copyPlane(dst, rowBytes, frame.Data[i], frame.Stride[i], rowBytes, rows); err != nil {
			return fmt.Errorf("image copy plane %d: %w", i, err)
		}
	}
	b.TimestampNs = frame.Timestamp
	b.DurationNs = frame.Duration
	return nil
}

// copyPlane copies rows of rowBytes bytes between buffers with different strides.
func copyPlane(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) error {
	if rows == 0 {
		return nil
	}
	if srcStride < rowBytes {
		return fmt.Errorf("stride %d shorter than row %d", srcStride, rowBytes)
	}
	if need := srcStride*(rows-1) + rowBytes; len(src) < need {
		return fmt.Errorf("source has %d bytes, want %d", len(src), need)
	}
	if need := dstStride*(rows-1) + rowBytes; len(dst) < need {
		return fmt.Errorf("destination has %d bytes, want %d", len(dst), need)
	}
	for row := 0; row < rows; row++ {
		copy(dst[row*dstStride:row*dstStride+rowBytes], src[row*srcStride:])
	}
	return nil
}

// ToVideoFrame creates a VideoFrame pointing to this buffer's data.
// The returned frame is only valid while the buffer is not modified.
func (b *VideoFrameBuffer) ToVideoFrame() VideoFrame {
	return VideoFrame{
		Data:      b.Planes,
		Stride:    b.Strides,
		Width:     b.Width,
		Height:    b.Height,
		Format:    b.Format,
		Timestamp: b.TimestampNs,
		Duration:  b.DurationNs,
	}
}

// AudioSampleBuffer is a reusable output buffer for audio decoders.
type AudioSampleBuffer struct {
	Planes [][]byte

	SampleRate  int
	Channels    int
	SampleCount int
	Format      AudioFormat
	TimestampNs int64
}

// NewAudioSampleBuffer creates a new pre-allocated audio buffer.
// Planar formats get one plane per channel.
func NewAudioSampleBuffer(maxSamples, channels int, format AudioFormat) *AudioSampleBuffer {
	bytesPerSample := format.BytesPerSample()
	buf := &AudioSampleBuffer{
		Channels: channels,
		Format:   format,
	}
	if format.IsPlanar() {
		buf.Planes = make([][]byte, channels)
		for i := range buf.Planes {
			buf.Planes[i] = make([]byte, maxSamples*bytesPerSample)
		}
	} else {
		buf.Planes = [][]byte{make([]byte, maxSamples*channels*bytesPerSample)}
	}
	return buf
}

// Capacity returns the number of samples per channel the buffer holds.
func (b *AudioSampleBuffer) Capacity() int {
	bps := b.Format.BytesPerSample()
	if bps == 0 || len(b.Planes) == 0 {
		return 0
	}
	if b.Format.IsPlanar() {
		return len(b.Planes[0]) / bps
	}
	return len(b.Planes[0]) / (bps * b.Channels)
}

// Grow makes room for at least samples per channel, discarding contents.
func (b *AudioSampleBuffer) Grow(samples int) {
	if samples <= b.Capacity() {
		return
	}
	rate := b.SampleRate
	*b = *NewAudioSampleBuffer(samples, b.Channels, b.Format)
	b.SampleRate = rate
}

// Reset clears the buffer metadata for reuse.
func (b *AudioSampleBuffer) Reset() {
	b.SampleCount = 0
	b.TimestampNs = 0
}

// ToAudioSamples creates an AudioSamples pointing to this buffer's data.
func (b *AudioSampleBuffer) ToAudioSamples() AudioSamples {
	planeBytes := b.SampleCount * b.Format.BytesPerSample()
	if !b.Format.IsPlanar() {
		planeBytes *= b.Channels
	}
	planes := make([][]byte, len(b.Planes))
	for i, p := range b.Planes {
		planes[i] = p[:planeBytes]
	}
	return AudioSamples{
		Data:        planes,
		SampleRate:  b.SampleRate,
		Channels:    b.Channels,
		SampleCount: b.SampleCount,
		Format:      b.Format,
		Timestamp:   b.TimestampNs,
	}
}
