package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// VideoSink writes decoded pictures as raw video: every frame's planes
// packed without row padding, frames back to back, no headers.
type VideoSink struct {
	w   io.Writer
	buf *VideoFrameBuffer

	frames int
	bytes  int64
}

// NewVideoSink returns a sink writing to w. The packing buffer is sized
// for g, or for the first frame when g has no dimensions.
func NewVideoSink(w io.Writer, g Geometry) *VideoSink {
	s := &VideoSink{w: w}
	if g.Width > 0 && g.Height > 0 {
		s.buf = NewVideoFrameBuffer(g.Width, g.Height, g.Format)
	}
	return s
}

// WriteVideoFrame repacks f and appends it to the output. The frame is not
// retained.
func (s *VideoSink) WriteVideoFrame(f *VideoFrame) error {
	if s.buf == nil {
		s.buf = NewVideoFrameBuffer(f.Width, f.Height, f.Format)
	}
	if g := s.Geometry(); f.Geometry() != g {
		return &GeometryChangedError{Old: g, New: f.Geometry()}
	}
	if err := s.buf.CopyFrom(f); err != nil {
		return err
	}
	for i, plane := range s.buf.Planes {
		if _, err := s.w.Write(plane); err != nil {
			return fmt.Errorf("write video plane %d: %w", i, err)
		}
		s.bytes += int64(len(plane))
	}
	s.frames++
	return nil
}

// Geometry returns the output geometry, zero before the first frame when
// it was not known up front.
func (s *VideoSink) Geometry() Geometry {
	if s.buf == nil {
		return Geometry{}
	}
	return Geometry{Width: s.buf.Width, Height: s.buf.Height, Format: s.buf.Format}
}

// Frames returns the number of frames written.
func (s *VideoSink) Frames() int { return s.frames }

// BytesWritten returns the output size so far.
func (s *VideoSink) BytesWritten() int64 { return s.bytes }

// AudioOutputFormat describes the bytes an AudioSink wrote.
type AudioOutputFormat struct {
	Format     AudioFormat // always packed
	Channels   int
	SampleRate int
}

// AudioSink writes the first plane of every audio frame. Packed frames are
// written whole; planar frames contribute their first channel only.
type AudioSink struct {
	w   io.Writer
	log *slog.Logger

	format  AudioOutputFormat
	seen    bool
	planar  bool
	frames  int
	samples int64
	bytes   int64
}

// NewAudioSink returns a sink writing to w.
func NewAudioSink(w io.Writer, logger *slog.Logger) *AudioSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioSink{w: w, log: logger}
}

// WriteAudioFrame appends SampleCount * BytesPerSample bytes of the first
// plane of f.
func (s *AudioSink) WriteAudioFrame(f *AudioSamples) error {
	if len(f.Data) == 0 {
		return errors.New("write audio: frame has no planes")
	}
	n := f.SampleCount * f.Format.BytesPerSample()
	if n > len(f.Data[0]) {
		return fmt.Errorf("write audio: %d samples of %s need %d bytes, plane has %d", f.SampleCount, f.Format, n, len(f.Data[0]))
	}
	if !s.seen {
		s.seen = true
		s.planar = f.Format.IsPlanar()
		s.format = AudioOutputFormat{Format: f.Format.Packed(), Channels: f.Channels, SampleRate: f.SampleRate}
		if s.planar {
			s.format.Channels = 1
			s.log.Warn("the sample format the decoder produced is planar; only the first channel is written",
				"format", f.Format.Name(), "channels", f.Channels)
		}
	}
	if _, err := s.w.Write(f.Data[0][:n]); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	s.frames++
	s.samples += int64(f.SampleCount)
	s.bytes += int64(n)
	return nil
}

// OutputFormat returns the layout of the written samples, for labeling.
// Planar input reports one channel and the packed sample format. ok is
// false before the first frame.
func (s *AudioSink) OutputFormat() (f AudioOutputFormat, ok bool) {
	return s.format, s.seen
}

// Planar reports whether the decoder produced planar samples.
func (s *AudioSink) Planar() bool { return s.planar }

// Frames returns the number of frames written.
func (s *AudioSink) Frames() int { return s.frames }

// BytesWritten returns the output size so far.
func (s *AudioSink) BytesWritten() int64 { return s.bytes }

// Samples returns the number of samples per channel written.
func (s *AudioSink) Samples() int64 { return s.samples }
