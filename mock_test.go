package media

import (
	"io"
	"testing"
)

// fakeDecoder produces one frame per call and consumes at most chunk bytes.
type fakeDecoder struct {
	desc StreamDescriptor

	chunk   int  // bytes consumed per call, 0 = all
	delay   int  // frames held back until flush
	stall   bool // consume nothing, return nothing
	endless bool // keep returning frames while flushing
	err     error

	// Video output geometry, switched to next after switchAfter frames.
	geometry    Geometry
	next        Geometry
	switchAfter int

	// Audio output.
	format  AudioFormat
	samples int

	held   int
	frames int
	closed bool
	stats  DecoderStats
}

func (d *fakeDecoder) Decode(data []byte) (DecodeResult, error) {
	if d.err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, d.err
	}
	if len(data) == 0 {
		if d.endless || d.held > 0 {
			if d.held > 0 {
				d.held--
			}
			return d.frame(0), nil
		}
		return DecodeResult{}, nil
	}
	if d.stall {
		return DecodeResult{}, nil
	}
	n := len(data)
	if d.chunk > 0 && d.chunk < n {
		n = d.chunk
	}
	d.stats.BytesDecoded += uint64(n)
	if d.held < d.delay {
		d.held++
		return DecodeResult{Consumed: n}, nil
	}
	return d.frame(n), nil
}

func (d *fakeDecoder) frame(consumed int) DecodeResult {
	d.frames++
	d.stats.FramesDecoded++
	res := DecodeResult{Consumed: consumed}
	if d.desc.MediaType == MediaTypeVideo {
		g := d.geometry
		if d.switchAfter > 0 && d.frames > d.switchAfter {
			g = d.next
		}
		res.Video = paddedFrame(g, 16, byte(d.frames))
		return res
	}
	res.Audio = audioFrame(d.format, d.desc.Channels, d.desc.SampleRate, d.samples, byte(d.frames))
	d.stats.SamplesDecoded += uint64(d.samples)
	return res
}

func (d *fakeDecoder) Provider() Provider  { return ProviderAuto }
func (d *fakeDecoder) Stats() DecoderStats { return d.stats }

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

// paddedFrame returns a frame whose rows are followed by pad garbage bytes.
func paddedFrame(g Geometry, pad int, fill byte) *VideoFrame {
	f := &VideoFrame{Width: g.Width, Height: g.Height, Format: g.Format}
	for i := 0; i < g.Format.PlaneCount(); i++ {
		rowBytes, rows := g.Format.PlaneDimensions(i, g.Width, g.Height)
		stride := rowBytes + pad
		plane := make([]byte, stride*rows)
		for y := 0; y < rows; y++ {
			for x := 0; x < stride; x++ {
				if x < rowBytes {
					plane[y*stride+x] = fill
				} else {
					plane[y*stride+x] = 0xEE
				}
			}
		}
		f.Data = append(f.Data, plane)
		f.Stride = append(f.Stride, stride)
	}
	return f
}

func audioFrame(format AudioFormat, channels, rate, samples int, fill byte) *AudioSamples {
	s := &AudioSamples{SampleRate: rate, Channels: channels, SampleCount: samples, Format: format}
	bps := format.BytesPerSample()
	planes, perPlane := 1, samples*bps*channels
	if format.IsPlanar() {
		planes, perPlane = channels, samples*bps
	}
	for i := 0; i < planes; i++ {
		p := make([]byte, perPlane)
		for j := range p {
			p[j] = fill + byte(i)
		}
		s.Data = append(s.Data, p)
	}
	return s
}

// fakeFinder hands out decoders made by build and records them.
type fakeFinder struct {
	build    func(desc StreamDescriptor) *fakeDecoder
	decoders map[int]*fakeDecoder
	err      error
}

func (f *fakeFinder) find(desc StreamDescriptor, _ DecoderConfig) (Decoder, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := f.build(desc)
	d.desc = desc
	if f.decoders == nil {
		f.decoders = make(map[int]*fakeDecoder)
	}
	f.decoders[desc.Index] = d
	return d, nil
}

// fakeSource replays a fixed packet list.
type fakeSource struct {
	streams []StreamDescriptor
	packets []*Packet
	next    int
	readErr error
	closed  bool
}

func (s *fakeSource) Format() ContainerFormat     { return FormatMP4 }
func (s *fakeSource) Streams() []StreamDescriptor { return s.streams }

func (s *fakeSource) ReadPacket() (*Packet, error) {
	if s.next >= len(s.packets) {
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	}
	p := s.packets[s.next]
	s.next++
	return p, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

var (
	testVideoDesc = StreamDescriptor{
		Index: 0, MediaType: MediaTypeVideo, VideoCodec: VideoCodecH264,
		Width: 320, Height: 240, PixelFormat: PixelFormatI420, ClockRate: 90000,
	}
	testAudioDesc = StreamDescriptor{
		Index: 1, MediaType: MediaTypeAudio, AudioCodec: AudioCodecOpus,
		SampleRate: 48000, Channels: 1, SampleFormat: AudioFormatS16, ClockRate: 48000,
	}
)

// interleaved returns n packets alternating between the test video and
// audio streams, each size bytes long.
func interleaved(n, size int) []*Packet {
	pkts := make([]*Packet, 0, n)
	for i := 0; i < n; i++ {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i)
		}
		pkts = append(pkts, NewPacket(i%2, data, int64(i), int64(i)))
	}
	return pkts
}

func openTestSession(t *testing.T, d *fakeDecoder, desc StreamDescriptor, ownership FrameOwnership) *CodecSession {
	t.Helper()
	finder := &fakeFinder{build: func(StreamDescriptor) *fakeDecoder { return d }}
	s, err := OpenSession(desc, SessionConfig{Ownership: ownership, Finder: finder.find})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	return s
}

// decodeFunc adapts a function to the Decoder interface.
type decodeFunc func(data []byte) (DecodeResult, error)

func (f decodeFunc) Decode(data []byte) (DecodeResult, error) { return f(data) }
func (f decodeFunc) Provider() Provider                       { return ProviderAuto }
func (f decodeFunc) Stats() DecoderStats                      { return DecoderStats{} }
func (f decodeFunc) Close() error                             { return nil }

func openFuncSession(t *testing.T, desc StreamDescriptor, ownership FrameOwnership, f decodeFunc) *CodecSession {
	t.Helper()
	s, err := OpenSession(desc, SessionConfig{
		Ownership: ownership,
		Finder:    func(StreamDescriptor, DecoderConfig) (Decoder, error) { return f, nil },
	})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	return s
}
