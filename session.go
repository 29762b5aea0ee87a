package media

import (
	"errors"
	"fmt"
	"log/slog"
)

// SessionState is the lifecycle state of a CodecSession.
type SessionState int

const (
	SessionClosed   SessionState = iota // no decoder
	SessionOpen                         // accepting packets
	SessionDraining                     // end of stream signaled, returning buffered frames
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionDraining:
		return "draining"
	default:
		return "closed"
	}
}

// FrameOwnership selects who owns the frames a session returns. It is a
// pipeline-wide setting chosen at startup.
type FrameOwnership int

const (
	// FrameOwnershipShared returns the decoder's own buffers. A frame is
	// valid only until the next Feed, FeedFlush or Close.
	FrameOwnershipShared FrameOwnership = iota

	// FrameOwnershipRefcounted returns an independent copy of every frame,
	// safe to retain.
	FrameOwnershipRefcounted
)

func (o FrameOwnership) String() string {
	if o == FrameOwnershipRefcounted {
		return "refcounted"
	}
	return "shared"
}

// SessionConfig configures OpenSession.
type SessionConfig struct {
	Ownership FrameOwnership

	// Provider and Threads override the defaults for the decoder. Stream
	// parameters are taken from the descriptor.
	Provider        Provider
	Threads         int
	MaxFrameSamples int

	// Finder resolves the decoder. Nil uses FindDecoder.
	Finder DecoderFinder

	Logger *slog.Logger
}

// CodecSession binds one stream to one decoder instance.
//
// A video session records the geometry expected of every frame. When the
// descriptor does not carry dimensions, the first decoded frame sets it.
type CodecSession struct {
	desc      StreamDescriptor
	decoder   Decoder
	state     SessionState
	ownership FrameOwnership
	log       *slog.Logger

	geometry    Geometry
	hasGeometry bool

	frames    int // frames returned so far
	lastStats DecoderStats
}

// OpenSession finds a decoder for desc and opens a session on it. It fails
// with ErrNoDecoderFound when no decoder handles the stream's codec.
func OpenSession(desc StreamDescriptor, cfg SessionConfig) (*CodecSession, error) {
	switch desc.MediaType {
	case MediaTypeVideo, MediaTypeAudio:
	default:
		return nil, fmt.Errorf("%w: stream #%d is %s", ErrNoDecoderFound, desc.Index, desc.MediaType)
	}

	find := cfg.Finder
	if find == nil {
		find = FindDecoder
	}
	dcfg := DecoderConfigFor(desc)
	dcfg.Provider = cfg.Provider
	dcfg.Threads = cfg.Threads
	dcfg.MaxFrameSamples = cfg.MaxFrameSamples

	dec, err := find(desc, dcfg)
	if err != nil {
		if !errors.Is(err, ErrNoDecoderFound) {
			err = fmt.Errorf("%w: %w", ErrNoDecoderFound, err)
		}
		return nil, fmt.Errorf("open %s decoder for stream #%d: %w", desc.CodecName(), desc.Index, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &CodecSession{
		desc:      desc,
		decoder:   dec,
		state:     SessionOpen,
		ownership: cfg.Ownership,
		log:       logger.With("stream", desc.Index, "codec", desc.CodecName()),
	}
	if desc.MediaType == MediaTypeVideo && desc.Width > 0 && desc.Height > 0 {
		s.geometry = Geometry{Width: desc.Width, Height: desc.Height, Format: desc.PixelFormat}
		s.hasGeometry = true
	}
	s.log.Debug("session opened", "provider", dec.Provider(), "ownership", cfg.Ownership)
	return s, nil
}

// Descriptor returns the stream the session decodes.
func (s *CodecSession) Descriptor() StreamDescriptor { return s.desc }

// State returns the session state.
func (s *CodecSession) State() SessionState { return s.state }

// Geometry returns the expected video geometry and whether it is known yet.
func (s *CodecSession) Geometry() (Geometry, bool) { return s.geometry, s.hasGeometry }

// Frames returns the number of frames the session has returned.
func (s *CodecSession) Frames() int { return s.frames }

// Stats returns the decoder statistics, kept after Close.
func (s *CodecSession) Stats() DecoderStats {
	if s.decoder != nil {
		return s.decoder.Stats()
	}
	return s.lastStats
}

// Feed hands data, the unconsumed bytes of one packet, to the decoder. The
// result reports how many bytes were consumed and at most one frame.
func (s *CodecSession) Feed(data []byte) (DecodeResult, error) {
	switch s.state {
	case SessionClosed:
		return DecodeResult{}, ErrSessionClosed
	case SessionDraining:
		return DecodeResult{}, fmt.Errorf("%w: feed after end of stream", ErrSessionClosed)
	}
	if len(data) == 0 {
		return DecodeResult{}, fmt.Errorf("%w: empty input on stream #%d", ErrDecode, s.desc.Index)
	}
	return s.decode(data)
}

// FeedFlush signals end of stream and returns one buffered frame, if any.
// The session stays in the draining state until closed.
func (s *CodecSession) FeedFlush() (DecodeResult, error) {
	if s.state == SessionClosed {
		return DecodeResult{}, ErrSessionClosed
	}
	s.state = SessionDraining
	return s.decode(nil)
}

func (s *CodecSession) decode(data []byte) (DecodeResult, error) {
	res, err := s.decoder.Decode(data)
	if err != nil {
		s.fail()
		return DecodeResult{}, fmt.Errorf("%w: stream #%d: %w", ErrDecode, s.desc.Index, err)
	}
	if res.Consumed < 0 || res.Consumed > len(data) {
		s.fail()
		return DecodeResult{}, fmt.Errorf("%w: stream #%d: decoder consumed %d of %d bytes", ErrDecode, s.desc.Index, res.Consumed, len(data))
	}

	switch s.desc.MediaType {
	case MediaTypeVideo:
		if res.Audio != nil {
			s.fail()
			return DecodeResult{}, fmt.Errorf("%w: stream #%d: audio frame from video decoder", ErrDecode, s.desc.Index)
		}
		if res.Video != nil {
			if err := s.checkGeometry(res.Video); err != nil {
				s.fail()
				return DecodeResult{}, err
			}
			if s.ownership == FrameOwnershipRefcounted {
				res.Video = res.Video.Clone()
			}
		}
	case MediaTypeAudio:
		if res.Video != nil {
			s.fail()
			return DecodeResult{}, fmt.Errorf("%w: stream #%d: video frame from audio decoder", ErrDecode, s.desc.Index)
		}
		if res.Audio != nil && s.ownership == FrameOwnershipRefcounted {
			res.Audio = res.Audio.Clone()
		}
	}
	if res.HasFrame() {
		s.frames++
	}
	return res, nil
}

func (s *CodecSession) checkGeometry(f *VideoFrame) error {
	g := f.Geometry()
	if !s.hasGeometry {
		s.geometry = g
		s.hasGeometry = true
		s.log.Debug("geometry from first frame", "geometry", g.String())
		return nil
	}
	if g != s.geometry {
		return &GeometryChangedError{Old: s.geometry, New: g}
	}
	return nil
}

// fail closes the session after an error, whatever its state.
func (s *CodecSession) fail() {
	if err := s.Close(); err != nil {
		s.log.Warn("close after error", "error", err)
	}
}

// Close releases the decoder. It is safe to call more than once.
func (s *CodecSession) Close() error {
	if s.decoder == nil {
		return nil
	}
	s.lastStats = s.decoder.Stats()
	err := s.decoder.Close()
	s.decoder = nil
	s.state = SessionClosed
	return err
}
