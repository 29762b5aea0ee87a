package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// PipelineState represents the state of a Pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Set up, not started
	PipelineStateRunning                      // Decoding packets
	PipelineStateDone                         // Input exhausted and decoders drained
	PipelineStateFailed                       // Stopped by an error
	PipelineStateClosed                       // Resources released
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateDone:
		return "done"
	case PipelineStateFailed:
		return "failed"
	case PipelineStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ContainerOpener opens an input. OpenContainer is the default.
type ContainerOpener func(ctx context.Context, path string, cfg ContainerConfig) (ContainerSource, error)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Input       string // file path or rtmp:// URL
	VideoOutput string
	AudioOutput string

	Config *Config // nil uses DefaultConfig
	Logger *slog.Logger

	Open     ContainerOpener // nil uses OpenContainer
	Finder   DecoderFinder   // nil uses FindDecoder
	Observer FrameObserver
}

// PipelineStats combines loop counters with decoder statistics.
type PipelineStats struct {
	Loop       LoopStats
	Video      DecoderStats
	Audio      DecoderStats
	VideoBytes int64
	AudioBytes int64
}

// PlaybackHints are the commands that play the raw outputs.
type PlaybackHints struct {
	Video string
	Audio string
}

// Pipeline demuxes one input, decodes its best video and audio streams and
// writes raw frames to two files. It owns every resource it opens; Close
// releases them on all paths.
type Pipeline struct {
	cfg    PipelineConfig
	config *Config
	log    *slog.Logger

	src       ContainerSource
	videoFile *os.File
	audioFile *os.File
	video     *CodecSession
	audio     *CodecSession
	videoSink *VideoSink
	audioSink *AudioSink
	loop      *DecodeLoop
	flush     *FlushController

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// NewPipeline opens the input, selects and opens both streams and creates
// the output files. Every failure wraps ErrSetup.
func NewPipeline(ctx context.Context, cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Input == "" || cfg.VideoOutput == "" || cfg.AudioOutput == "" {
		return nil, fmt.Errorf("%w: input, video output and audio output are required", ErrSetup)
	}
	if cfg.Config == nil {
		cfg.Config = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Open == nil {
		cfg.Open = OpenContainer
	}

	p := &Pipeline{cfg: cfg, config: cfg.Config, log: cfg.Logger}
	p.state.Store(int32(PipelineStateIdle))
	if err := p.setup(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	return p, nil
}

func (p *Pipeline) setup(ctx context.Context) error {
	cc, err := p.config.ContainerConfig(p.log)
	if err != nil {
		return err
	}
	p.src, err = p.cfg.Open(ctx, p.cfg.Input, cc)
	if err != nil {
		return fmt.Errorf("could not open source file %s: %w", p.cfg.Input, err)
	}
	p.log.Info(Describe(p.src, p.cfg.Input))

	p.video, err = p.openStream(MediaTypeVideo)
	if err != nil {
		return err
	}
	p.audio, err = p.openStream(MediaTypeAudio)
	if err != nil {
		return err
	}

	if p.videoFile, err = os.Create(p.cfg.VideoOutput); err != nil {
		return fmt.Errorf("could not open destination file: %w", err)
	}
	if p.audioFile, err = os.Create(p.cfg.AudioOutput); err != nil {
		return fmt.Errorf("could not open destination file: %w", err)
	}

	g, _ := p.video.Geometry()
	p.videoSink = NewVideoSink(p.videoFile, g)
	p.audioSink = NewAudioSink(p.audioFile, p.log.With("component", "audio_sink"))

	p.loop = NewDecodeLoop(p.cfg.Observer, p.log)
	p.loop.AddVideo(p.video, p.videoSink)
	p.loop.AddAudio(p.audio, p.audioSink)
	p.flush = NewFlushController(p.loop, p.config.FlushLimit, p.log)

	p.log.Info(fmt.Sprintf("Demuxing video from file '%s' into '%s'", p.cfg.Input, p.cfg.VideoOutput))
	p.log.Info(fmt.Sprintf("Demuxing audio from file '%s' into '%s'", p.cfg.Input, p.cfg.AudioOutput))
	return nil
}

func (p *Pipeline) openStream(mt MediaType) (*CodecSession, error) {
	idx, err := SelectSourceStream(p.src, mt)
	if err != nil {
		return nil, fmt.Errorf("could not find %s stream in input file '%s': %w", mt, p.cfg.Input, err)
	}
	desc := p.src.Streams()[idx]
	s, err := OpenSession(desc, SessionConfig{
		Ownership:       p.config.Ownership(),
		Provider:        p.config.ProviderFor(desc),
		Threads:         p.config.Decoder.Threads,
		MaxFrameSamples: p.config.Decoder.PCMFrameSamples,
		Finder:          p.cfg.Finder,
		Logger:          p.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s codec: %w", mt, err)
	}
	p.log.Info("stream selected", "type", mt, "stream", desc.String(), "mime", desc.MimeType())
	return s, nil
}

// Run decodes every packet of the input, then drains both decoders. It
// stops at the first error. Cancelling ctx stops reading between packets.
func (p *Pipeline) Run(ctx context.Context) error {
	if s := p.State(); s != PipelineStateIdle {
		return fmt.Errorf("pipeline is %s", s)
	}
	p.state.Store(int32(PipelineStateRunning))
	if err := p.run(ctx); err != nil {
		p.state.Store(int32(PipelineStateFailed))
		return err
	}
	p.state.Store(int32(PipelineStateDone))
	p.log.Info("Demuxing succeeded.")
	return nil
}

func (p *Pipeline) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := p.src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		if err := p.loop.DecodePacket(pkt); err != nil {
			return err
		}
	}
	return p.flush.Drain(p.video, p.audio)
}

// Finalize returns the playback hints for the outputs. The format of an
// output is only known once a frame was written to it, so an empty output
// yields ErrNoFrames and no hint. An audio sample format without a raw PCM
// name yields ErrUnsupportedSampleFormat. The outputs are complete either
// way.
func (p *Pipeline) Finalize() (PlaybackHints, error) {
	var hints PlaybackHints
	var errs []error

	if g := p.videoSink.Geometry(); g.Width > 0 && g.Height > 0 {
		hints.Video = fmt.Sprintf("ffplay -f rawvideo -pix_fmt %s -video_size %dx%d %s",
			g.Format.Name(), g.Width, g.Height, p.cfg.VideoOutput)
	} else {
		errs = append(errs, fmt.Errorf("video playback hint: %w", ErrNoFrames))
	}

	if out, ok := p.audioSink.OutputFormat(); !ok {
		errs = append(errs, fmt.Errorf("audio playback hint: %w", ErrNoFrames))
	} else if label, err := SampleFormatLabel(out.Format); err != nil {
		errs = append(errs, fmt.Errorf("audio playback hint: %w", err))
	} else {
		hints.Audio = fmt.Sprintf("ffplay -f %s -ac %d -ar %d %s", label, out.Channels, out.SampleRate, p.cfg.AudioOutput)
	}
	return hints, errors.Join(errs...)
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() PipelineStats {
	var st PipelineStats
	if p.loop != nil {
		st.Loop = p.loop.Stats()
	}
	if p.video != nil {
		st.Video = p.video.Stats()
	}
	if p.audio != nil {
		st.Audio = p.audio.Stats()
	}
	if p.videoSink != nil {
		st.VideoBytes = p.videoSink.BytesWritten()
	}
	if p.audioSink != nil {
		st.AudioBytes = p.audioSink.BytesWritten()
	}
	return st
}

// Close releases the decoders, the input and the output files.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, s := range []*CodecSession{p.video, p.audio} {
			if s != nil {
				errs = append(errs, s.Close())
			}
		}
		if p.src != nil {
			errs = append(errs, p.src.Close())
		}
		for _, f := range []*os.File{p.videoFile, p.audioFile} {
			if f != nil {
				errs = append(errs, f.Close())
			}
		}
		p.closeErr = errors.Join(errs...)
		p.state.Store(int32(PipelineStateClosed))
	})
	return p.closeErr
}
