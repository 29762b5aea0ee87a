package media

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// FrameObserver is called for every frame after it was written. In shared
// ownership mode the frame must not be retained after the call returns.
type FrameObserver struct {
	Video func(stream int, f *VideoFrame, cached bool)
	Audio func(stream int, s *AudioSamples, cached bool)
}

// LoopStats counts the work of a DecodeLoop.
type LoopStats struct {
	PacketsRead      uint64
	PacketsDiscarded uint64 // packets of streams without a session
	DecodeCalls      uint64
	BytesConsumed    uint64
	VideoFrames      uint64
	AudioFrames      uint64
	CachedFrames     uint64 // frames returned while flushing
}

type route struct {
	session *CodecSession
	video   *VideoSink
	audio   *AudioSink
}

// DecodeLoop drives packets through their stream's session and hands the
// frames to that stream's sink.
type DecodeLoop struct {
	routes   map[int]*route
	order    []int
	observer FrameObserver
	log      *slog.Logger
	stats    LoopStats
}

// NewDecodeLoop returns a loop without routes.
func NewDecodeLoop(observer FrameObserver, logger *slog.Logger) *DecodeLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecodeLoop{
		routes:   make(map[int]*route),
		observer: observer,
		log:      logger.With("component", "decode_loop"),
	}
}

// AddVideo routes packets of the session's stream to a video sink.
func (l *DecodeLoop) AddVideo(s *CodecSession, sink *VideoSink) {
	l.add(&route{session: s, video: sink})
}

// AddAudio routes packets of the session's stream to an audio sink.
func (l *DecodeLoop) AddAudio(s *CodecSession, sink *AudioSink) {
	l.add(&route{session: s, audio: sink})
}

func (l *DecodeLoop) add(r *route) {
	idx := r.session.Descriptor().Index
	if _, ok := l.routes[idx]; !ok {
		l.order = append(l.order, idx)
	}
	l.routes[idx] = r
}

// Sessions returns the routed sessions in the order they were added.
func (l *DecodeLoop) Sessions() []*CodecSession {
	out := make([]*CodecSession, 0, len(l.order))
	for _, idx := range l.order {
		out = append(out, l.routes[idx].session)
	}
	return out
}

// Stats returns the loop counters.
func (l *DecodeLoop) Stats() LoopStats { return l.stats }

// DecodePacket feeds pkt to its session until every byte is consumed.
// Packets of streams without a session are dropped untouched.
func (l *DecodeLoop) DecodePacket(pkt *Packet) error {
	l.stats.PacketsRead++
	r, ok := l.routes[pkt.StreamIndex]
	if !ok {
		l.stats.PacketsDiscarded++
		return nil
	}

	for pkt.Remaining() > 0 {
		res, err := r.session.Feed(pkt.Current())
		l.stats.DecodeCalls++
		if err != nil {
			return fmt.Errorf("decode packet of stream #%d at byte %d: %w", pkt.StreamIndex, pkt.Offset(), err)
		}
		if res.Consumed == 0 && !res.HasFrame() {
			r.session.fail()
			return fmt.Errorf("%w: %w: stream #%d stalled at byte %d of %d",
				ErrDecode, ErrNoProgress, pkt.StreamIndex, pkt.Offset(), len(pkt.Data))
		}
		if err := pkt.Advance(res.Consumed); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		l.stats.BytesConsumed += uint64(res.Consumed)
		if res.HasFrame() {
			stampFrame(res, r.session.Descriptor(), pkt.PTS)
			if err := l.deliver(r, res, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// stampFrame sets the presentation time of a frame the decoder left
// unstamped from the PTS of the packet that produced it.
func stampFrame(res DecodeResult, desc StreamDescriptor, pts int64) {
	sec := desc.Seconds(pts)
	if math.IsNaN(sec) {
		return
	}
	ns := int64(sec * float64(time.Second))
	if res.Video != nil && res.Video.Timestamp == 0 {
		res.Video.Timestamp = ns
	}
	if res.Audio != nil && res.Audio.Timestamp == 0 {
		res.Audio.Timestamp = ns
	}
}

// Deliver writes a frame produced by the session of a stream. The flush
// controller uses it with cached set.
func (l *DecodeLoop) Deliver(stream int, res DecodeResult, cached bool) error {
	r, ok := l.routes[stream]
	if !ok {
		return fmt.Errorf("%w: no route for stream #%d", ErrStreamNotFound, stream)
	}
	return l.deliver(r, res, cached)
}

func (l *DecodeLoop) deliver(r *route, res DecodeResult, cached bool) error {
	idx := r.session.Descriptor().Index
	if cached {
		l.stats.CachedFrames++
	}
	switch {
	case res.Video != nil && r.video != nil:
		if err := r.video.WriteVideoFrame(res.Video); err != nil {
			r.session.fail()
			return fmt.Errorf("stream #%d: %w", idx, err)
		}
		l.stats.VideoFrames++
		l.log.Debug("video_frame", "n", l.stats.VideoFrames, "coded_n", r.session.Frames(),
			"pts", time.Duration(res.Video.Timestamp), "size", res.Video.Geometry().String(), "cached", cached)
		if l.observer.Video != nil {
			l.observer.Video(idx, res.Video, cached)
		}
	case res.Audio != nil && r.audio != nil:
		if err := r.audio.WriteAudioFrame(res.Audio); err != nil {
			r.session.fail()
			return fmt.Errorf("stream #%d: %w", idx, err)
		}
		l.stats.AudioFrames++
		l.log.Debug("audio_frame", "n", l.stats.AudioFrames, "nb_samples", res.Audio.SampleCount,
			"pts", time.Duration(res.Audio.Timestamp), "cached", cached)
		if l.observer.Audio != nil {
			l.observer.Audio(idx, res.Audio, cached)
		}
	default:
		return fmt.Errorf("%w: stream #%d produced a frame its sink cannot take", ErrDecode, idx)
	}
	return nil
}
