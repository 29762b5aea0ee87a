package media

import (
	"fmt"
	"log/slog"
)

// DefaultFlushLimit bounds the frames drained from one session.
const DefaultFlushLimit = 1024

// FlushController drains the frames decoders hold back once the input is
// exhausted.
type FlushController struct {
	loop  *DecodeLoop
	limit int
	log   *slog.Logger
}

// NewFlushController drains into the sinks of loop. A limit of zero or less
// uses DefaultFlushLimit.
func NewFlushController(loop *DecodeLoop, limit int, logger *slog.Logger) *FlushController {
	if limit <= 0 {
		limit = DefaultFlushLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushController{loop: loop, limit: limit, log: logger.With("component", "flush")}
}

// Drain flushes each session in turn until it returns no frame, then closes
// it. A session still producing frames after the limit fails with
// ErrFlushDidNotTerminate.
func (f *FlushController) Drain(sessions ...*CodecSession) error {
	for _, s := range sessions {
		if s == nil || s.State() == SessionClosed {
			continue
		}
		n, err := f.drain(s)
		if err != nil {
			return err
		}
		f.log.Debug("session drained", "stream", s.Descriptor().Index, "frames", n)
		if err := s.Close(); err != nil {
			return fmt.Errorf("close stream #%d: %w", s.Descriptor().Index, err)
		}
	}
	return nil
}

func (f *FlushController) drain(s *CodecSession) (int, error) {
	idx := s.Descriptor().Index
	for n := 0; ; n++ {
		res, err := s.FeedFlush()
		if err != nil {
			return n, fmt.Errorf("flush stream #%d: %w", idx, err)
		}
		if !res.HasFrame() {
			return n, nil
		}
		if n == f.limit {
			s.fail()
			return n, fmt.Errorf("%w: stream #%d still returning frames after %d", ErrFlushDidNotTerminate, idx, n)
		}
		if err := f.loop.Deliver(idx, res, true); err != nil {
			return n, err
		}
	}
}
