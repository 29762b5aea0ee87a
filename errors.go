package media

import (
	"errors"
	"fmt"
)

// Pipeline errors. All fatal conditions wrap one of these; use errors.Is.
var (
	ErrSetup                   = errors.New("setup failed")
	ErrUnknownFormat           = errors.New("unknown container format")
	ErrStreamNotFound          = errors.New("stream not found")
	ErrNoDecoderFound          = errors.New("no decoder found")
	ErrDecode                  = errors.New("decode error")
	ErrNoProgress              = errors.New("decoder made no progress")
	ErrGeometryChanged         = errors.New("video geometry changed")
	ErrFlushDidNotTerminate    = errors.New("flush did not terminate")
	ErrUnsupportedSampleFormat = errors.New("unsupported sample format")
	ErrNoFrames                = errors.New("no frames decoded")
	ErrSessionClosed           = errors.New("session closed")

	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
)

// GeometryChangedError reports a decoded frame whose geometry differs from
// the geometry recorded when the session was opened.
type GeometryChangedError struct {
	Old Geometry
	New Geometry
}

func (e *GeometryChangedError) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", ErrGeometryChanged, e.Old, e.New)
}

func (e *GeometryChangedError) Unwrap() error { return ErrGeometryChanged }
