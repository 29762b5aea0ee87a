//go:build (darwin || linux) && !noh264

// H.264 decoding via libmedia_h264 (OpenH264) using purego.

package media

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

var (
	mediaH264Once    sync.Once
	mediaH264InitErr error
)

// libmedia_h264 function pointers
var (
	mediaH264DecoderCreate   func(threads int32) uint64
	mediaH264DecoderDecode   func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderGetStats func(decoder uint64, framesDecoded, keyframesDecoded, bytesDecoded, corruptedFrames uintptr)
	mediaH264DecoderDestroy  func(decoder uint64)

	mediaH264GetError         func() uintptr
	mediaH264DecoderAvailable func() int32
)

// mediaH264DecodeResult is a heap-allocated struct for decoder output parameters.
// This struct must be heap-allocated for purego to work correctly on arm64.
// Using local stack variables for output parameters can fail due to GC moving
// the stack during the C call.
type mediaH264DecodeResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

func loadMediaH264() error {
	mediaH264Once.Do(func() {
		_, mediaH264InitErr = openNativeLib("libmedia_h264", "MEDIA_H264_LIB_PATH", func(h uintptr) error {
			return registerSymbols(h, map[string]any{
				"media_h264_decoder_create":    &mediaH264DecoderCreate,
				"media_h264_decoder_decode":    &mediaH264DecoderDecode,
				"media_h264_decoder_get_stats": &mediaH264DecoderGetStats,
				"media_h264_decoder_destroy":   &mediaH264DecoderDestroy,
				"media_h264_get_error":         &mediaH264GetError,
				"media_h264_decoder_available": &mediaH264DecoderAvailable,
			})
		})
	})
	return mediaH264InitErr
}

// IsH264DecoderAvailable checks if libmedia_h264 loaded with a decoder.
func IsH264DecoderAvailable() bool {
	if err := loadMediaH264(); err != nil {
		return false
	}
	return mediaH264DecoderAvailable() != 0
}

func getH264Error() string {
	ptr := mediaH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// H264Decoder decodes Annex-B access units. Each call consumes the whole
// input; empty input drains frames held for reordering.
type H264Decoder struct {
	config DecoderConfig

	handle    uint64
	outputBuf *VideoFrameBuffer

	// Persistent output buffer for purego workaround on arm64
	decodeResult *mediaH264DecodeResult

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewH264Decoder creates a new H.264 decoder.
func NewH264Decoder(config DecoderConfig) (*H264Decoder, error) {
	if err := loadMediaH264(); err != nil {
		return nil, fmt.Errorf("H.264 decoder not available: %w", err)
	}
	if mediaH264DecoderAvailable() == 0 {
		return nil, errors.New("H.264 decoder not available")
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}

	handle := mediaH264DecoderCreate(threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create H.264 decoder: %s", getH264Error())
	}

	return &H264Decoder{
		config:       config,
		handle:       handle,
		decodeResult: &mediaH264DecodeResult{},
	}, nil
}

// Decode implements Decoder.
func (d *H264Decoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return DecodeResult{}, ErrSessionClosed
	}

	var dataPtr uintptr
	if len(data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&data[0]))
	}

	out := d.decodeResult
	result := mediaH264DecoderDecode(
		d.handle,
		dataPtr,
		int32(len(data)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(data)
	runtime.KeepAlive(out)

	res := DecodeResult{Consumed: len(data)}
	if result < 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("h264 decode: %s", getH264Error())
	}

	d.statsMu.Lock()
	d.stats.BytesDecoded += uint64(len(data))
	d.statsMu.Unlock()

	if result == 0 {
		return res, nil // buffering
	}

	w, h := int(out.Width), int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("h264 decode: invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, w, h)
	}
	if d.outputBuf == nil || d.outputBuf.Width != w || d.outputBuf.Height != h {
		d.outputBuf = NewVideoFrameBuffer(w, h, PixelFormatI420)
	}
	if err := copyI420FromC(d.outputBuf, out.YPtr, out.UPtr, out.VPtr, int(out.YStride), int(out.UVStride)); err != nil {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("h264 decode: %w", err)
	}

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.statsMu.Unlock()

	frame := d.outputBuf.ToVideoFrame()
	res.Video = &frame
	return res, nil
}

// Provider implements Decoder.
func (d *H264Decoder) Provider() Provider {
	return ProviderOpenH264
}

// Stats implements Decoder.
func (d *H264Decoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *H264Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		mediaH264DecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

func init() {
	if !IsH264DecoderAvailable() {
		return
	}
	setProviderAvailable(ProviderOpenH264)
	registerVideoDecoder(VideoCodecH264, ProviderOpenH264, func(config DecoderConfig) (Decoder, error) {
		return NewH264Decoder(config)
	})
}
