//go:build (darwin || linux) && !novpx

// VP8/VP9 decoding via libmedia_vpx (libvpx) using purego.

package media

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

var (
	mediaVPXOnce    sync.Once
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// mediaVPXDecodeResult matches media_vpx_decode_result_t in C
// This struct must be heap-allocated for purego to work correctly on arm64
type mediaVPXDecodeResult struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		_, mediaVPXInitErr = openNativeLib("libmedia_vpx", "MEDIA_VPX_LIB_PATH", func(h uintptr) error {
			return registerSymbols(h, map[string]any{
				"media_vpx_decoder_create":    &mediaVPXDecoderCreate,
				"media_vpx_decoder_decode_v2": &mediaVPXDecoderDecodeV2,
				"media_vpx_decoder_destroy":   &mediaVPXDecoderDestroy,
				"media_vpx_get_error":         &mediaVPXGetError,
				"media_vpx_codec_available":   &mediaVPXCodecAvailable,
			})
		})
	})
	return mediaVPXInitErr
}

// IsVP8Available checks if the VP8 decoder is available.
func IsVP8Available() bool {
	if err := loadMediaVPX(); err != nil {
		return false
	}
	return mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
}

// IsVP9Available checks if the VP9 decoder is available.
func IsVP9Available() bool {
	if err := loadMediaVPX(); err != nil {
		return false
	}
	return mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
}

func getVPXError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// VPXDecoder decodes VP8 or VP9 frames, one compressed frame per call.
type VPXDecoder struct {
	config DecoderConfig
	codec  VideoCodec

	handle    uint64
	outputBuf *VideoFrameBuffer

	// The struct layout must match media_vpx_decode_result_t in C exactly
	decodeResult *mediaVPXDecodeResult

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewVP8Decoder creates a new VP8 decoder.
func NewVP8Decoder(config DecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP8)
}

// NewVP9Decoder creates a new VP9 decoder.
func NewVP9Decoder(config DecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP9)
}

func newVPXDecoder(config DecoderConfig, codec VideoCodec) (*VPXDecoder, error) {
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", codec, err)
	}

	var codecType int32
	switch codec {
	case VideoCodecVP8:
		codecType = mediaVPXCodecVP8
	case VideoCodecVP9:
		codecType = mediaVPXCodecVP9
	default:
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, codec)
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}

	handle := mediaVPXDecoderCreate(codecType, threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", codec, getVPXError())
	}

	return &VPXDecoder{
		config:       config,
		codec:        codec,
		handle:       handle,
		decodeResult: &mediaVPXDecodeResult{},
	}, nil
}

// Decode implements Decoder.
func (d *VPXDecoder) Decode(data []byte) (DecodeResult, error) {
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
	result := mediaVPXDecoderDecodeV2(d.handle, dataPtr, int32(len(data)), uintptr(unsafe.Pointer(out)))

	runtime.KeepAlive(data)
	runtime.KeepAlive(out)

	if result < 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("%s decode: %s", d.codec, getVPXError())
	}

	res := DecodeResult{Consumed: len(data)}
	d.statsMu.Lock()
	d.stats.BytesDecoded += uint64(len(data))
	d.statsMu.Unlock()

	if result == 0 {
		return res, nil
	}

	w, h := int(out.Width), int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, w, h)
	}

	if d.outputBuf == nil || d.outputBuf.Width != w || d.outputBuf.Height != h {
		d.outputBuf = NewVideoFrameBuffer(w, h, PixelFormatI420)
	}
	if err := copyI420FromC(d.outputBuf, uintptr(out.YPtr), uintptr(out.UPtr), uintptr(out.VPtr), int(out.YStride), int(out.UVStride)); err != nil {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return DecodeResult{}, fmt.Errorf("%s decode: %w", d.codec, err)
	}

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	if len(data) > 0 && isVPXKeyframe(d.codec, data) {
		d.stats.KeyframesDecoded++
	}
	d.statsMu.Unlock()

	frame := d.outputBuf.ToVideoFrame()
	res.Video = &frame
	return res, nil
}

// isVPXKeyframe inspects the uncompressed header of a VP8 or VP9 frame.
func isVPXKeyframe(codec VideoCodec, data []byte) bool {
	switch codec {
	case VideoCodecVP8:
		return data[0]&0x01 == 0
	case VideoCodecVP9:
		// frame_marker(2) profile(2) [reserved] show_existing(1) frame_type(1)
		b := data[0]
		profile := (b>>5)&1 | (b>>4)&2
		shift := uint(3)
		if profile == 3 {
			shift = 2
		}
		if (b>>shift)&1 == 1 {
			return false
		}
		return (b>>(shift-1))&1 == 0
	}
	return false
}

// Provider implements Decoder.
func (d *VPXDecoder) Provider() Provider {
	return ProviderLibvpx
}

// Stats implements Decoder.
func (d *VPXDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *VPXDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		mediaVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

func init() {
	if IsVP8Available() {
		setProviderAvailable(ProviderLibvpx)
		registerVideoDecoder(VideoCodecVP8, ProviderLibvpx, func(config DecoderConfig) (Decoder, error) {
			return NewVP8Decoder(config)
		})
	}
	if IsVP9Available() {
		setProviderAvailable(ProviderLibvpx)
		registerVideoDecoder(VideoCodecVP9, ProviderLibvpx, func(config DecoderConfig) (Decoder, error) {
			return NewVP9Decoder(config)
		})
	}
}
