package media

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/image/vp8"
)

// GoVP8Decoder decodes VP8 keyframes in pure Go. Inter frames cannot be
// reconstructed and fail with ErrCodecNotSupported; use the libvpx provider
// for streams that carry them.
type GoVP8Decoder struct {
	config DecoderConfig
	dec    *vp8.Decoder
	r      bytes.Reader

	stats  DecoderStats
	closed bool
	mu     sync.Mutex
}

// NewGoVP8Decoder creates a keyframe-only VP8 decoder.
func NewGoVP8Decoder(config DecoderConfig) (*GoVP8Decoder, error) {
	return &GoVP8Decoder{config: config, dec: vp8.NewDecoder()}, nil
}

// Decode implements Decoder.
func (d *GoVP8Decoder) Decode(data []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return DecodeResult{}, ErrSessionClosed
	}
	if len(data) == 0 {
		return DecodeResult{}, nil
	}

	if data[0]&0x01 != 0 {
		return DecodeResult{}, fmt.Errorf("%w: vp8 inter frame needs the libvpx provider", ErrCodecNotSupported)
	}

	res := DecodeResult{Consumed: len(data)}
	d.stats.BytesDecoded += uint64(len(data))
	d.r.Reset(data)
	d.dec.Init(&d.r, len(data))
	if _, err := d.dec.DecodeFrameHeader(); err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, fmt.Errorf("vp8 header: %w", err)
	}
	img, err := d.dec.DecodeFrame()
	if err != nil {
		d.stats.CorruptedFrames++
		return DecodeResult{}, fmt.Errorf("vp8 decode: %w", err)
	}
	d.stats.KeyframesDecoded++
	d.stats.FramesDecoded++
	b := img.Rect
	res.Video = &VideoFrame{
		Data:   [][]byte{img.Y, img.Cb, img.Cr},
		Stride: []int{img.YStride, img.CStride, img.CStride},
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: PixelFormatI420,
	}
	return res, nil
}

// Provider implements Decoder.
func (d *GoVP8Decoder) Provider() Provider {
	return ProviderGoVP8
}

// Stats implements Decoder.
func (d *GoVP8Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close implements Decoder.
func (d *GoVP8Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func init() {
	setProviderAvailable(ProviderGoVP8)
	registerVideoDecoder(VideoCodecVP8, ProviderGoVP8, func(config DecoderConfig) (Decoder, error) {
		return NewGoVP8Decoder(config)
	})
}
