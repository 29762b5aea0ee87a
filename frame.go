// Core frame and sample types used across the media package.
package media

import "fmt"

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// Name returns the pixel format name understood by ffplay's -pix_fmt option.
func (p PixelFormat) Name() string {
	switch p {
	case PixelFormatI420:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatRGBA32:
		return "rgba"
	case PixelFormatBGRA32:
		return "bgra"
	default:
		return ""
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB24, PixelFormatRGBA32, PixelFormatBGRA32:
		return 1 // Packed
	default:
		return 0
	}
}

// PlaneDimensions returns the visible row width in bytes and the row count of
// a plane for a width x height image. Chroma planes of 4:2:0 formats round up.
func (p PixelFormat) PlaneDimensions(plane, width, height int) (rowBytes, rows int) {
	if plane < 0 || plane >= p.PlaneCount() {
		return 0, 0
	}
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2
	switch p {
	case PixelFormatI420:
		if plane == 0 {
			return width, height
		}
		return chromaW, chromaH
	case PixelFormatNV12:
		if plane == 0 {
			return width, height
		}
		return chromaW * 2, chromaH
	case PixelFormatRGB24:
		return width * 3, height
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return width * 4, height
	}
	return 0, 0
}

// FrameSize returns the size in bytes of a tightly packed image.
func (p PixelFormat) FrameSize(width, height int) int {
	total := 0
	for i := 0; i < p.PlaneCount(); i++ {
		rowBytes, rows := p.PlaneDimensions(i, width, height)
		total += rowBytes * rows
	}
	return total
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	return PixelFormatI420.FrameSize(width, height)
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16  AudioFormat = iota // Signed 16-bit PCM
	AudioFormatF32                     // 32-bit float
	AudioFormatU8                      // Unsigned 8-bit PCM
	AudioFormatS32                     // Signed 32-bit PCM
	AudioFormatF64                     // 64-bit float
	AudioFormatS64                     // Signed 64-bit PCM
	AudioFormatS16P                    // Planar signed 16-bit
	AudioFormatF32P                    // Planar 32-bit float
	AudioFormatU8P                     // Planar unsigned 8-bit
	AudioFormatS32P                    // Planar signed 32-bit
	AudioFormatF64P                    // Planar 64-bit float
	AudioFormatS64P                    // Planar signed 64-bit
)

var audioFormatNames = map[AudioFormat][2]string{
	AudioFormatS16:  {"S16", "s16"},
	AudioFormatF32:  {"F32", "flt"},
	AudioFormatU8:   {"U8", "u8"},
	AudioFormatS32:  {"S32", "s32"},
	AudioFormatF64:  {"F64", "dbl"},
	AudioFormatS64:  {"S64", "s64"},
	AudioFormatS16P: {"S16P", "s16p"},
	AudioFormatF32P: {"F32P", "fltp"},
	AudioFormatU8P:  {"U8P", "u8p"},
	AudioFormatS32P: {"S32P", "s32p"},
	AudioFormatF64P: {"F64P", "dblp"},
	AudioFormatS64P: {"S64P", "s64p"},
}

func (a AudioFormat) String() string {
	if n, ok := audioFormatNames[a]; ok {
		return n[0]
	}
	return "Unknown"
}

// Name returns the FFmpeg sample format name (s16, fltp, ...).
func (a AudioFormat) Name() string {
	if n, ok := audioFormatNames[a]; ok {
		return n[1]
	}
	return "unknown"
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a.Packed() {
	case AudioFormatU8:
		return 1
	case AudioFormatS16:
		return 2
	case AudioFormatS32, AudioFormatF32:
		return 4
	case AudioFormatS64, AudioFormatF64:
		return 8
	default:
		return 0
	}
}

// IsPlanar reports whether each channel is stored in its own plane.
func (a AudioFormat) IsPlanar() bool {
	return a >= AudioFormatS16P && a <= AudioFormatS64P
}

// Packed returns the interleaved equivalent of a planar format.
// Packed formats are returned unchanged.
func (a AudioFormat) Packed() AudioFormat {
	if !a.IsPlanar() {
		return a
	}
	return a - AudioFormatS16P
}

// Planar returns the planar equivalent of a packed format.
func (a AudioFormat) Planar() AudioFormat {
	if a.IsPlanar() || a < AudioFormatS16 || a > AudioFormatS64 {
		return a
	}
	return a + AudioFormatS16P
}

// VideoFrame represents a raw video frame.
// The Data slices may point to memory owned by a decoder; see FrameOwnership.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-4 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Presentation timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// Geometry returns the frame's width, height and pixel format.
func (f *VideoFrame) Geometry() Geometry {
	return Geometry{Width: f.Width, Height: f.Height, Format: f.Format}
}

// Geometry is the (width, height, pixel format) triple a video session expects.
type Geometry struct {
	Width  int
	Height int
	Format PixelFormat
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Format.Name())
}

// AudioSamples represents raw audio samples.
// Packed formats carry a single plane; planar formats carry one plane per channel.
type AudioSamples struct {
	Data        [][]byte    // Sample planes
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Presentation timestamp in nanoseconds
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		Data:        make([][]byte, len(s.Data)),
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		Timestamp:   s.Timestamp,
	}
	for i, plane := range s.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// FrameType indicates whether a frame is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // I-frame, can be decoded independently
	FrameTypeDelta             // P/B-frame, requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// EncodedFrame holds one reassembled access unit from an RTP depacketizer.
type EncodedFrame struct {
	Data            []byte    // Encoded bitstream data
	FrameType       FrameType // Key or delta frame
	Timestamp       uint32    // RTP timestamp
	TemporalLayerID uint8     // SVC temporal layer (0 = base)
	SpatialLayerID  uint8     // SVC spatial layer (0 = base)
}

// IsKeyframe returns true if this is a keyframe.
func (f *EncodedFrame) IsKeyframe() bool {
	return f.FrameType == FrameTypeKey
}
