// Package media demultiplexes container files and decodes their best video
// and audio streams into raw planar video and PCM audio.
//
// Key pieces include:
//   - ContainerSource demuxers for MP4, FLV, MPEG-TS, Ogg, IVF, rtpdump,
//     raw H.264, ADTS and MP3, plus a single-publisher RTMP ingest
//   - StreamSelector ranking of same-type streams
//   - CodecSession wrapping a Decoder with geometry and frame ownership rules
//   - DecodeLoop, FlushController and the VideoSink/AudioSink writers
//   - Pipeline, which wires them together for one input and two outputs
//
// # Architecture
//
//	ContainerSource -> Packet -> DecodeLoop -> CodecSession -> Decoder
//	                                    \-> VideoSink / AudioSink -> io.Writer
//
// At end of input the FlushController sends empty packets to every open
// session until no more cached frames come out.
//
// # Decoders
//
// Pure Go decoders are always registered: G.711 (zaf/g711), AAC-LC
// (go-aac), MPEG Layer III (go-mp3) and VP8 keyframes (x/image/vp8).
// Native decoders are loaded with purego at init when their libraries are
// found: OpenH264 (libmedia_h264), libvpx (libmedia_vpx) and libopus
// (libstream_opus). Set MEDIA_SDK_LIB_PATH to a directory holding them, or
// point MEDIA_H264_LIB_PATH, MEDIA_VPX_LIB_PATH or STREAM_OPUS_LIB_PATH at a
// single file.
//
// # Build Tags
//
//   - novpx, noopus, noh264: leave out a native decoder binding
package media
