package media

import (
	"math/bits"
	"testing"

	"github.com/yapingcat/gomedia/go-codec"
)

func TestVP8Resolution(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		w, h   int
		wantOK bool
	}{
		{"keyframe", vp8Frame(true, 640, 360), 640, 360, true},
		{"scale bits masked", vp8Frame(true, 0x4000|320, 0x8000|240), 320, 240, true},
		{"interframe", vp8Frame(false, 0, 0), 0, 0, false},
		{"short", []byte{0x00, 0x00, 0x00, 0x9D}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := vp8Resolution(tt.data)
			if w != tt.w || h != tt.h || ok != tt.wantOK {
				t.Errorf("vp8Resolution() = %d, %d, %v, want %d, %d, %v", w, h, ok, tt.w, tt.h, tt.wantOK)
			}
		})
	}
}

func TestFillStreamParams(t *testing.T) {
	tests := []struct {
		name string
		desc StreamDescriptor
		data []byte
		want StreamDescriptor
	}{
		{
			name: "vp8 geometry",
			desc: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8},
			data: vp8Frame(true, 176, 144),
			want: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8, Width: 176, Height: 144},
		},
		{
			name: "vp8 interframe leaves geometry unset",
			desc: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8},
			data: vp8Frame(false, 0, 0),
			want: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8},
		},
		{
			name: "known geometry kept",
			desc: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8, Width: 1, Height: 1},
			data: vp8Frame(true, 176, 144),
			want: StreamDescriptor{MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8, Width: 1, Height: 1},
		},
		{
			name: "mp3 header",
			desc: StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecMP3},
			data: mp3Frame(t, true),
			want: StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecMP3, SampleRate: 44100, Channels: 1},
		},
		{
			name: "aac from extradata",
			desc: StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecAAC, ExtraData: []byte{0x12, 0x10}},
			data: []byte{0x21, 0x00},
			want: StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecAAC, ExtraData: []byte{0x12, 0x10}, SampleRate: 44100, Channels: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.desc
			fillStreamParams(&got, tt.data)
			if got.Width != tt.want.Width || got.Height != tt.want.Height ||
				got.SampleRate != tt.want.SampleRate || got.Channels != tt.want.Channels {
				t.Errorf("fillStreamParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFillStreamParams_ADTS(t *testing.T) {
	desc := StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecAAC}
	fillStreamParams(&desc, adtsFrame(t, 10, 0))
	if desc.SampleRate != 44100 || desc.Channels != 2 {
		t.Errorf("fillStreamParams() = %d Hz %d ch, want 44100 Hz 2 ch", desc.SampleRate, desc.Channels)
	}
	if needsProbe(desc) {
		t.Error("needsProbe() = true after parameters were filled")
	}
}

func TestFillStreamDefaults(t *testing.T) {
	tests := []struct {
		name       string
		desc       StreamDescriptor
		wantRate   int
		wantCh     int
		wantFormat AudioFormat
	}{
		{"g711 bare", StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecG711A}, 8000, 1, AudioFormatS16},
		{"g711 wideband clock", StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecG711U, SampleRate: 16000, Channels: 2}, 16000, 2, AudioFormatS16},
		{"opus", StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecOpus, SampleRate: 44100, Channels: 2}, 48000, 2, AudioFormatS16},
		{"aac untouched", StreamDescriptor{MediaType: MediaTypeAudio, AudioCodec: AudioCodecAAC, SampleRate: 22050, Channels: 1, SampleFormat: AudioFormatS16P}, 22050, 1, AudioFormatS16P},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.desc
			fillStreamDefaults(&d)
			if d.SampleRate != tt.wantRate || d.Channels != tt.wantCh || d.SampleFormat != tt.wantFormat {
				t.Errorf("fillStreamDefaults() = %d Hz %d ch %v, want %d Hz %d ch %v",
					d.SampleRate, d.Channels, d.SampleFormat, tt.wantRate, tt.wantCh, tt.wantFormat)
			}
		})
	}
}

func TestProbedSource_ReplaysPackets(t *testing.T) {
	src := &fakeSource{
		streams: []StreamDescriptor{{Index: 0, MediaType: MediaTypeVideo, VideoCodec: VideoCodecVP8}},
		packets: []*Packet{
			NewPacket(0, vp8Frame(false, 0, 0), 0, 0),
			NewPacket(0, vp8Frame(true, 320, 180), 1, 1),
			NewPacket(0, vp8Frame(false, 0, 0), 2, 2),
		},
	}
	p, err := probeStreams(src, 8)
	if err != nil {
		t.Fatalf("probeStreams() error = %v", err)
	}
	if s := p.Streams()[0]; s.Width != 320 || s.Height != 180 {
		t.Errorf("stream = %dx%d, want 320x180", s.Width, s.Height)
	}
	if src.streams[0].Width != 0 {
		t.Error("probe modified the source descriptors")
	}
	pkts := readAll(t, p)
	if len(pkts) != 3 {
		t.Fatalf("packets = %d, want 3", len(pkts))
	}
	for i, pkt := range pkts {
		if pkt.PTS != int64(i) {
			t.Errorf("packet %d PTS = %d, want %d", i, pkt.PTS, i)
		}
	}
}

type spsFields struct {
	profile        uint8
	chromaFormat   uint64 // written for high profiles only
	scalingMatrix  bool
	widthMbs       uint64
	heightMapUnits uint64
	interlaced     bool
	crop           [4]uint64 // left, right, top, bottom
}

// annexBSPS writes an SPS NAL unit with a start code, escaping start code
// emulation the way an encoder does.
func annexBSPS(f spsFields) []byte {
	w := codec.NewBitStreamWriter(64)
	ue := func(v uint64) {
		x := v + 1
		n := bits.Len64(x)
		if n > 1 {
			w.PutUint64(0, n-1)
		}
		w.PutUint64(x, n)
	}
	flag := func(b bool) {
		if b {
			w.PutUint8(1, 1)
		} else {
			w.PutUint8(0, 1)
		}
	}

	w.PutUint8(f.profile, 8)
	w.PutUint8(0, 8)  // constraint flags
	w.PutUint8(40, 8) // level 4.0
	ue(0)             // seq_parameter_set_id
	if spsHighProfiles[f.profile] {
		ue(f.chromaFormat)
		ue(0)
		ue(0)
		flag(false)
		flag(f.scalingMatrix)
		if f.scalingMatrix {
			flag(true)
			ue(15) // delta_scale +8
			for j := 1; j < 16; j++ {
				ue(0)
			}
			for i := 1; i < 8; i++ {
				flag(false)
			}
		}
	}
	ue(0) // log2_max_frame_num_minus4
	ue(0) // pic_order_cnt_type
	ue(0) // log2_max_pic_order_cnt_lsb_minus4
	ue(1) // max_num_ref_frames
	flag(false)
	ue(f.widthMbs - 1)
	ue(f.heightMapUnits - 1)
	flag(!f.interlaced)
	if f.interlaced {
		flag(false)
	}
	flag(true) // direct_8x8_inference_flag
	cropped := f.crop != [4]uint64{}
	flag(cropped)
	if cropped {
		for _, c := range f.crop {
			ue(c)
		}
	}
	flag(false) // vui_parameters_present_flag
	flag(true)  // rbsp_stop_one_bit

	out := []byte{0, 0, 0, 1, 0x67}
	zeros := 0
	for _, b := range w.Bits() {
		if zeros == 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func TestH264Resolution(t *testing.T) {
	tests := []struct {
		name   string
		sps    spsFields
		w, h   int
		wantOK bool
	}{
		{"1080p", spsFields{profile: 100, chromaFormat: 1, widthMbs: 120, heightMapUnits: 68, crop: [4]uint64{0, 0, 0, 4}}, 1920, 1080, true},
		{"1080i", spsFields{profile: 100, chromaFormat: 1, widthMbs: 120, heightMapUnits: 34, interlaced: true, crop: [4]uint64{0, 0, 0, 2}}, 1920, 1080, true},
		{"crop top and bottom", spsFields{profile: 100, chromaFormat: 1, widthMbs: 120, heightMapUnits: 68, crop: [4]uint64{0, 0, 2, 2}}, 1920, 1080, true},
		{"crop left and right", spsFields{profile: 66, widthMbs: 12, heightMapUnits: 9, crop: [4]uint64{4, 4, 0, 0}}, 176, 144, true},
		{"baseline qcif", spsFields{profile: 66, widthMbs: 11, heightMapUnits: 9}, 176, 144, true},
		{"4:2:2 crop in luma rows", spsFields{profile: 122, chromaFormat: 2, widthMbs: 120, heightMapUnits: 68, crop: [4]uint64{0, 0, 0, 8}}, 1920, 1080, true},
		{"scaling matrix", spsFields{profile: 100, chromaFormat: 1, scalingMatrix: true, widthMbs: 80, heightMapUnits: 45}, 1280, 720, true},
		{"crop covers picture", spsFields{profile: 66, widthMbs: 11, heightMapUnits: 9, crop: [4]uint64{44, 44, 0, 0}}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			au := append(annexBSPS(tt.sps), 0, 0, 0, 1, 0x65, 0x88)
			w, h, ok := h264Resolution(au)
			if w != tt.w || h != tt.h || ok != tt.wantOK {
				t.Errorf("h264Resolution() = %d, %d, %v, want %d, %d, %v", w, h, ok, tt.w, tt.h, tt.wantOK)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		sps := annexBSPS(spsFields{profile: 100, chromaFormat: 1, widthMbs: 120, heightMapUnits: 68})
		if _, _, ok := h264Resolution(sps[:9]); ok {
			t.Error("h264Resolution() ok = true for a truncated SPS")
		}
	})
	t.Run("no sps", func(t *testing.T) {
		if _, _, ok := h264Resolution([]byte{0, 0, 0, 1, 0x65, 0x88, 0x84}); ok {
			t.Error("h264Resolution() ok = true without an SPS")
		}
	})
}
