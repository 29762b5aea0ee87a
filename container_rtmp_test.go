package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

func newTestIngest(key string) *rtmpIngest {
	return &rtmpIngest{
		key:      key,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		finished: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

func TestRTMPStreamKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"/live", ""},
		{"/live/camera1", "camera1"},
		{"/app/live/camera1", "camera1"},
	}
	for _, tt := range tests {
		if got := rtmpStreamKey(tt.path); got != tt.want {
			t.Errorf("rtmpStreamKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRTMPHandler_Publish(t *testing.T) {
	frame := mp3Frame(t, false)
	tag := append([]byte{0x2F}, frame...)
	in := newTestIngest("camera1")

	var publishErrs []error
	pump := startPump(context.Background(), func(ctx context.Context, p *packetPump) error {
		wrong := in.newHandler(ctx, p)
		publishErrs = append(publishErrs, wrong.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "other"}))
		if err := wrong.OnAudio(0, bytes.NewReader(tag)); err != nil {
			return err
		}

		h := in.newHandler(ctx, p)
		publishErrs = append(publishErrs, h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "camera1", PublishingType: "live"}))
		second := in.newHandler(ctx, p)
		publishErrs = append(publishErrs, second.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "camera1"}))

		for _, ts := range []uint32{0, 26, 52} {
			if err := h.OnAudio(ts, bytes.NewReader(tag)); err != nil {
				return err
			}
		}
		if err := h.OnVideo(60, bytes.NewReader(nil)); err != nil {
			return err
		}
		second.OnClose()
		h.OnClose()
		return nil
	})

	var pkts []*Packet
	for {
		pkt, err := pump.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next() error = %v", err)
		}
		pkts = append(pkts, pkt)
	}

	wantErrs := []error{errRTMPWrongKey, nil, errRTMPBusy}
	for i, want := range wantErrs {
		if !errors.Is(publishErrs[i], want) {
			t.Errorf("OnPublish() #%d error = %v, want %v", i, publishErrs[i], want)
		}
	}
	if len(pkts) != 3 {
		t.Fatalf("packets = %d, want 3", len(pkts))
	}
	for i, want := range []int64{0, 26, 52} {
		if pkts[i].PTS != want || !bytes.Equal(pkts[i].Data, frame) {
			t.Errorf("packet %d PTS = %d, want %d with the MP3 frame", i, pkts[i].PTS, want)
		}
	}
	streams := pump.streams()
	if len(streams) != 1 || streams[0].AudioCodec != AudioCodecMP3 {
		t.Errorf("streams() = %v, want one MP3 stream", streams)
	}
	select {
	case <-in.finished:
	default:
		t.Error("publisher close did not finish the ingest")
	}
}

func TestRTMPIngest_EmitAfterClose(t *testing.T) {
	in := newTestIngest("")
	in.closed = true
	pump := startPump(context.Background(), func(ctx context.Context, p *packetPump) error {
		return in.emit(ctx, p, []*Packet{NewPacket(0, nil, 0, 0)})
	})
	if _, err := pump.next(); !errors.Is(err, errRTMPIngestDone) {
		t.Errorf("next() error = %v, want errRTMPIngestDone", err)
	}
}

func TestOpenContainer_RTMPCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := OpenContainer(ctx, "rtmp://127.0.0.1:0/live/test", ContainerConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("OpenContainer() error = %v, want context.Canceled", err)
	}
}
