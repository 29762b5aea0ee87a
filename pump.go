package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// errProbeTimeout is returned by packetPump.nextWithin when no packet
// arrived in time.
var errProbeTimeout = errors.New("timed out waiting for packets")

// packetPump runs a push-style demuxer on its own goroutine and hands its
// packets to a single reader, one at a time and in order.
type packetPump struct {
	cancel context.CancelFunc
	g      *errgroup.Group
	ch     chan *Packet

	mu    sync.Mutex
	table *streamTable
}

// startPump runs produce until it returns. emit blocks until the reader
// takes the packet and reports false once the pump is stopping.
func startPump(ctx context.Context, produce func(ctx context.Context, p *packetPump) error) *packetPump {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p := &packetPump{
		cancel: cancel,
		g:      g,
		ch:     make(chan *Packet),
		table:  newStreamTable(),
	}
	g.Go(func() error {
		defer close(p.ch)
		return produce(gctx, p)
	})
	return p
}

// stream registers a stream by key from the producer goroutine.
func (p *packetPump) stream(key string, desc func() StreamDescriptor) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.lookup(key, desc)
}

// update changes a registered descriptor, e.g. once a codec header arrives.
func (p *packetPump) update(idx int, fn func(*StreamDescriptor)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.table.streams[idx])
}

func (p *packetPump) streams() []StreamDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.snapshot()
}

func (p *packetPump) hasBoth() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.has(MediaTypeVideo) && p.table.has(MediaTypeAudio)
}

func (p *packetPump) emit(ctx context.Context, pkt *Packet) bool {
	select {
	case p.ch <- pkt:
		return true
	case <-ctx.Done():
		return false
	}
}

// next blocks for the next packet. It returns io.EOF once the producer has
// finished cleanly.
func (p *packetPump) next() (*Packet, error) {
	pkt, ok := <-p.ch
	if ok {
		return pkt, nil
	}
	return nil, p.finish()
}

// nextWithin is next bounded by d.
func (p *packetPump) nextWithin(d time.Duration) (*Packet, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case pkt, ok := <-p.ch:
		if ok {
			return pkt, nil
		}
		return nil, p.finish()
	case <-t.C:
		return nil, errProbeTimeout
	}
}

func (p *packetPump) finish() error {
	if err := p.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return io.EOF
}

// discover reads ahead until both media types have a stream, limit packets
// were read or the producer finished. The packets read are returned for
// replay.
func (p *packetPump) discover(limit int, timeout time.Duration) ([]*Packet, error) {
	var pending []*Packet
	deadline := time.Now().Add(timeout)
	for len(pending) < limit && !p.hasBoth() {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		pkt, err := p.nextWithin(wait)
		if errors.Is(err, io.EOF) || errors.Is(err, errProbeTimeout) {
			break
		}
		if err != nil {
			return nil, err
		}
		pending = append(pending, pkt)
	}
	return pending, nil
}

// stop cancels the producer, drains in-flight packets and waits for it.
func (p *packetPump) stop() error {
	p.cancel()
	for range p.ch {
	}
	if err := p.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
