package app

import (
	"context"
	"errors"
	"sync"

	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/protocol"
)

var errChannelClosed = errors.New("channel closed")

// In-package fakes used by the session tests: no hardware, no network,
// every transition driven by hand-fed events.

type sentFrame struct {
	kind core.FrameKind
	data core.Frame
}

type fakeChannel struct {
	mu         sync.Mutex
	openErr    error
	opened     bool
	closed     bool
	closeCalls int
	sent       []sentFrame
	inbound    chan core.InboundFrame
	onClose    func()
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{inbound: make(chan core.InboundFrame, 16)}
}

func (c *fakeChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opened = true
	return nil
}

func (c *fakeChannel) TrySend(kind core.FrameKind, f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	c.sent = append(c.sent, sentFrame{kind: kind, data: f})
	return nil
}

func (c *fakeChannel) Inbound() <-chan core.InboundFrame { return c.inbound }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	hook := c.onClose
	close(c.inbound)
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver pushes a text frame as if it arrived from the backend.
func (c *fakeChannel) deliver(raw string) {
	c.inbound <- core.InboundFrame{Kind: core.FrameText, Data: core.Frame(raw)}
}

func (c *fakeChannel) sentFrames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentFrame, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeTransport struct {
	mu         sync.Mutex
	emit       func(TransportEvent)
	armErr     error
	armCalls   int
	active     bool
	endCalls   int
	closeCalls int
	answers    []protocol.SessionDescription
	candidates []protocol.Candidate
	onClose    func()
}

func (t *fakeTransport) SetEmitter(emit func(TransportEvent)) { t.emit = emit }

func (t *fakeTransport) Arm(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armCalls++
	if t.armErr != nil {
		return t.armErr
	}
	t.active = true
	return nil
}

func (t *fakeTransport) EndTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.active = false
	t.endCalls++
}

func (t *fakeTransport) OnAnswer(desc protocol.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, desc)
	return nil
}

func (t *fakeTransport) OnRemoteCandidate(c protocol.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) CaptureActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	t.active = false
	t.closeCalls++
	hook := t.onClose
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (t *fakeTransport) arms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armCalls
}

func (t *fakeTransport) ends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endCalls
}

type fakePlayback struct {
	mu        sync.Mutex
	playErr   error
	playCalls int
	stopCalls int
	active    bool
	done      chan struct{}
	once      *sync.Once
	payloads  [][]byte
	onStop    func()
}

func (p *fakePlayback) Play(encoded []byte) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return nil, p.playErr
	}
	p.playCalls++
	p.payloads = append(p.payloads, encoded)
	p.active = true
	p.done = make(chan struct{})
	p.once = &sync.Once{}
	return p.done, nil
}

// complete simulates natural end of playback.
func (p *fakePlayback) complete() {
	p.mu.Lock()
	done := p.done
	once := p.once
	p.active = false
	p.mu.Unlock()
	if once != nil {
		once.Do(func() { close(done) })
	}
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	p.stopCalls++
	done := p.done
	once := p.once
	wasActive := p.active
	p.active = false
	hook := p.onStop
	p.mu.Unlock()
	if hook != nil && wasActive {
		hook()
	}
	if once != nil {
		once.Do(func() { close(done) })
	}
}

func (p *fakePlayback) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakePlayback) plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playCalls
}
