package core

import "context"

// SignalChannel is the duplex signaling transport to the voice backend.
// Owned by the session state machine; the machine must Close() it.
type SignalChannel interface {
	// Open dials the backend. It blocks until the transport is
	// established or fails.
	Open(ctx context.Context) error
	// TrySend enqueues an outbound frame without blocking.
	TrySend(kind FrameKind, f Frame) error
	// Inbound yields frames strictly in arrival order. The channel is
	// closed when the transport drops, which is how the consumer learns
	// about remote closure.
	Inbound() <-chan InboundFrame
	// Close is idempotent.
	Close()
}
