// Package app contains the voice session state machine and the
// transport strategies it drives. All transitions happen on a single
// event queue consumed by one goroutine, so there is no interleaving of
// half-finished transitions.
package app

import (
	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
)

type eventKind int

const (
	evDeactivate eventKind = iota
	evSignalFrame
	evSignalClosed
	evStopListening
	evListenTimeout
	evPlaybackDone
	evTransportUp
	evFailure
)

// event is the single inbound unit the run loop consumes; which fields
// are set depends on kind.
type event struct {
	kind  eventKind
	frame core.InboundFrame
	turn  uint64 // listen-timer generation, guards stale timeouts
	errK  domain.ErrorKind
	err   error
}

// TransportEventKind reports asynchronous transport outcomes back to
// the session.
type TransportEventKind int

const (
	TransportConnected TransportEventKind = iota
	TransportFailed
)

type TransportEvent struct {
	Kind TransportEventKind
	ErrK domain.ErrorKind
	Err  error
}
