// Package transport declares the small capability interfaces an
// endpoint or discovery component needs from the network layer
// (spec.md §6 "Transport contract"). Concrete UDPv4/v6/TCPv4/v6/SHM
// socket I/O is explicitly out of scope for the core (spec.md §1: "It
// does not itself open sockets; it exposes a send/receive interface
// to transports") and is left to an external collaborator; this
// package also provides an in-memory LoopbackTransport used to drive
// the engine end to end in tests without a real socket. Sender and
// Receiver are split so a caller can compose a send path and a
// receive-callback path independently, rather than one monolithic
// transport interface.
package transport

import (
	"sync"

	"github.com/rtps-go/rtps/core/locator"
)

// Receiver is invoked with a raw datagram and the locator it arrived
// from.
type Receiver func(data []byte, from locator.Locator)

// Sender is the send-only capability an endpoint needs (spec.md §6
// "send(buffer, destinations) -> bool — non-blocking best-effort").
type Sender interface {
	Send(buffer []byte, destinations []locator.Locator) bool
}

// LocatorSupport reports whether a transport can carry a locator and
// normalizes it (e.g. loopback interface selection).
type LocatorSupport interface {
	IsLocatorSupported(l locator.Locator) bool
	Normalize(l locator.Locator) locator.Locator
}

// Transport is the full contract of spec.md §6: open a receive
// channel bound to a locator, send datagrams, and answer locator
// support/normalization queries.
type Transport interface {
	Sender
	LocatorSupport
	OpenReceiveChannel(l locator.Locator, r Receiver) error
	Close() error
}

// LoopbackTransport is an in-process Transport that delivers every
// Send directly to whatever Receiver is registered for the
// destination locator, with no socket involved. It exists to drive
// the engine's reliability/discovery state machines in tests.
type LoopbackTransport struct {
	mu        sync.Mutex
	receivers map[locator.Locator]Receiver
	self      locator.Locator
	closed    bool
}

// NewLoopback constructs a LoopbackTransport that reports self as the
// source locator on every Send it performs.
func NewLoopback(self locator.Locator) *LoopbackTransport {
	return &LoopbackTransport{
		receivers: make(map[locator.Locator]Receiver),
		self:      self,
	}
}

// OpenReceiveChannel registers r to be invoked for datagrams addressed
// to l.
func (t *LoopbackTransport) OpenReceiveChannel(l locator.Locator, r Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers[l] = r
	return nil
}

// Send invokes the registered Receiver for every destination that has
// one; returns true iff at least one destination was delivered.
func (t *LoopbackTransport) Send(buffer []byte, destinations []locator.Locator) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	receivers := make([]Receiver, 0, len(destinations))
	for _, d := range destinations {
		if r, ok := t.receivers[d]; ok {
			receivers = append(receivers, r)
		}
	}
	t.mu.Unlock()

	data := append([]byte(nil), buffer...)
	for _, r := range receivers {
		r(data, t.self)
	}
	return len(receivers) > 0
}

// IsLocatorSupported always reports true: LoopbackTransport carries
// any locator value as an opaque map key.
func (t *LoopbackTransport) IsLocatorSupported(l locator.Locator) bool { return true }

// Normalize is the identity function for LoopbackTransport.
func (t *LoopbackTransport) Normalize(l locator.Locator) locator.Locator { return l }

// Close marks the transport closed; subsequent Sends are no-ops.
func (t *LoopbackTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
