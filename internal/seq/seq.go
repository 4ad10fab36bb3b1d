// Package seq provides a monotonic request-generation counter. An async
// operation takes a ticket before it starts and only publishes its result if
// the ticket is still the newest one when it resolves.
package seq

import "sync/atomic"

// Ticket identifies one issued request.
type Ticket uint64

// Sequencer issues increasing tickets. The zero value is ready to use.
type Sequencer struct {
	last atomic.Uint64
}

// Next issues a new ticket, superseding every earlier one.
func (s *Sequencer) Next() Ticket {
	return Ticket(s.last.Add(1))
}

// Current reports whether t is still the newest ticket.
func (s *Sequencer) Current(t Ticket) bool {
	return s.last.Load() == uint64(t)
}

// Invalidate supersedes all outstanding tickets without issuing a usable one.
func (s *Sequencer) Invalidate() {
	s.last.Add(1)
}
