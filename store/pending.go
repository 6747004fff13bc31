package store

import "github.com/suisim/sandbox/bcs"

type pendingKey struct {
	recipient bcs.Address
	sent      bcs.Address
}

// PendingReceive is an object awaiting a Receive command after being
// transferred to another object's id (spec.md §3/§4.3).
type PendingReceive struct {
	Recipient bcs.Address
	Sent      bcs.Address
	TypeTag   bcs.TypeTag
	Bytes     []byte
}

// AddPendingReceive installs a pending transfer. Callers are
// responsible for having removed the object from the top-level table
// first (spec.md §4.3's "store removes the object ... and inserts it
// into pending_receives").
func (s *ObjectStore) AddPendingReceive(recipient, sent bcs.Address, typeTag bcs.TypeTag, objBytes []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReceives[pendingKey{recipient: recipient, sent: sent}] = PendingReceive{
		Recipient: recipient,
		Sent:      sent,
		TypeTag:   typeTag,
		Bytes:     append([]byte(nil), objBytes...),
	}
}

// ConsumePendingReceive removes and returns a pending entry matching
// (recipient, sent), as performed by a successful Receive command.
func (s *ObjectStore) ConsumePendingReceive(recipient, sent bcs.Address) (PendingReceive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey{recipient: recipient, sent: sent}
	v, ok := s.pendingReceives[key]
	if !ok {
		return PendingReceive{}, false
	}
	delete(s.pendingReceives, key)
	return v, true
}

// ListPendingReceives returns every pending transfer addressed to
// recipient.
func (s *ObjectStore) ListPendingReceives(recipient bcs.Address) []PendingReceive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PendingReceive
	for k, v := range s.pendingReceives {
		if k.recipient == recipient {
			out = append(out, v)
		}
	}
	return out
}

// ClearPendingReceive removes a specific pending entry without
// requiring it to exist (idempotent variant of ConsumePendingReceive
// for the session facade's clear_pending_receive operation).
func (s *ObjectStore) ClearPendingReceive(recipient, sent bcs.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingReceives, pendingKey{recipient: recipient, sent: sent})
}
