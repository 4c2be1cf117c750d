// Package scheduler tracks per-peer transmit state: the sequence-number
// window, the retransmit ring, the transfer-in-progress phase machine, and
// the ranked list of bundles a peer is suspected to be missing. It decides
// who gets airtime and what to send them; internal/wire and
// internal/treewire own the actual bytes.
package scheduler

import (
	"time"

	"github.com/servalproject/reconsync/internal/synctree"
)

// TxPhase is the state of an in-progress outbound bundle transfer to one
// peer: bundles are always offered manifest first, then their length, then
// the body, matching how a receiver can only validate a body once it knows
// both the manifest and the declared length.
type TxPhase uint8

const (
	TxPhaseIdle TxPhase = iota
	TxPhaseManifest
	TxPhaseLength
	TxPhaseBody
	TxPhaseDone
)

// RetransmitRingSize is the number of recently-sent frames kept per peer,
// indexed by the low bits of their sequence number.
const RetransmitRingSize = 16

// retransmitSlot holds one previously-sent frame, keyed by its full
// sequence number so a stale ring entry (from 16 sequence numbers ago) is
// never mistaken for the one currently being asked for.
type retransmitSlot struct {
	seq   uint8
	frame []byte
	valid bool
}

// Peer is everything the scheduler tracks about one other participant in
// the mesh.
type Peer struct {
	SIDPrefix [6]byte

	Tree *synctree.Tree

	LocalSeq        uint8
	RemoteSeqAck    uint8
	RemoteSeqBitmap uint16

	ring [RetransmitRingSize]retransmitSlot

	candidates []Candidate

	TxBid            [8]byte
	TxVersion        uint64
	TxPhase          TxPhase
	TxManifestOffset uint64
	TxBodyOffset     uint64

	RetransmitRequested bool
	RetransmitSeq       uint8

	LastSeen time.Time
}

// NewPeer creates a Peer record for a newly-seen SID prefix.
func NewPeer(sidPrefix [6]byte, maxRetries uint8) *Peer {
	return &Peer{SIDPrefix: sidPrefix, Tree: synctree.New(maxRetries)}
}

// PutRetransmit records frame as the most recently sent payload at seq, so
// a later explicit retransmit request for that exact sequence number can
// be served verbatim.
func (p *Peer) PutRetransmit(seq uint8, frame []byte) {
	p.ring[seq%RetransmitRingSize] = retransmitSlot{seq: seq, frame: frame, valid: true}
}

// GetRetransmit returns the frame previously sent at seq, if it is still
// in the ring (not yet overwritten by a later frame reusing the same slot).
func (p *Peer) GetRetransmit(seq uint8) ([]byte, bool) {
	slot := p.ring[seq%RetransmitRingSize]
	if !slot.valid || slot.seq != seq {
		return nil, false
	}
	return slot.frame, true
}
