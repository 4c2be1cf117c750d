package reconsync

import (
	"time"

	"github.com/servalproject/reconsync/internal/scheduler"
)

// PeerStatus is a read-only snapshot of one peer's transmit state, for
// callers that want to observe progress without reaching into the engine's
// internals.
type PeerStatus struct {
	SIDPrefix    [6]byte
	LocalSeq     uint8
	RemoteSeqAck uint8
	TxPhase      scheduler.TxPhase
	TxBid        [8]byte
	TxVersion    uint64
	LastSeen     time.Time
	KnownKeys    int
}

func newPeerStatus(p *scheduler.Peer) PeerStatus {
	return PeerStatus{
		SIDPrefix:    p.SIDPrefix,
		LocalSeq:     p.LocalSeq,
		RemoteSeqAck: p.RemoteSeqAck,
		TxPhase:      p.TxPhase,
		TxBid:        p.TxBid,
		TxVersion:    p.TxVersion,
		LastSeen:     p.LastSeen,
		KnownKeys:    p.Tree.Len(),
	}
}
