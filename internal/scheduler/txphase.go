package scheduler

// StartTransfer begins offering bid/version to p, starting the transfer
// phase machine at its first stage.
func (p *Peer) StartTransfer(bid [8]byte, version uint64) {
	p.TxBid = bid
	p.TxVersion = version
	p.TxPhase = TxPhaseManifest
	p.TxManifestOffset = 0
	p.TxBodyOffset = 0
	p.Resolved(bid)
}

// AdvancePhase moves p's transfer to the next phase in the fixed
// manifest → length → body → done ordering. It is a no-op once the phase
// is already Done.
func AdvancePhase(p *Peer) {
	switch p.TxPhase {
	case TxPhaseManifest:
		p.TxPhase = TxPhaseLength
	case TxPhaseLength:
		p.TxPhase = TxPhaseBody
	case TxPhaseBody:
		p.TxPhase = TxPhaseDone
	}
}

// AckTransfer reacts to a BAR from p showing it already holds bid at
// version>=the one we're sending: treat it as a positive acknowledgement
// and stop the in-progress transfer, freeing p to start its next
// candidate.
func AckTransfer(p *Peer, bid [8]byte, version uint64) {
	if p.TxPhase == TxPhaseIdle || p.TxPhase == TxPhaseDone {
		return
	}
	if p.TxBid == bid && version >= p.TxVersion {
		p.TxPhase = TxPhaseDone
	}
}

// NextTransfer starts p's highest-priority candidate if p is currently
// idle or has finished its previous transfer. It reports whether a new
// transfer was started.
func NextTransfer(p *Peer) bool {
	if p.TxPhase != TxPhaseIdle && p.TxPhase != TxPhaseDone {
		return false
	}
	c, ok := p.BestCandidate()
	if !ok {
		return false
	}
	p.StartTransfer(c.Bid, c.Version)
	return true
}
