package scheduler

import "time"

// Candidate is one bundle a peer is suspected to be missing, ranked for
// transmission priority.
type Candidate struct {
	Bid       [8]byte
	Version   uint64
	Priority  int
	UpdatedAt time.Time
}

// Suspect records (or refreshes) a candidate for p: if bid is already
// candidate, its priority and timestamp are updated in place — the
// existing ranking position is recomputed on the next BestCandidate call
// rather than maintained incrementally, since peers rarely carry more than
// a handful of candidates at once.
func (p *Peer) Suspect(bid [8]byte, version uint64, priority int, now time.Time) {
	for i := range p.candidates {
		if p.candidates[i].Bid == bid {
			p.candidates[i].Version = version
			p.candidates[i].Priority = priority
			p.candidates[i].UpdatedAt = now
			return
		}
	}
	p.candidates = append(p.candidates, Candidate{Bid: bid, Version: version, Priority: priority, UpdatedAt: now})
}

// Resolved removes bid from the candidate list — called once a transfer to
// the peer for it has started or it is otherwise no longer suspected
// missing.
func (p *Peer) Resolved(bid [8]byte) {
	for i := range p.candidates {
		if p.candidates[i].Bid == bid {
			p.candidates = append(p.candidates[:i], p.candidates[i+1:]...)
			return
		}
	}
}

// BestCandidate returns the highest-priority candidate for p, breaking
// ties by most recent update, or false if p has none.
func (p *Peer) BestCandidate() (Candidate, bool) {
	if len(p.candidates) == 0 {
		return Candidate{}, false
	}
	best := p.candidates[0]
	for _, c := range p.candidates[1:] {
		if c.Priority > best.Priority || (c.Priority == best.Priority && c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	return best, true
}
