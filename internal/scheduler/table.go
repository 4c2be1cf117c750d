package scheduler

import "math/rand/v2"

// EvictionPolicy chooses a peer to drop when the table is full and a new
// peer needs a slot.
type EvictionPolicy interface {
	Choose(peers []*Peer) [6]byte
}

// RandomEviction is the default EvictionPolicy: a uniformly random peer.
type RandomEviction struct {
	Rand *rand.Rand
}

// Choose implements EvictionPolicy.
func (r RandomEviction) Choose(peers []*Peer) [6]byte {
	rng := r.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	return peers[rng.IntN(len(peers))].SIDPrefix
}

// PeerTable bounds the number of peers tracked at once, evicting via
// Policy when a new peer arrives and the table is already full.
type PeerTable struct {
	Max        int
	Policy     EvictionPolicy
	MaxRetries uint8

	peers map[[6]byte]*Peer
}

// NewPeerTable creates a table holding at most max peers at once.
func NewPeerTable(max int, maxRetries uint8, policy EvictionPolicy) *PeerTable {
	if policy == nil {
		policy = RandomEviction{}
	}
	return &PeerTable{Max: max, Policy: policy, MaxRetries: maxRetries, peers: make(map[[6]byte]*Peer)}
}

// Get returns the tracked Peer for sidPrefix, if any.
func (t *PeerTable) Get(sidPrefix [6]byte) (*Peer, bool) {
	p, ok := t.peers[sidPrefix]
	return p, ok
}

// GetOrCreate returns the tracked Peer for sidPrefix, creating one (and
// evicting another peer first if the table is full) if it is not yet
// known.
func (t *PeerTable) GetOrCreate(sidPrefix [6]byte) *Peer {
	if p, ok := t.peers[sidPrefix]; ok {
		return p
	}
	if t.Max > 0 && len(t.peers) >= t.Max {
		all := make([]*Peer, 0, len(t.peers))
		for _, p := range t.peers {
			all = append(all, p)
		}
		delete(t.peers, t.Policy.Choose(all))
	}
	p := NewPeer(sidPrefix, t.MaxRetries)
	t.peers[sidPrefix] = p
	return p
}

// Len reports how many peers are currently tracked.
func (t *PeerTable) Len() int { return len(t.peers) }

// All returns every tracked peer, in unspecified order.
func (t *PeerTable) All() []*Peer {
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// SelectForStuffing picks up to n peers at random to build frames for this
// tick, so that with more active peers than fit in one tick's packet
// budget, airtime rotates across them instead of always favouring whichever
// peer happens to iterate first.
func SelectForStuffing(peers []*Peer, n int, rng *rand.Rand) []*Peer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	if n >= len(peers) {
		n = len(peers)
	}
	shuffled := append([]*Peer(nil), peers...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
