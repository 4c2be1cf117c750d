package reassembly

import "math/rand/v2"

// SlotKey identifies one partial bundle being received from one peer.
type SlotKey struct {
	Peer    [6]byte
	Bid     [8]byte
	Version uint64
}

// EvictionPolicy chooses a slot to drop when a peer's fan-in is already at
// capacity and a new bundle needs tracking. The default is random
// replacement; tests can supply a deterministic one for reproducibility.
type EvictionPolicy interface {
	Choose(keys []SlotKey) SlotKey
}

// RandomEviction is the default EvictionPolicy.
type RandomEviction struct {
	Rand *rand.Rand
}

// Choose picks a uniformly random key from keys.
func (r RandomEviction) Choose(keys []SlotKey) SlotKey {
	rng := r.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	return keys[rng.IntN(len(keys))]
}

// Table tracks partial bundles across every peer, bounding how many any
// one peer may have in flight at once (§3's `partials[K]`,
// `K = MAX_BUNDLES_IN_FLIGHT`): fan-in pressure on one noisy peer evicts
// one of that peer's own slots, chosen by Policy, never another peer's, so peers
// cannot starve each other out of the shared table.
type Table struct {
	MaxPerPeer int
	Policy     EvictionPolicy

	slots map[SlotKey]*Partial
}

// NewTable creates a table allowing at most maxPerPeer partial bundles in
// flight for any single peer.
func NewTable(maxPerPeer int, policy EvictionPolicy) *Table {
	if policy == nil {
		policy = RandomEviction{}
	}
	return &Table{MaxPerPeer: maxPerPeer, Policy: policy, slots: make(map[SlotKey]*Partial)}
}

// Get returns the partial tracked under key, if any.
func (t *Table) Get(key SlotKey) (*Partial, bool) {
	p, ok := t.slots[key]
	return p, ok
}

// peerKeys returns every key currently tracked for the given peer.
func (t *Table) peerKeys(peer [6]byte) []SlotKey {
	var keys []SlotKey
	for k := range t.slots {
		if k.Peer == peer {
			keys = append(keys, k)
		}
	}
	return keys
}

// Start begins tracking a new partial under key, evicting one of that same
// peer's existing slots first if the peer is already at MaxPerPeer. It is
// a no-op (returning the existing partial) if key is already tracked.
func (t *Table) Start(key SlotKey, version uint64) *Partial {
	if p, ok := t.slots[key]; ok {
		return p
	}
	if t.MaxPerPeer > 0 {
		if existing := t.peerKeys(key.Peer); len(existing) >= t.MaxPerPeer {
			delete(t.slots, t.Policy.Choose(existing))
		}
	}
	p := NewPartial(version)
	t.slots[key] = p
	return p
}

// Delete stops tracking key, typically once its Partial is Complete.
func (t *Table) Delete(key SlotKey) { delete(t.slots, key) }

// Len reports how many partial bundles are currently tracked across every
// peer.
func (t *Table) Len() int { return len(t.slots) }

// PeerLen reports how many partial bundles are currently tracked for one
// peer.
func (t *Table) PeerLen(peer [6]byte) int { return len(t.peerKeys(peer)) }
