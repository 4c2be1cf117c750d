package scheduler

import (
	"time"

	"github.com/servalproject/reconsync/internal/synctree"
)

// FingerprintResolver maps a sync-tree leaf fingerprint back to the
// (bid, version) pair it summarises. The scheduler itself has no notion of
// bundles, only opaque fingerprints; this indirection is supplied by
// whatever owns the fingerprint ↔ bundle mapping (internal/fingerprint plus
// the bundle store).
type FingerprintResolver func(fp [8]byte) (bid [8]byte, version uint64, ok bool)

// SuspectLacksHook builds a synctree.SuspectLacksFunc bound to peer p: each
// fingerprint the sync tree concludes p is missing is resolved back to a
// bundle and added to (or refreshed in) p's ranked candidate list with a
// priority taken from now (see priorityFromRecency), so it outranks
// candidates suspected at an earlier time.
func SuspectLacksHook(p *Peer, resolve FingerprintResolver, now time.Time) synctree.SuspectLacksFunc {
	return func(k synctree.Key) {
		bid, version, ok := resolve(k.Payload)
		if !ok {
			return
		}
		p.Suspect(bid, version, priorityFromRecency(now), now)
	}
}

// priorityFromRecency gives freshly-suspected candidates a priority derived
// from when they were discovered, so a newer discovery always outranks a
// stale one at the same nominal priority tier — callers that want
// size-based or otherwise domain-specific prioritisation can call Suspect
// directly with their own priority instead of going through the hook.
func priorityFromRecency(now time.Time) int {
	return int(now.Unix() % (1 << 30))
}

// OnBAR folds a received BAR into peer state: if it matches our
// in-progress transfer to p at an equal-or-newer version, that is treated
// as a positive acknowledgement (AckTransfer); otherwise it is evidence p
// holds a bundle and is not, by itself, something we act on further here —
// a BAR only tells us what the *sender* has, not what they're missing.
func OnBAR(p *Peer, bidPrefix [8]byte, version uint64, now time.Time) {
	AckTransfer(p, bidPrefix, version)
	p.LastSeen = now
}
