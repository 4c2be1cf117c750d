package reconsync

import "github.com/servalproject/reconsync/internal/fingerprint"

// Config holds the fixed parameters an Engine is constructed with. The
// zero value is not meaningful — Salt in particular must be shared by every
// peer expected to converge — so callers always fill this in explicitly
// rather than relying on defaults.
type Config struct {
	// Salt scopes fingerprint derivation to a particular network of
	// peers; see internal/fingerprint.
	Salt fingerprint.Salt

	// MaxRetries bounds how many times a sync-tree node is offered to a
	// given peer before it is left alone pending a fresh event.
	MaxRetries uint8

	// MaxPeers bounds how many peers are tracked at once; beyond this,
	// discovering a new peer evicts an existing one.
	MaxPeers int

	// MaxPartials bounds how many in-progress bundle reassembly slots a
	// single peer may have at once (§3's `K = MAX_BUNDLES_IN_FLIGHT`); a
	// noisy or malicious peer opening many bundles at once can only ever
	// evict its own slots, never another peer's.
	MaxPartials int

	// MTU is the maximum number of bytes BuildFrame will fill in one
	// outgoing frame.
	MTU int

	// StuffingFanout bounds how many peers ActivePeers selects per call,
	// matching the packet-stuffing loop's "visit up to N randomly chosen
	// active peers" discipline rather than iterating every tracked peer
	// on every tick.
	StuffingFanout int
}

// DefaultConfig returns reasonable defaults for a Config with the given
// salt; all other fields can be left as returned or overridden.
func DefaultConfig(salt fingerprint.Salt) Config {
	return Config{
		Salt:           salt,
		MaxRetries:     4,
		MaxPeers:       32,
		MaxPartials:    16,
		MTU:            240,
		StuffingFanout: 10,
	}
}
