package reconsync

// BundleMeta identifies and describes one version of a bundle: enough for
// the engine to derive its fingerprint and know how to fetch it.
type BundleMeta struct {
	Bid      [8]byte
	Version  uint64
	FileHash []byte
	Length   uint64
}

// Store is the host application's bundle database. The engine never holds
// bundle bytes itself; it reads and writes through this interface so the
// host controls durability, indexing, and storage layout.
type Store interface {
	// AllBundles enumerates every bundle version currently held. NewEngine
	// calls it once to build the fingerprint index that seeds each
	// newly-discovered peer's sync tree.
	AllBundles() []BundleMeta

	// Lookup returns the metadata for the locally-held version of bid, if
	// any is held at all (regardless of version).
	Lookup(bid [8]byte) (BundleMeta, bool)

	// FetchManifest returns the manifest bytes for (bid, version).
	FetchManifest(bid [8]byte, version uint64) ([]byte, error)

	// FetchBodyRange returns up to length bytes of the body for
	// (bid, version) starting at offset.
	FetchBodyRange(bid [8]byte, version uint64, offset uint64, length int) ([]byte, error)

	// ExistingBody returns the body bytes of whatever version of bid is
	// currently held, used to preload a journal bundle's unchanged
	// leading portion before a newer version's pieces arrive.
	ExistingBody(bid [8]byte) ([]byte, bool)

	// SaveBundle persists a newly-completed bundle version.
	SaveBundle(meta BundleMeta, manifest, body []byte) error
}
