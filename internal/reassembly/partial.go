package reassembly

// JournalVersionLimit distinguishes a journal bundle's version (which is
// the bundle's own body length as of that version) from an ordinary
// monotonic version counter: any version below this limit names a journal.
const JournalVersionLimit = uint64(1) << 32

// Partial is the in-progress reassembly state for one (peer, bundle)
// pairing: the manifest and body are tracked as independent segment lists
// because pieces for each can interleave arbitrarily on the wire.
type Partial struct {
	Version uint64

	manifestLength *uint64
	bodyLength     *uint64

	manifestSegments []Segment
	bodySegments     []Segment
}

// NewPartial starts tracking a bundle at the given version with nothing
// received yet.
func NewPartial(version uint64) *Partial {
	return &Partial{Version: version}
}

// IsJournal reports whether this bundle's version names a journal, whose
// body length is the version itself rather than an independently-announced
// value.
func (p *Partial) IsJournal() bool { return p.Version < JournalVersionLimit }

// PreloadBody seeds the body segment list with bytes already known to be
// correct — used when this is a new version of a journal bundle the
// receiver already holds an older copy of, so the unchanged leading portion
// of the body never needs to be retransmitted.
func (p *Partial) PreloadBody(existing []byte) {
	if len(existing) == 0 {
		return
	}
	p.bodySegments = absorb(p.bodySegments, 0, existing)
}

// SetManifestLength records the manifest's total length once announced by
// a Length record.
func (p *Partial) SetManifestLength(n uint64) { p.manifestLength = &n }

// SetBodyLength records the body's total length once announced. For a
// journal bundle this is implied by Version and need not be set
// separately; callers may still call it (e.g. on receiving an explicit
// Length record) with the same value.
func (p *Partial) SetBodyLength(n uint64) { p.bodyLength = &n }

// AbsorbManifestPiece merges a received manifest byte range into the
// tracked segments.
func (p *Partial) AbsorbManifestPiece(offset uint64, data []byte) {
	p.manifestSegments = absorb(p.manifestSegments, offset, data)
}

// AbsorbBodyPiece merges a received body byte range into the tracked
// segments.
func (p *Partial) AbsorbBodyPiece(offset uint64, data []byte) {
	p.bodySegments = absorb(p.bodySegments, offset, data)
}

// ManifestComplete reports whether the whole manifest has been received.
// It is false until the length is known.
func (p *Partial) ManifestComplete() bool {
	if p.manifestLength == nil {
		return false
	}
	return complete(p.manifestSegments, *p.manifestLength)
}

// BodyComplete reports whether the whole body has been received. A
// journal's body length is implied by Version even if SetBodyLength was
// never called.
func (p *Partial) BodyComplete() bool {
	length := p.bodyLength
	if length == nil && p.IsJournal() {
		v := p.Version
		length = &v
	}
	if length == nil {
		return false
	}
	return complete(p.bodySegments, *length)
}

// Complete reports whether both the manifest and body have been fully
// received.
func (p *Partial) Complete() bool { return p.ManifestComplete() && p.BodyComplete() }

// ManifestBytes returns the reassembled manifest. Only meaningful once
// ManifestComplete reports true.
func (p *Partial) ManifestBytes() []byte {
	if len(p.manifestSegments) == 0 {
		return nil
	}
	return p.manifestSegments[0].Bytes
}

// BodyBytes returns the reassembled body. Only meaningful once BodyComplete
// reports true.
func (p *Partial) BodyBytes() []byte {
	if len(p.bodySegments) == 0 {
		return nil
	}
	return p.bodySegments[0].Bytes
}
