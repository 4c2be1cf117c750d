package reassembly

import "testing"

func TestAbsorbDisjointThenAdjacentMerges(t *testing.T) {
	var segs []Segment
	segs = absorb(segs, 0, []byte("AAAA"))
	segs = absorb(segs, 8, []byte("CCCC"))
	if len(segs) != 2 {
		t.Fatalf("expected 2 disjoint segments, got %d", len(segs))
	}
	segs = absorb(segs, 4, []byte("BBBB"))
	if len(segs) != 1 {
		t.Fatalf("expected segments to merge into 1, got %d", len(segs))
	}
	want := "AAAABBBBCCCC"
	if string(segs[0].Bytes) != want {
		t.Fatalf("merged bytes = %q, want %q", segs[0].Bytes, want)
	}
}

func TestAbsorbOverlapKeepsExistingBytes(t *testing.T) {
	var segs []Segment
	segs = absorb(segs, 0, []byte("AAAA"))
	// Overlapping redelivery with different trailing bytes should only
	// extend, never rewrite, what's already stored.
	segs = absorb(segs, 2, []byte("XXXXXX"))
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if string(segs[0].Bytes[:4]) != "AAAA" {
		t.Fatalf("existing bytes were overwritten: %q", segs[0].Bytes)
	}
}

func TestAbsorbDuplicateIsNoop(t *testing.T) {
	var segs []Segment
	segs = absorb(segs, 0, []byte("hello"))
	before := string(segs[0].Bytes)
	segs = absorb(segs, 0, []byte("hello"))
	if string(segs[0].Bytes) != before {
		t.Fatalf("duplicate absorb changed bytes: %q != %q", segs[0].Bytes, before)
	}
	if len(segs) != 1 {
		t.Fatalf("duplicate absorb created extra segments: %d", len(segs))
	}
}

func TestPartialCompletion(t *testing.T) {
	p := NewPartial(100)
	p.SetManifestLength(4)
	p.SetBodyLength(8)

	p.AbsorbManifestPiece(0, []byte("mani"))
	p.AbsorbBodyPiece(0, []byte("bodyXXXX"))

	if !p.Complete() {
		t.Fatalf("expected partial to be complete")
	}
	if string(p.ManifestBytes()) != "mani" {
		t.Fatalf("manifest bytes = %q", p.ManifestBytes())
	}
	if string(p.BodyBytes()) != "bodyXXXX" {
		t.Fatalf("body bytes = %q", p.BodyBytes())
	}
}

func TestJournalBodyLengthImpliedByVersion(t *testing.T) {
	p := NewPartial(4) // journal: version IS the body length
	if !p.IsJournal() {
		t.Fatalf("expected version below JournalVersionLimit to be a journal")
	}
	p.AbsorbBodyPiece(0, []byte("1234"))
	if !p.BodyComplete() {
		t.Fatalf("journal body should be complete once Version bytes are received with no explicit length")
	}
}

func TestPreloadBodySeedsExistingPrefix(t *testing.T) {
	p := NewPartial(8)
	p.PreloadBody([]byte("OLDDATA!"))
	p.SetBodyLength(8)
	if !p.BodyComplete() {
		t.Fatalf("preloaded body covering the whole length should already be complete")
	}
	if string(p.BodyBytes()) != "OLDDATA!" {
		t.Fatalf("body = %q", p.BodyBytes())
	}
}

func TestTableEvictsWhenFull(t *testing.T) {
	tab := NewTable(2, nil)
	k1 := SlotKey{Bid: [8]byte{1}}
	k2 := SlotKey{Bid: [8]byte{2}}
	k3 := SlotKey{Bid: [8]byte{3}}

	tab.Start(k1, 1)
	tab.Start(k2, 1)
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}
	tab.Start(k3, 1)
	if tab.Len() != 2 {
		t.Fatalf("Len() after eviction = %d, want 2", tab.Len())
	}
	if _, ok := tab.Get(k3); !ok {
		t.Fatalf("newly started slot should always be present")
	}
}

func TestTableBoundsPerPeerNotGlobally(t *testing.T) {
	tab := NewTable(1, nil)
	peerA := [6]byte{0xA}
	peerB := [6]byte{0xB}

	ka := SlotKey{Peer: peerA, Bid: [8]byte{1}}
	kb := SlotKey{Peer: peerB, Bid: [8]byte{2}}
	tab.Start(ka, 1)
	tab.Start(kb, 1)

	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2: a busy peer must not evict another peer's slot", tab.Len())
	}
	if _, ok := tab.Get(ka); !ok {
		t.Fatalf("peer A's slot should not have been evicted by peer B's arrival")
	}

	// A second bundle for peer A, still within its own MaxPerPeer=1 bound,
	// must evict peer A's own slot, not peer B's.
	ka2 := SlotKey{Peer: peerA, Bid: [8]byte{3}}
	tab.Start(ka2, 1)
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after peer A's own eviction", tab.Len())
	}
	if _, ok := tab.Get(kb); !ok {
		t.Fatalf("peer B's slot must survive peer A's fan-in eviction")
	}
	if _, ok := tab.Get(ka); ok {
		t.Fatalf("peer A's original slot should have been evicted by its own new arrival")
	}
}
