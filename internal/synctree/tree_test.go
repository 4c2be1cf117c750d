package synctree

import (
	"math/rand/v2"
	"testing"
)

func keyOf(b0, b1 byte) Key {
	return Key{Payload: [8]byte{b0, b1, 0, 0, 0, 0, 0, 0}, PrefixLen: KeyBits}
}

func TestAddContains(t *testing.T) {
	tr := New(3)
	k1 := keyOf(0x12, 0x34)
	k2 := keyOf(0x12, 0x99)
	k3 := keyOf(0xFF, 0x00)

	for _, k := range []Key{k1, k2, k3} {
		tr.Add(k)
	}
	for _, k := range []Key{k1, k2, k3} {
		if !tr.Contains(k) {
			t.Fatalf("tree does not contain %x after Add", k.Payload)
		}
	}
	missing := keyOf(0x77, 0x77)
	if tr.Contains(missing) {
		t.Fatalf("tree reports containing a key that was never added")
	}
	if tr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tr.Len())
	}
}

func TestAddIdempotentMembership(t *testing.T) {
	tr := New(3)
	k := keyOf(0x55, 0x66)
	tr.Add(k)
	tr.Add(k)
	if !tr.Contains(k) {
		t.Fatalf("re-adding a key should not remove it from the set")
	}
}

func TestAddOrderIndependentRootDigest(t *testing.T) {
	keys := []Key{keyOf(1, 2), keyOf(3, 4), keyOf(5, 6), keyOf(7, 8)}

	a := New(3)
	for _, k := range keys {
		a.Add(k)
	}

	perm := rand.New(rand.NewPCG(1, 2)).Perm(len(keys))
	b := New(3)
	for _, i := range perm {
		b.Add(keys[i])
	}

	if a.RootDigest().Payload != b.RootDigest().Payload {
		t.Fatalf("root digest depends on insertion order: %x != %x", a.RootDigest().Payload, b.RootDigest().Payload)
	}
}

func TestClearEmptiesTree(t *testing.T) {
	tr := New(3)
	tr.Add(keyOf(1, 1))
	tr.Clear()
	if tr.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", tr.Len())
	}
	if tr.Contains(keyOf(1, 1)) {
		t.Fatalf("Clear did not remove existing keys")
	}
}

func encodeRecord(buf []byte, k Key) []byte {
	out := append(buf, k.Payload[:]...)
	return append(out, k.MinPrefixLen, k.PrefixLen)
}

// converge pumps messages between two trees until neither side makes
// progress for stallThreshold consecutive rounds, mirroring the
// standalone convergence harness the protocol's reference implementation
// uses to validate the sync tree.
func converge(t *testing.T, a, b *Tree, stallThreshold, maxRounds int) {
	t.Helper()
	buf := make([]byte, 512)
	for round := 0; round < maxRounds; round++ {
		if a.Stalled(stallThreshold) && b.Stalled(stallThreshold) {
			return
		}
		msgAB := a.BuildMessage(buf, encodeRecord)
		msgBA := b.BuildMessage(buf, encodeRecord)

		for i := 0; i+10 <= len(msgAB); i += 10 {
			var k Key
			copy(k.Payload[:], msgAB[i:i+8])
			k.MinPrefixLen, k.PrefixLen = msgAB[i+8], msgAB[i+9]
			if err := b.OnRecord(k, nil); err != nil {
				t.Fatalf("b.OnRecord: %v", err)
			}
		}
		for i := 0; i+10 <= len(msgBA); i += 10 {
			var k Key
			copy(k.Payload[:], msgBA[i:i+8])
			k.MinPrefixLen, k.PrefixLen = msgBA[i+8], msgBA[i+9]
			if err := a.OnRecord(k, nil); err != nil {
				t.Fatalf("a.OnRecord: %v", err)
			}
		}
	}
	t.Fatalf("trees did not converge within %d rounds", maxRounds)
}

func TestConvergeDisjointSets(t *testing.T) {
	a, b := New(5), New(5)
	for i := 0; i < 20; i++ {
		a.Add(keyOf(byte(i), 0xA0))
	}
	for i := 0; i < 20; i++ {
		b.Add(keyOf(byte(i), 0xB0))
	}

	converge(t, a, b, 4, 200)

	for i := 0; i < 20; i++ {
		if !b.Contains(keyOf(byte(i), 0xA0)) {
			t.Fatalf("b never learned a's key %d", i)
		}
		if !a.Contains(keyOf(byte(i), 0xB0)) {
			t.Fatalf("a never learned b's key %d", i)
		}
	}
}

func TestConvergeOverlappingSets(t *testing.T) {
	a, b := New(5), New(5)
	shared := []Key{keyOf(1, 1), keyOf(2, 2), keyOf(3, 3)}
	for _, k := range shared {
		a.Add(k)
		b.Add(k)
	}
	a.Add(keyOf(9, 9))
	b.Add(keyOf(8, 8))

	converge(t, a, b, 4, 200)

	if !b.Contains(keyOf(9, 9)) {
		t.Fatalf("b never learned a's unique key")
	}
	if !a.Contains(keyOf(8, 8)) {
		t.Fatalf("a never learned b's unique key")
	}
}

func TestGetBitsLastNibbleNeverReadsPastPayload(t *testing.T) {
	var payload [8]byte
	payload[7] = 0xAB
	got := getBits(60, 4, payload)
	if want := uint8(0xB); got != want {
		t.Fatalf("getBits(60,4,...) = %x, want %x", got, want)
	}
}
