package treewire

import (
	"testing"

	"github.com/servalproject/reconsync/internal/synctree"
)

func TestRecordRoundTrip(t *testing.T) {
	k := synctree.Key{Payload: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, MinPrefixLen: 4, PrefixLen: 64}
	buf := EncodeRecord(nil, k)
	if len(buf) != RecordSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), RecordSize)
	}
	got, err := DecodeRecord(buf)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got != k {
		t.Fatalf("DecodeRecord(EncodeRecord(k)) = %+v, want %+v", got, k)
	}
}

func TestDecodeRecordTooShort(t *testing.T) {
	if _, err := DecodeRecord(make([]byte, RecordSize-1)); err == nil {
		t.Fatalf("expected an error decoding a short buffer")
	}
}

func TestApplyMessageIgnoresTrailingPartialRecord(t *testing.T) {
	tr := synctree.New(3)
	k := synctree.Key{Payload: [8]byte{9}, PrefixLen: 64}
	msg := EncodeRecord(nil, k)
	msg = append(msg, 1, 2, 3) // trailing partial record

	if err := ApplyMessage(tr, msg, nil); err != nil {
		t.Fatalf("ApplyMessage: %v", err)
	}
}

func TestBuildMessageAndApplyConverge(t *testing.T) {
	a := synctree.New(3)
	b := synctree.New(3)
	a.Add(synctree.Key{Payload: [8]byte{1, 1}, PrefixLen: 64})

	target := synctree.Key{Payload: [8]byte{1, 1}, PrefixLen: 64}
	buf := make([]byte, 256)
	for round := 0; round < 20 && !b.Contains(target); round++ {
		msg := BuildMessage(a, buf)
		if err := ApplyMessage(b, msg, nil); err != nil {
			t.Fatalf("ApplyMessage: %v", err)
		}
		// b's reply is what prompts a to queue the leaf b is missing.
		reply := BuildMessage(b, buf)
		if err := ApplyMessage(a, reply, nil); err != nil {
			t.Fatalf("ApplyMessage: %v", err)
		}
	}
	if !b.Contains(target) {
		t.Fatalf("b never learned a's key via BuildMessage/ApplyMessage")
	}
}
