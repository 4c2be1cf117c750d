package scheduler

import (
	"testing"
	"time"

	"github.com/servalproject/reconsync/internal/synctree"
)

func TestWindowHasSpace(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	if !WindowHasSpace(p) {
		t.Fatalf("fresh peer should have window space")
	}
	for i := 0; i < RetransmitRingSize; i++ {
		AdvanceLocalSeq(p)
	}
	if WindowHasSpace(p) {
		t.Fatalf("window should be full once outstanding frames reach ring capacity")
	}
	UpdateSequenceAck(p, p.LocalSeq, 0)
	if !WindowHasSpace(p) {
		t.Fatalf("window should reopen once fully acknowledged")
	}
}

func TestRetransmitRing(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	p.PutRetransmit(5, []byte("hello"))
	got, ok := p.GetRetransmit(5)
	if !ok || string(got) != "hello" {
		t.Fatalf("GetRetransmit(5) = %q, %v", got, ok)
	}
	if _, ok := p.GetRetransmit(21); ok {
		t.Fatalf("slot 21 (same ring index as 5) should not satisfy a request for seq 21 before it's been sent")
	}
}

func TestMaybeRequestRetransmitOnlyFiresWhenWindowFull(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	MaybeRequestRetransmit(p)
	if p.RetransmitRequested {
		t.Fatalf("a fresh peer's window has space; no retransmit should be requested")
	}

	for i := 0; i < RetransmitRingSize; i++ {
		AdvanceLocalSeq(p)
	}
	MaybeRequestRetransmit(p)
	if !p.RetransmitRequested {
		t.Fatalf("expected a retransmit request once the window fills")
	}
	if p.RetransmitSeq != p.RemoteSeqAck+1 {
		t.Fatalf("RetransmitSeq = %d, want the oldest outstanding sequence %d", p.RetransmitSeq, p.RemoteSeqAck+1)
	}

	ClearRetransmit(p)
	if p.RetransmitRequested {
		t.Fatalf("ClearRetransmit should reset the flag")
	}
}

func TestCandidateRanking(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	now := time.Unix(1000, 0)
	p.Suspect([8]byte{1}, 1, 5, now)
	p.Suspect([8]byte{2}, 1, 9, now)
	p.Suspect([8]byte{3}, 1, 9, now.Add(time.Second))

	best, ok := p.BestCandidate()
	if !ok {
		t.Fatalf("expected a best candidate")
	}
	if best.Bid != [8]byte{3} {
		t.Fatalf("best candidate = %x, want tie-break winner %x", best.Bid, [8]byte{3})
	}
}

func TestTxPhaseProgression(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	p.Suspect([8]byte{9}, 2, 1, time.Now())
	if !NextTransfer(p) {
		t.Fatalf("expected NextTransfer to start a transfer")
	}
	if p.TxPhase != TxPhaseManifest {
		t.Fatalf("phase = %v, want TxPhaseManifest", p.TxPhase)
	}
	AdvancePhase(p)
	AdvancePhase(p)
	AdvancePhase(p)
	if p.TxPhase != TxPhaseDone {
		t.Fatalf("phase = %v, want TxPhaseDone", p.TxPhase)
	}
}

func TestAckTransferStopsInProgressTransfer(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	p.StartTransfer([8]byte{4}, 1)
	AckTransfer(p, [8]byte{4}, 2)
	if p.TxPhase != TxPhaseDone {
		t.Fatalf("a BAR at a newer version should end the in-progress transfer")
	}
}

func TestPeerTableEviction(t *testing.T) {
	tab := NewPeerTable(2, 3, nil)
	tab.GetOrCreate([6]byte{1})
	tab.GetOrCreate([6]byte{2})
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}
	tab.GetOrCreate([6]byte{3})
	if tab.Len() != 2 {
		t.Fatalf("Len() after eviction = %d, want 2", tab.Len())
	}
}

func TestSuspectLacksHookResolvesAndRanks(t *testing.T) {
	p := NewPeer([6]byte{1}, 3)
	resolve := func(fp [8]byte) ([8]byte, uint64, bool) {
		return [8]byte{42}, 7, true
	}
	hook := SuspectLacksHook(p, resolve, time.Now())
	hook(synctree.Key{Payload: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, PrefixLen: synctree.KeyBits})

	best, ok := p.BestCandidate()
	if !ok {
		t.Fatalf("expected the hook to add a candidate")
	}
	if best.Bid != [8]byte{42} || best.Version != 7 {
		t.Fatalf("candidate = %+v, want bid 42 version 7", best)
	}
}
