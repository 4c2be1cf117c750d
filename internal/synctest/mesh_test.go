package synctest

import (
	"context"
	"testing"
	"time"

	reconsync "github.com/servalproject/reconsync"
	"github.com/servalproject/reconsync/internal/fingerprint"
)

func testConfig() reconsync.Config {
	cfg := reconsync.DefaultConfig(fingerprint.Salt{1, 2, 3, 4, 5, 6, 7, 8})
	cfg.MTU = 512
	return cfg
}

func TestTwoNodeConvergenceOneSided(t *testing.T) {
	cfg := testConfig()
	a := NewNode([6]byte{0xA1}, cfg)
	b := NewNode([6]byte{0xB2}, cfg)

	bid := [8]byte{1, 1, 1, 1, 1, 1, 1, 1}
	manifest := []byte("manifest-bytes")
	body := []byte("this is the body of the bundle being synced across the mesh")
	a.Store.Put(bid, 1, manifest, body)
	a.AddLocalBundle(mustLookup(t, a.Store, bid))

	mesh := NewMesh(a, b)
	rounds, converged, err := RunUntilConverged(context.Background(), mesh, time.Unix(0, 0), 200)
	if err != nil {
		t.Fatalf("mesh round: %v", err)
	}
	if !converged {
		t.Fatalf("mesh did not converge within round budget (ran %d rounds)", rounds)
	}
	if !b.Store.Has(bid, 1, body) {
		t.Fatalf("peer b did not end up with the bundle")
	}
}

func TestThreeNodeMeshConvergesBothDirections(t *testing.T) {
	cfg := testConfig()
	a := NewNode([6]byte{0xA1}, cfg)
	b := NewNode([6]byte{0xB2}, cfg)
	c := NewNode([6]byte{0xC3}, cfg)

	bidA := [8]byte{1}
	bidB := [8]byte{2}
	a.Store.Put(bidA, 1, []byte("manifest-a"), []byte("body contents held only by node a"))
	a.AddLocalBundle(mustLookup(t, a.Store, bidA))
	b.Store.Put(bidB, 1, []byte("manifest-b"), []byte("body contents held only by node b"))
	b.AddLocalBundle(mustLookup(t, b.Store, bidB))

	mesh := NewMesh(a, b, c)
	rounds, converged, err := RunUntilConverged(context.Background(), mesh, time.Unix(0, 0), 300)
	if err != nil {
		t.Fatalf("mesh round: %v", err)
	}
	if !converged {
		t.Fatalf("mesh did not converge within round budget (ran %d rounds)", rounds)
	}
	for _, n := range []*Node{a, b, c} {
		if !n.Store.Has(bidA, 1, []byte("body contents held only by node a")) {
			t.Fatalf("node %v missing bundle a", n.SID)
		}
		if !n.Store.Has(bidB, 1, []byte("body contents held only by node b")) {
			t.Fatalf("node %v missing bundle b", n.SID)
		}
	}
}

func mustLookup(t *testing.T, s *MemStore, bid [8]byte) reconsync.BundleMeta {
	t.Helper()
	m, ok := s.Lookup(bid)
	if !ok {
		t.Fatalf("bundle %x not found in store", bid)
	}
	return m
}
