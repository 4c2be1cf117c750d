// Package synctree implements the XOR-summarised prefix trie at the heart
// of the set-reconciliation protocol: each node summarises a range of the
// 64-bit fingerprint space as the XOR of the fingerprints beneath it, so two
// peers can converge on which fingerprints differ by exchanging O(log n)
// summaries instead of the whole set.
package synctree

import "errors"

// ErrMalformedRecord is returned by OnRecord when a received key's
// MinPrefixLen/PrefixLen fields are out of range.
var ErrMalformedRecord = errors.New("synctree: malformed record")

// SuspectLacksFunc is called once for every leaf fingerprint the tree
// concludes the remote peer is missing, as it walks a received record.
type SuspectLacksFunc func(Key)

// Tree is one side of a sync-tree exchange: a local node, and the transmit
// queue of nodes still owed to the remote peer. The zero value is not
// ready to use; construct with New.
type Tree struct {
	root *Node

	txHead, txTail *Node

	keyCount int
	progress int

	maxRetries uint8

	sentMessages   int
	sentRoot       int
	sentRecords    int
	recvRecords    int
	recvUninterest int
}

// New creates an empty tree. maxRetries bounds how many times a node is
// offered before it is marked Sent and left alone until something changes.
func New(maxRetries uint8) *Tree {
	return &Tree{root: newNode(Key{}), maxRetries: maxRetries}
}

// Len reports the number of distinct fingerprints added to the tree.
func (t *Tree) Len() int { return t.keyCount }

// Progress reports how many consecutive BuildMessage calls have passed
// since an Add or OnRecord last changed this tree's state: BuildMessage
// increments it, Add/OnRecord reset it to zero whenever they learn
// something (a new key, a newly queued node). A caller can use a run of
// BuildMessage calls with no reset between them as a convergence/stall
// signal (see Stalled).
func (t *Tree) Progress() int { return t.progress }

// Stalled reports whether at least threshold build/receive rounds have
// passed with no progress, suggesting this side of the exchange has
// converged (or given up).
func (t *Tree) Stalled(threshold int) bool { return t.progress >= threshold }

// Clear discards every key, resetting the tree to empty.
func (t *Tree) Clear() {
	t.root = newNode(Key{})
	t.txHead, t.txTail = nil, nil
	t.keyCount = 0
	t.progress = 0
}

// Add inserts a leaf fingerprint into the tree, folding it into every
// ancestor's XOR summary along the way. Adding a key the tree already
// contains is a no-op: the tree, its key count and every node's send state
// are left exactly as they were.
func (t *Tree) Add(key Key) {
	key.PrefixLen = KeyBits
	if t.Contains(key) {
		return
	}
	t.keyCount++
	t.progress = 0

	node := t.root
	var parent *Node
	var parentIdx uint8
	var prefixLen uint8
	minPrefixLen := prefixLen

	for {
		childIndex := getBits(prefixLen, StepBits, key.Payload)

		if node.key.PrefixLen == prefixLen {
			xorNodeKey(&node.key, key)
			downgrade(node)
			node.sentCount = 0

			prefixLen += StepBits
			minPrefixLen = prefixLen

			if child, ok := node.children.get(childIndex); ok {
				parent, parentIdx = node, childIndex
				node = child
				continue
			}
			leaf := newNode(Key{Payload: key.Payload, PrefixLen: KeyBits, MinPrefixLen: minPrefixLen})
			node.children.set(childIndex, leaf)
			return
		}

		nodeChildIndex := getBits(prefixLen, StepBits, node.key.Payload)
		if childIndex == nodeChildIndex {
			prefixLen += StepBits
			continue
		}

		// The new key diverges from node strictly inside the range node
		// claims to summarise: interpose a new internal node at this
		// prefix boundary and push the existing subtree one level down.
		split := newNode(Key{PrefixLen: prefixLen, MinPrefixLen: minPrefixLen})
		split.children.set(nodeChildIndex, node)

		node.key.MinPrefixLen = prefixLen + StepBits
		xorChildrenInto(node, &split.key)

		parent.children.set(parentIdx, split)
		node = split
	}
}

// xorChildrenInto folds every leaf fingerprint beneath n into dest, using
// dest's own PrefixLen as the running copy/xor boundary.
func xorChildrenInto(n *Node, dest *Key) {
	if n.key.PrefixLen == KeyBits {
		xorApply(&dest.Payload, dest.PrefixLen, n.key.Payload)
		return
	}
	n.children.forEach(func(_ uint8, c *Node) {
		xorChildrenInto(c, dest)
	})
}

// Contains reports whether key (a leaf fingerprint) has been Added.
func (t *Tree) Contains(key Key) bool {
	key.PrefixLen = KeyBits
	node := t.root
	var prefixLen uint8
	for {
		if Equal(node.key, key) {
			return true
		}
		if node.key.PrefixLen == KeyBits {
			return false
		}
		childIndex := getBits(prefixLen, StepBits, key.Payload)
		if prefixLen < node.key.PrefixLen {
			nodeIndex := getBits(prefixLen, StepBits, node.key.Payload)
			if nodeIndex != childIndex {
				return false
			}
		} else {
			child, ok := node.children.get(childIndex)
			if !ok {
				return false
			}
			node = child
		}
		prefixLen += StepBits
	}
}

// RootDigest returns the current root summary, useful as a cheap
// equality-of-sets probe between two trees built from the same key set.
func (t *Tree) RootDigest() Key { return t.root.key }
