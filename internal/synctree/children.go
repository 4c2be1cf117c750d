package synctree

import "github.com/bits-and-blooms/bitset"

// childSet is a popcount-compressed array of up to Children node pointers,
// the same compaction trick the teacher's internal/sparse.Array uses for its
// 256-wide stride arrays: a presence bitmap plus a dense slice holding only
// the occupied slots, so a mostly-empty 16-wide node costs little more than
// its bitmap.
type childSet struct {
	present *bitset.BitSet
	nodes   []*Node
}

func newChildSet() childSet {
	return childSet{present: bitset.New(Children)}
}

func (c *childSet) rank(i uint8) int {
	n := 0
	for j := uint8(0); j < i; j++ {
		if c.present.Test(uint(j)) {
			n++
		}
	}
	return n
}

func (c *childSet) get(i uint8) (*Node, bool) {
	if c.present == nil || !c.present.Test(uint(i)) {
		return nil, false
	}
	return c.nodes[c.rank(i)], true
}

func (c *childSet) set(i uint8, n *Node) {
	if c.present == nil {
		c.present = bitset.New(Children)
	}
	r := c.rank(i)
	if c.present.Test(uint(i)) {
		c.nodes[r] = n
		return
	}
	c.present.Set(uint(i))
	c.nodes = append(c.nodes, nil)
	copy(c.nodes[r+1:], c.nodes[r:])
	c.nodes[r] = n
}

// forEach visits every present child in ascending index order.
func (c *childSet) forEach(fn func(idx uint8, n *Node)) {
	if c.present == nil {
		return
	}
	r := 0
	for i := uint8(0); i < Children; i++ {
		if c.present.Test(uint(i)) {
			fn(i, c.nodes[r])
			r++
		}
	}
}
