package synctree

// queueNode (re-)arms node for transmission. Calling it on a node already
// in the queue just re-arms its send state and leaves its queue position
// alone; calling it on a node not in the queue links it in, at the head
// (atHead) so it is offered in the very next message, or at the tail so it
// waits behind whatever is already queued.
//
// Linking a leaf into the queue while a lacks hook is supplied is
// "progress": the hook is told and t.progress resets to zero. BuildMessage's
// own re-queues pass a nil hook and leave progress alone.
func (t *Tree) queueNode(n *Node, atHead bool, lacks SuspectLacksFunc) {
	n.sendState = Queued
	if n.inQueue {
		return
	}
	if n.key.PrefixLen == KeyBits && lacks != nil {
		lacks(n.key)
		t.progress = 0
	}
	n.inQueue = true
	switch {
	case t.txHead == nil:
		t.txHead, t.txTail = n, n
		n.queuedNext = nil
	case atHead:
		n.queuedNext = t.txHead
		t.txHead = n
	default:
		t.txTail.queuedNext = n
		t.txTail = n
		n.queuedNext = nil
	}
}

// queueLeafNodes queues every leaf beneath n, skipping the direct child at
// index except (pass noChild to skip nothing). If n is itself a leaf it is
// queued at the head regardless of except.
func (t *Tree) queueLeafNodes(n *Node, except uint8, lacks SuspectLacksFunc) {
	if n.key.PrefixLen == KeyBits {
		t.queueNode(n, true, lacks)
		return
	}
	n.children.forEach(func(idx uint8, c *Node) {
		if idx == except {
			return
		}
		t.queueLeafNodes(c, noChild, lacks)
	})
}

// deQueue marks n, and every node beneath it, DontSend if it is currently
// Queued (other send states are left alone): the remote peer told us (by
// sending this exact key back) that it already has it.
func deQueue(n *Node) {
	if n.sendState == Queued {
		n.sendState = DontSend
	}
	n.children.forEach(func(_ uint8, c *Node) {
		deQueue(c)
	})
}

// detachQueue unlinks and returns every node currently queued, resetting
// the queue to empty. BuildMessage uses this to take one bounded snapshot
// of "what's owed right now" per call, so a node re-queued while being
// processed is deferred to the next call rather than looping forever
// within one.
func (t *Tree) detachQueue() []*Node {
	var out []*Node
	for n := t.txHead; n != nil; {
		next := n.queuedNext
		n.queuedNext = nil
		n.inQueue = false
		out = append(out, n)
		n = next
	}
	t.txHead, t.txTail = nil, nil
	return out
}

// recordSize is the encoded size in bytes of one tree record on the wire;
// mirrored in internal/treewire, which owns the byte layout.
const recordSize = 10

// BuildMessage fills as much of buf as it can with queued records, offering
// each node up to maxRetries times before flagging it Sent. If nothing was
// queued (or everything queued was already DontSend), it falls back to
// emitting the root summary alone, which doubles as a minimum periodic
// heartbeat a peer can use to notice the tree exists at all.
func (t *Tree) BuildMessage(buf []byte, encode func(buf []byte, k Key) []byte) []byte {
	out := buf[:0]
	t.sentMessages++
	t.progress++

	pending := t.detachQueue()
	var requeue []*Node
	for _, n := range pending {
		if len(out)+recordSize > cap(buf) {
			requeue = append(requeue, n)
			continue
		}
		if n.sendState != Queued {
			continue
		}
		out = encode(out, n.key)
		t.sentRecords++
		n.sentCount++
		if n.sentCount >= t.maxRetries {
			n.sendState = Sent
		} else {
			requeue = append(requeue, n)
		}
	}
	for _, n := range requeue {
		t.queueNode(n, false, nil)
	}

	if len(out) == 0 {
		out = encode(out, t.root.key)
		t.sentRoot++
	}
	return out
}

// OnRecord folds one received record into the tree's convergence walk: it
// either discards it (we already have this summary, so de-queue it and move
// on), queues what we're missing, or learns a brand-new fingerprint via Add.
//
// This is the receiver side of the protocol, and it is genuinely delicate:
// the control flow below follows the peer's reasoning step for step rather
// than a cleaner-looking reformulation, because reordering any of these
// checks changes which keys get queued and breaks convergence.
func (t *Tree) OnRecord(rec Key, lacks SuspectLacksFunc) error {
	if rec.MinPrefixLen > rec.PrefixLen || rec.PrefixLen > KeyBits {
		return ErrMalformedRecord
	}
	t.recvRecords++

	node := t.root
	var prefixLen uint8

	for {
		if Equal(rec, node.key) {
			t.recvUninterest++
			deQueue(node)
			return nil
		}

		if rec.PrefixLen <= prefixLen {
			if node.key.PrefixLen > rec.PrefixLen {
				t.queueNode(node, true, lacks)
				return nil
			}
			diff := diffKey(rec, node.key)
			matched := false
			testNode := node
			testPrefix := prefixLen
			for testNode != nil {
				if Equal(diff, testNode.key) {
					t.queueLeafNodes(node, noChild, lacks)
					matched = true
					break
				}
				if testNode.key.PrefixLen == KeyBits {
					break
				}
				childIdx := getBits(testPrefix, StepBits, diff.Payload)
				if testPrefix < testNode.key.PrefixLen {
					nodeIdx := getBits(testPrefix, StepBits, testNode.key.Payload)
					if nodeIdx != childIdx {
						break
					}
				} else {
					child, ok := testNode.children.get(childIdx)
					if !ok {
						break
					}
					testNode = child
				}
				testPrefix += StepBits
			}
			if !matched {
				node.children.forEach(func(_ uint8, c *Node) {
					t.queueNode(c, false, lacks)
				})
			}
			return nil
		}

		keyIndex := getBits(prefixLen, StepBits, rec.Payload)
		for prefixLen < node.key.PrefixLen && prefixLen < rec.PrefixLen {
			existingIndex := getBits(prefixLen, StepBits, node.key.Payload)
			if keyIndex != existingIndex {
				if prefixLen >= rec.MinPrefixLen {
					t.queueLeafNodes(node, noChild, lacks)
					if rec.PrefixLen != KeyBits {
						t.queueNode(node, false, lacks)
					}
				}
				if rec.PrefixLen == KeyBits {
					t.Add(rec)
				}
				return nil
			}
			prefixLen += StepBits
			keyIndex = getBits(prefixLen, StepBits, rec.Payload)
		}

		if rec.PrefixLen <= prefixLen {
			continue
		}

		if rec.MinPrefixLen <= node.key.PrefixLen {
			t.progress = 0
			t.queueLeafNodes(node, keyIndex, lacks)
		}

		child, ok := node.children.get(keyIndex)
		if !ok {
			if rec.PrefixLen == KeyBits {
				t.progress = 0
				t.Add(rec)
			} else {
				t.queueNode(node, false, lacks)
			}
			return nil
		}
		node = child
		prefixLen += StepBits
	}
}
