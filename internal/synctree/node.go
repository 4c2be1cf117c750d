package synctree

// SendState tracks whether a node's key still needs to be offered to the
// remote peer.
type SendState uint8

const (
	// NotSent is the initial state: nothing has told us the peer needs
	// this node yet.
	NotSent SendState = iota
	// Queued means the node is waiting to be encoded into an outbound
	// message.
	Queued
	// Sent means the node has been offered the maximum number of times;
	// we wait for a reaction (or a fresh Add) before offering it again.
	Sent
	// DontSend means something told us in the meantime that the peer
	// already has this, or doesn't need it yet; it sits inert until a
	// future Add or receive event re-arms it.
	DontSend
)

// Node is one node of the sync tree: either an internal node summarising a
// range of the key space (PrefixLen < KeyBits) or a leaf holding one literal
// fingerprint (PrefixLen == KeyBits).
type Node struct {
	key      Key
	children childSet

	sendState SendState
	sentCount uint8

	inQueue    bool
	queuedNext *Node
}

func newNode(key Key) *Node {
	return &Node{key: key, children: newChildSet()}
}

func downgrade(n *Node) {
	if n.sendState == Sent {
		n.sendState = NotSent
	}
	if n.sendState == Queued && n.sentCount > 0 {
		n.sendState = DontSend
	}
}
