package wire

// TagSyncTree identifies a Sync-tree block: a short preamble carrying
// sequence/ack state for the addressed peer, followed by zero or more
// 10-byte sync-tree records filling the rest of the frame (decoded by
// internal/treewire, which owns that record's layout).
const TagSyncTree = 'S'

// SyncTreeHeaderSize is the encoded size in bytes of the preamble, tag
// included; tree records follow immediately after it.
const SyncTreeHeaderSize = 1 + 3 + 1 + 1 + 2

// SyncTreeHeader carries the addressed peer and this side's view of the
// sequence-number exchange: LocalSeq is this frame's own sequence number,
// RemoteSeqAck acknowledges the highest contiguous sequence number seen
// from the peer, and RemoteSeqBitmap acknowledges up to 16 further
// sequence numbers beyond that as a bitmap of which have been seen.
type SyncTreeHeader struct {
	RecipientSIDPrefix [3]byte
	LocalSeq           byte
	RemoteSeqAck       byte
	RemoteSeqBitmap    uint16
}

// EncodeSyncTreeHeader appends the wire encoding of h to buf.
func EncodeSyncTreeHeader(buf []byte, h SyncTreeHeader) []byte {
	out := append(buf, TagSyncTree)
	out = append(out, h.RecipientSIDPrefix[:]...)
	out = append(out, h.LocalSeq, h.RemoteSeqAck)
	return leAppend16(out, h.RemoteSeqBitmap)
}

// DecodeSyncTreeHeader parses the preamble from the front of buf (tag byte
// included), returning the remaining bytes — the tree records — after it.
func DecodeSyncTreeHeader(buf []byte) (SyncTreeHeader, []byte, error) {
	if len(buf) < SyncTreeHeaderSize {
		return SyncTreeHeader{}, nil, errShort("sync-tree header", SyncTreeHeaderSize, len(buf))
	}
	if buf[0] != TagSyncTree {
		return SyncTreeHeader{}, nil, errTag(buf[0])
	}
	var h SyncTreeHeader
	p := buf[1:]
	copy(h.RecipientSIDPrefix[:], p[:3])
	h.LocalSeq = p[3]
	h.RemoteSeqAck = p[4]
	h.RemoteSeqBitmap = le16(p[5:7])
	return h, buf[SyncTreeHeaderSize:], nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

func leAppend16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}
