// Package treewire turns internal/synctree's Key values into the 10-byte
// wire records exchanged inside a sync-tree frame, and drives a Tree's
// convergence walk over a decoded batch of them. The convergence walk logic
// itself (receiver cmp_key handling, transmit-queue discipline) lives on
// synctree.Tree because it needs direct access to node internals; this
// package is the byte-level boundary around it.
package treewire

import (
	"fmt"

	"github.com/servalproject/reconsync/internal/synctree"
)

// RecordSize is the encoded length in bytes of one sync-tree record: 8
// bytes of key payload followed by MinPrefixLen and PrefixLen.
const RecordSize = 10

// EncodeRecord appends the wire encoding of k to buf and returns the
// extended slice.
func EncodeRecord(buf []byte, k synctree.Key) []byte {
	out := append(buf, k.Payload[:]...)
	return append(out, k.MinPrefixLen, k.PrefixLen)
}

// DecodeRecord parses one record from the front of b.
func DecodeRecord(b []byte) (synctree.Key, error) {
	if len(b) < RecordSize {
		return synctree.Key{}, fmt.Errorf("treewire: record needs %d bytes, got %d", RecordSize, len(b))
	}
	var k synctree.Key
	copy(k.Payload[:], b[:8])
	k.MinPrefixLen = b[8]
	k.PrefixLen = b[9]
	return k, nil
}

// BuildMessage fills buf with as many queued records as fit, per
// synctree.Tree.BuildMessage's retry/heartbeat rules.
func BuildMessage(t *synctree.Tree, buf []byte) []byte {
	return t.BuildMessage(buf, EncodeRecord)
}

// ApplyMessage decodes and applies every whole record in msg to t, in
// order. A trailing partial record (fewer than RecordSize bytes left) is
// silently ignored: sync-tree messages are packed into whatever room was
// left in a frame and are not expected to end on a record boundary. Any
// fully-present-but-invalid record is a framing error and aborts the rest
// of the message, since it indicates buf was corrupted or misinterpreted
// rather than merely truncated.
func ApplyMessage(t *synctree.Tree, msg []byte, lacks synctree.SuspectLacksFunc) error {
	for len(msg) >= RecordSize {
		k, err := DecodeRecord(msg)
		if err != nil {
			return err
		}
		if err := t.OnRecord(k, lacks); err != nil {
			return fmt.Errorf("treewire: %w", err)
		}
		msg = msg[RecordSize:]
	}
	return nil
}
