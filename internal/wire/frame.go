// Package wire implements the byte-level framing of the protocol's packets:
// the outer frame header, and the BAR, Length, Piece, Request and Sync-tree
// record types carried inside it. Every layout here is a hand-packed bit
// format with no byte alignment guarantees, so it is encoded and decoded by
// hand with encoding/binary rather than any schema-driven codec — there is
// no schema a generic encoder could derive these packings from.
package wire

import "encoding/binary"

// FrameHeaderSize is the fixed size in bytes of the outer frame header.
const FrameHeaderSize = 8

// FrameHeader identifies the sender and orders/deduplicates a broadcast
// frame. MsgNumber is a 15-bit counter; IsRetransmit marks a frame as a
// verbatim resend of a previous sequence number rather than a new one.
type FrameHeader struct {
	SenderSIDPrefix [6]byte
	MsgNumber       uint16 // low 15 bits significant
	IsRetransmit    bool
}

// EncodeFrameHeader appends the wire encoding of h to buf.
func EncodeFrameHeader(buf []byte, h FrameHeader) []byte {
	out := append(buf, h.SenderSIDPrefix[:]...)
	lo := byte(h.MsgNumber & 0xFF)
	hi := byte((h.MsgNumber >> 8) & 0x7F)
	if h.IsRetransmit {
		hi |= 0x80
	}
	return append(out, lo, hi)
}

// DecodeFrameHeader parses a FrameHeader from the front of buf, returning
// the remaining bytes after it.
func DecodeFrameHeader(buf []byte) (FrameHeader, []byte, error) {
	if len(buf) < FrameHeaderSize {
		return FrameHeader{}, nil, errShort("frame header", FrameHeaderSize, len(buf))
	}
	var h FrameHeader
	copy(h.SenderSIDPrefix[:], buf[:6])
	lo := buf[6]
	hi := buf[7]
	h.IsRetransmit = hi&0x80 != 0
	h.MsgNumber = uint16(lo) | uint16(hi&0x7F)<<8
	return h, buf[FrameHeaderSize:], nil
}

func le32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }
func le64(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) }

func leAppend32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func leAppend64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
