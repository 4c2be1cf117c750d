package wire

// TagLength identifies a Length record: the sender telling the peer the
// total size of one part of a bundle currently being transferred.
const TagLength = 'L'

// LengthSize is the encoded size in bytes of a Length record, tag included.
const LengthSize = 1 + 8 + 8 + 4

// lengthManifestBit marks IsManifest inside the otherwise-unused top bit of
// the length field; a single bundle part is never going to reach 2^31
// bytes on a link this constrained, so the bit is free.
const lengthManifestBit = 1 << 31

// Length announces the total size of one part of BidPrefix at Version:
// the manifest if IsManifest, the body otherwise.
type Length struct {
	BidPrefix  [8]byte
	Version    uint64
	IsManifest bool
	PartLength uint32
}

// EncodeLength appends the wire encoding of l to buf.
func EncodeLength(buf []byte, l Length) []byte {
	out := append(buf, TagLength)
	out = append(out, l.BidPrefix[:]...)
	out = leAppend64(out, l.Version)
	field := l.PartLength
	if l.IsManifest {
		field |= lengthManifestBit
	}
	return leAppend32(out, field)
}

// DecodeLength parses a Length record from the front of buf (tag byte
// included), returning the remaining bytes after it.
func DecodeLength(buf []byte) (Length, []byte, error) {
	if len(buf) < LengthSize {
		return Length{}, nil, errShort("Length", LengthSize, len(buf))
	}
	if buf[0] != TagLength {
		return Length{}, nil, errTag(buf[0])
	}
	var l Length
	p := buf[1:]
	copy(l.BidPrefix[:], p[:8])
	l.Version = le64(p[8:16])
	field := le32(p[16:20])
	l.IsManifest = field&lengthManifestBit != 0
	l.PartLength = field &^ lengthManifestBit
	return l, buf[LengthSize:], nil
}
