package wire

// TagBAR identifies a Bundle Announcement Record: a peer advertising that
// it holds a given bundle version, for bundles it is not actively
// transferring.
const TagBAR = 'B'

// BARSize is the encoded size in bytes of a BAR record, tag included.
const BARSize = 1 + 8 + 8 + 4 + 1

// BAR announces that the sender holds BidPrefix at Version, intended for
// the peer named by RecipientPrefix (the all-zero prefix means "anyone").
// SizeClass is an opaque hint about the bundle's rough size, coarse enough
// to fit one byte, used only to prioritise transfer order.
type BAR struct {
	BidPrefix       [8]byte
	Version         uint64
	RecipientPrefix [4]byte
	SizeClass       byte
}

// EncodeBAR appends the wire encoding of b to buf.
func EncodeBAR(buf []byte, b BAR) []byte {
	out := append(buf, TagBAR)
	out = append(out, b.BidPrefix[:]...)
	out = leAppend64(out, b.Version)
	out = append(out, b.RecipientPrefix[:]...)
	out = append(out, b.SizeClass)
	return out
}

// DecodeBAR parses a BAR record from the front of buf (tag byte included),
// returning the remaining bytes after it.
func DecodeBAR(buf []byte) (BAR, []byte, error) {
	if len(buf) < BARSize {
		return BAR{}, nil, errShort("BAR", BARSize, len(buf))
	}
	if buf[0] != TagBAR {
		return BAR{}, nil, errTag(buf[0])
	}
	var b BAR
	p := buf[1:]
	copy(b.BidPrefix[:], p[:8])
	b.Version = le64(p[8:16])
	copy(b.RecipientPrefix[:], p[16:20])
	b.SizeClass = p[20]
	return b, buf[BARSize:], nil
}
