package wire

// Piece record tags. Only two things are selected by the tag byte itself:
// bit 0x20 picks the header layout (set: small, offset fits 20 bits; clear:
// large, offset needs the 16-bit high extension too), and the low bit
// (0x01) is the end-of-item flag, set when this slice ends at the end of
// its stream (manifest or body). Manifest-vs-body is carried separately,
// as the top bit of the offset/length compound below — not in the tag —
// matching rxmessages.c's own reading of these four tags.
const (
	TagPieceSmallMid = 'p'
	TagPieceSmallEnd = 'q'
	TagPieceLargeMid = 'P'
	TagPieceLargeEnd = 'Q'
)

// PieceHeaderSizeSmall is the header size (tag included) for a
// small-offset piece; PieceHeaderSizeLarge for a large-offset one. The
// piece's payload bytes (Length of them) immediately follow the header and
// are not part of either constant.
const (
	PieceHeaderSizeSmall = 1 + 8 + 8 + 4
	PieceHeaderSizeLarge = 1 + 8 + 8 + 6
)

// MaxPieceLength is the largest payload a single piece record can carry:
// an 11-bit length field.
const MaxPieceLength = 1<<11 - 1

// offsetSmallLimit is the largest offset a 20-bit low field can address
// without needing the 16-bit high extension.
const offsetSmallLimit = 1 << 20

// compoundManifestBit marks IsManifest as bit 31 of the offset/length
// compound: offsetLow20 (bits 0-19) and length11 (bits 20-30) only use 31
// of the compound's 32 bits, leaving the top bit free.
const compoundManifestBit = 1 << 31

// PieceHeader is the fixed-size header of a piece record; the payload
// bytes follow it in the frame and are sliced out by the caller using
// Length.
type PieceHeader struct {
	IsManifest bool
	// IsEnd marks this slice as ending at the end of its stream (manifest
	// or body), letting the receiver learn the stream's total length
	// (offset+Length) without waiting for a separate Length record.
	IsEnd     bool
	BidPrefix [8]byte
	Version   uint64
	Offset    uint64
	Length    uint16
}

// tag picks the record tag for h, choosing the small or large header
// layout depending on whether Offset fits in 20 bits, and the end-of-item
// bit depending on IsEnd.
func (h PieceHeader) tag() byte {
	large := h.Offset >= offsetSmallLimit
	switch {
	case !large && !h.IsEnd:
		return TagPieceSmallMid
	case !large && h.IsEnd:
		return TagPieceSmallEnd
	case large && !h.IsEnd:
		return TagPieceLargeMid
	default:
		return TagPieceLargeEnd
	}
}

// EncodePieceHeader appends the wire encoding of h (not including its
// payload bytes) to buf.
func EncodePieceHeader(buf []byte, h PieceHeader) []byte {
	tag := h.tag()
	out := append(buf, tag)
	out = append(out, h.BidPrefix[:]...)
	out = leAppend64(out, h.Version)

	offsetLow20 := uint32(h.Offset & (offsetSmallLimit - 1))
	length11 := uint32(h.Length & MaxPieceLength)
	compound := offsetLow20 | length11<<20
	if h.IsManifest {
		compound |= compoundManifestBit
	}

	if tag == TagPieceLargeMid || tag == TagPieceLargeEnd {
		offsetHigh16 := uint32((h.Offset >> 20) & 0xFFFF)
		var tmp [6]byte
		tmp[0] = byte(compound)
		tmp[1] = byte(compound >> 8)
		tmp[2] = byte(compound >> 16)
		tmp[3] = byte(compound >> 24)
		tmp[4] = byte(offsetHigh16)
		tmp[5] = byte(offsetHigh16 >> 8)
		out = append(out, tmp[:]...)
	} else {
		out = leAppend32(out, compound)
	}
	return out
}

// DecodePieceHeader parses a piece header from the front of buf, returning
// the remaining bytes (payload followed by whatever comes after it) and
// the header. The caller is responsible for slicing off Length payload
// bytes from the front of the returned remainder.
func DecodePieceHeader(buf []byte) (PieceHeader, []byte, error) {
	if len(buf) == 0 {
		return PieceHeader{}, nil, errShort("piece header", 1, 0)
	}
	tag := buf[0]
	var headerSize int
	var isEnd, large bool
	switch tag {
	case TagPieceSmallMid:
		isEnd, large, headerSize = false, false, PieceHeaderSizeSmall
	case TagPieceSmallEnd:
		isEnd, large, headerSize = true, false, PieceHeaderSizeSmall
	case TagPieceLargeMid:
		isEnd, large, headerSize = false, true, PieceHeaderSizeLarge
	case TagPieceLargeEnd:
		isEnd, large, headerSize = true, true, PieceHeaderSizeLarge
	default:
		return PieceHeader{}, nil, errTag(tag)
	}
	if len(buf) < headerSize {
		return PieceHeader{}, nil, errShort("piece header", headerSize, len(buf))
	}

	var h PieceHeader
	h.IsEnd = isEnd
	p := buf[1:]
	copy(h.BidPrefix[:], p[:8])
	h.Version = le64(p[8:16])

	rest := p[16:]
	var compound uint32
	var offsetHigh16 uint32
	if large {
		compound = uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16 | uint32(rest[3])<<24
		offsetHigh16 = uint32(rest[4]) | uint32(rest[5])<<8
	} else {
		compound = le32(rest[:4])
	}
	h.IsManifest = compound&compoundManifestBit != 0
	offsetLow20 := compound & (offsetSmallLimit - 1)
	h.Length = uint16((compound >> 20) & MaxPieceLength)
	h.Offset = uint64(offsetLow20) | uint64(offsetHigh16)<<20

	return h, buf[headerSize:], nil
}
