package wire

// PatchRetransmitAck returns a copy of a previously-sent frame with its
// outer header's is_retransmit bit set and, if it carries a Sync-tree
// block, that block's ack and bitmap bytes refreshed to ack/bitmap. The
// rest of the frame — every other record, and the tree records themselves
// — is byte-identical to what was originally sent: only the
// acknowledgement state is allowed to be stale by the time a retransmit is
// needed, per §9's treatment of the is_retransmit bit.
func PatchRetransmitAck(frame []byte, ack byte, bitmap uint16) []byte {
	if len(frame) < FrameHeaderSize {
		return frame
	}
	out := append([]byte(nil), frame...)
	out[7] |= 0x80

	body := out[FrameHeaderSize:]
	for len(body) > 0 {
		kind, err := PeekKind(body)
		if err != nil {
			return out
		}
		switch kind {
		case KindSyncTree:
			if len(body) < SyncTreeHeaderSize {
				return out
			}
			// Layout (see EncodeSyncTreeHeader): tag[0], recipient[1:4],
			// LocalSeq[4], RemoteSeqAck[5], RemoteSeqBitmap[6:8].
			body[5] = ack
			body[6] = byte(bitmap)
			body[7] = byte(bitmap >> 8)
			return out
		case KindBAR:
			if len(body) < BARSize {
				return out
			}
			body = body[BARSize:]
		case KindLength:
			if len(body) < LengthSize {
				return out
			}
			body = body[LengthSize:]
		case KindPiece:
			ph, rest, err := DecodePieceHeader(body)
			if err != nil || len(rest) < int(ph.Length) {
				return out
			}
			body = rest[ph.Length:]
		case KindRequest:
			if len(body) < RequestSize {
				return out
			}
			body = body[RequestSize:]
		default:
			return out
		}
	}
	return out
}
