// Package reconsync implements a low-bandwidth, asynchronous
// content-synchronisation engine: peers exchange small frames over an
// unreliable, narrow link and converge on which bundles each is missing via
// an XOR-summarised sync tree, then transfer the missing bytes as a stream
// of small, re-orderable pieces.
//
// The engine is single-threaded and non-blocking: OnFrame and BuildFrame
// never block on I/O, and nothing here spawns a goroutine. A host program
// is expected to call OnTick periodically, OnFrame whenever a frame
// arrives, and BuildFrame whenever it has airtime to send one.
package reconsync

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/servalproject/reconsync/internal/fingerprint"
	"github.com/servalproject/reconsync/internal/reassembly"
	"github.com/servalproject/reconsync/internal/scheduler"
	"github.com/servalproject/reconsync/internal/synctree"
	"github.com/servalproject/reconsync/internal/treewire"
	"github.com/servalproject/reconsync/internal/wire"
)

// ErrReassemblyAborted is returned by OnFrame when a piece cannot be
// absorbed (for example, its declared length does not fit the remaining
// frame). Per the engine's error policy this is never fatal to the
// session: the caller drops the current frame and continues.
var ErrReassemblyAborted = errors.New("reconsync: reassembly aborted")

// Engine is one peer's view of the sync mesh. The zero value is not ready
// to use; construct with NewEngine.
type Engine struct {
	cfg   Config
	store Store

	peers    *scheduler.PeerTable
	partials *reassembly.Table

	fpIndex map[[8]byte]BundleMeta

	pendingRequests map[[6]byte][]wire.Request
	pendingPieces   map[[6]byte][]outgoingPiece
}

type outgoingPiece struct {
	header  wire.PieceHeader
	payload []byte
}

// NewEngine constructs an Engine over store, seeding its fingerprint index
// from every bundle store already holds.
func NewEngine(cfg Config, store Store) *Engine {
	e := &Engine{
		cfg:             cfg,
		store:           store,
		peers:           scheduler.NewPeerTable(cfg.MaxPeers, cfg.MaxRetries, nil),
		partials:        reassembly.NewTable(cfg.MaxPartials, nil),
		fpIndex:         make(map[[8]byte]BundleMeta),
		pendingRequests: make(map[[6]byte][]wire.Request),
		pendingPieces:   make(map[[6]byte][]outgoingPiece),
	}
	for _, m := range store.AllBundles() {
		e.indexBundle(m)
	}
	return e
}

func (e *Engine) deriveFP(m BundleMeta) [8]byte {
	return fingerprint.Derive(e.cfg.Salt, m.Bid[:], m.FileHash, m.Length, m.Version)
}

func (e *Engine) indexBundle(m BundleMeta) {
	e.fpIndex[e.deriveFP(m)] = m
}

func (e *Engine) resolve(fp [8]byte) (bid [8]byte, version uint64, ok bool) {
	m, ok := e.fpIndex[fp]
	return m.Bid, m.Version, ok
}

// AddLocalBundle registers a bundle as locally held (typically just after
// SaveBundle), folding its fingerprint into every currently-tracked peer's
// sync tree so the next BuildMessage for each offers it.
func (e *Engine) AddLocalBundle(m BundleMeta) {
	e.indexBundle(m)
	key := synctree.Key{Payload: e.deriveFP(m), PrefixLen: synctree.KeyBits}
	for _, p := range e.peers.All() {
		p.Tree.Add(key)
	}
}

// seedPeerTree folds every currently-known local bundle into a freshly
// discovered peer's tree, so it starts out summarising the same set of
// fingerprints every other peer's tree does.
func (e *Engine) seedPeerTree(p *scheduler.Peer) {
	for fp := range e.fpIndex {
		p.Tree.Add(synctree.Key{Payload: fp, PrefixLen: synctree.KeyBits})
	}
}

func (e *Engine) getOrCreatePeer(sidPrefix [6]byte) *scheduler.Peer {
	if p, ok := e.peers.Get(sidPrefix); ok {
		return p
	}
	p := e.peers.GetOrCreate(sidPrefix)
	e.seedPeerTree(p)
	return p
}

// ActivePeers returns the SID prefixes of up to Config.StuffingFanout peers
// chosen at random from everyone currently tracked: the packet-stuffing
// loop's bound on how many peers get airtime in one pass over the
// transport, rather than a host iterating every known peer every tick. A
// nil rng uses a fresh fixed-seed source on each call.
func (e *Engine) ActivePeers(rng *rand.Rand) [][6]byte {
	n := e.cfg.StuffingFanout
	if n <= 0 {
		n = len(e.peers.All())
	}
	chosen := scheduler.SelectForStuffing(e.peers.All(), n, rng)
	out := make([][6]byte, len(chosen))
	for i, p := range chosen {
		out[i] = p.SIDPrefix
	}
	return out
}

// PeerStatuses returns a snapshot of every currently-tracked peer.
func (e *Engine) PeerStatuses() []PeerStatus {
	all := e.peers.All()
	out := make([]PeerStatus, 0, len(all))
	for _, p := range all {
		out = append(out, newPeerStatus(p))
	}
	return out
}

// OnFrame processes one received frame. A framing error aborts processing
// of the rest of this frame only; the session continues.
func (e *Engine) OnFrame(data []byte, now time.Time) error {
	hdr, buf, err := wire.DecodeFrameHeader(data)
	if err != nil {
		return err
	}

	peer := e.getOrCreatePeer(hdr.SenderSIDPrefix)
	peer.LastSeen = now

	for len(buf) > 0 {
		kind, err := wire.PeekKind(buf)
		if err != nil {
			return err
		}
		switch kind {
		case wire.KindBAR:
			var bar wire.BAR
			bar, buf, err = wire.DecodeBAR(buf)
			if err != nil {
				return err
			}
			e.handleBAR(peer, bar, now)

		case wire.KindLength:
			var l wire.Length
			l, buf, err = wire.DecodeLength(buf)
			if err != nil {
				return err
			}
			e.handleLength(peer, l)

		case wire.KindPiece:
			var ph wire.PieceHeader
			ph, buf, err = wire.DecodePieceHeader(buf)
			if err != nil {
				return err
			}
			if len(buf) < int(ph.Length) {
				return fmt.Errorf("%w: piece declares %d bytes, only %d remain", ErrReassemblyAborted, ph.Length, len(buf))
			}
			payload := buf[:ph.Length]
			buf = buf[ph.Length:]
			e.handlePiece(peer, ph, payload, now)

		case wire.KindRequest:
			var req wire.Request
			req, buf, err = wire.DecodeRequest(buf)
			if err != nil {
				return err
			}
			e.handleRequest(peer, req)

		case wire.KindSyncTree:
			var sh wire.SyncTreeHeader
			sh, buf, err = wire.DecodeSyncTreeHeader(buf)
			if err != nil {
				return err
			}
			scheduler.UpdateSequenceAck(peer, sh.RemoteSeqAck, sh.RemoteSeqBitmap)
			hook := scheduler.SuspectLacksHook(peer, e.resolve, now)
			if err := treewire.ApplyMessage(peer.Tree, buf, hook); err != nil {
				return err
			}
			buf = nil // the sync-tree block fills the rest of the frame

		default:
			return fmt.Errorf("%w: unhandled record kind %q", wire.ErrFraming, byte(kind))
		}
	}
	return nil
}

func (e *Engine) handleBAR(peer *scheduler.Peer, bar wire.BAR, now time.Time) {
	scheduler.OnBAR(peer, bar.BidPrefix, bar.Version, now)

	local, ok := e.store.Lookup(bar.BidPrefix)
	if !ok || local.Version < bar.Version {
		e.pendingRequests[peer.SIDPrefix] = append(e.pendingRequests[peer.SIDPrefix], wire.Request{
			TargetSIDPrefix: truncate2(peer.SIDPrefix),
			BidPrefix:       bar.BidPrefix,
			IsManifest:      true,
			Offset:          0,
			SizeClass:       bar.SizeClass,
		})
	}
}

func (e *Engine) handleLength(peer *scheduler.Peer, l wire.Length) {
	slot := e.partialFor(peer, l.BidPrefix, l.Version)
	if l.IsManifest {
		slot.SetManifestLength(uint64(l.PartLength))
	} else {
		slot.SetBodyLength(uint64(l.PartLength))
	}
	e.checkComplete(peer, l.BidPrefix, l.Version, slot)
}

func (e *Engine) handlePiece(peer *scheduler.Peer, ph wire.PieceHeader, payload []byte, now time.Time) {
	slot := e.partialFor(peer, ph.BidPrefix, ph.Version)
	end := ph.Offset + uint64(len(payload))
	if ph.IsManifest {
		slot.AbsorbManifestPiece(ph.Offset, payload)
		if ph.IsEnd {
			slot.SetManifestLength(end)
		}
	} else {
		slot.AbsorbBodyPiece(ph.Offset, payload)
		if ph.IsEnd {
			slot.SetBodyLength(end)
		}
	}
	e.checkComplete(peer, ph.BidPrefix, ph.Version, slot)
}

func (e *Engine) handleRequest(peer *scheduler.Peer, req wire.Request) {
	local, ok := e.store.Lookup(req.BidPrefix)
	if !ok {
		return
	}
	length := int(req.SizeClass) + 1
	if length > wire.MaxPieceLength {
		length = wire.MaxPieceLength
	}
	var payload []byte
	var err error
	if req.IsManifest {
		payload, err = e.store.FetchManifest(req.BidPrefix, local.Version)
	} else {
		payload, err = e.store.FetchBodyRange(req.BidPrefix, local.Version, uint64(req.Offset), length)
	}
	if err != nil || len(payload) == 0 {
		return
	}
	// FetchManifest always hands back the whole manifest from offset 0, so
	// a manifest reply is always the end of its stream; a body reply ends
	// its stream once it reaches the bundle's declared total length.
	isEnd := req.IsManifest || uint64(req.Offset)+uint64(len(payload)) >= local.Length
	e.pendingPieces[peer.SIDPrefix] = append(e.pendingPieces[peer.SIDPrefix], outgoingPiece{
		header: wire.PieceHeader{
			IsManifest: req.IsManifest,
			IsEnd:      isEnd,
			BidPrefix:  req.BidPrefix,
			Version:    local.Version,
			Offset:     uint64(req.Offset),
			Length:     uint16(len(payload)),
		},
		payload: payload,
	})
}

func (e *Engine) partialFor(peer *scheduler.Peer, bid [8]byte, version uint64) *reassembly.Partial {
	key := reassembly.SlotKey{Peer: peer.SIDPrefix, Bid: bid, Version: version}
	if slot, ok := e.partials.Get(key); ok {
		return slot
	}
	slot := e.partials.Start(key, version)
	if slot.IsJournal() {
		if existing, ok := e.store.ExistingBody(bid); ok {
			slot.PreloadBody(existing)
		}
	}
	return slot
}

func (e *Engine) checkComplete(peer *scheduler.Peer, bid [8]byte, version uint64, slot *reassembly.Partial) {
	if !slot.Complete() {
		return
	}
	meta := BundleMeta{Bid: bid, Version: version, Length: uint64(len(slot.BodyBytes()))}
	if err := e.store.SaveBundle(meta, slot.ManifestBytes(), slot.BodyBytes()); err != nil {
		return
	}
	e.partials.Delete(reassembly.SlotKey{Peer: peer.SIDPrefix, Bid: bid, Version: version})
	e.AddLocalBundle(meta)
}

func truncate2(sid [6]byte) [2]byte { return [2]byte{sid[0], sid[1]} }

// OnTick performs periodic housekeeping: it starts a queued transfer for
// any peer currently idle so BuildFrame has something to send the next
// time it's called for that peer, and flags a stalled peer's oldest
// unacknowledged frame for retransmission.
func (e *Engine) OnTick(now time.Time) {
	for _, p := range e.peers.All() {
		scheduler.NextTransfer(p)
		scheduler.MaybeRequestRetransmit(p)
	}
}

// BuildFrame assembles one outgoing frame addressed broadcast-style but
// primarily intended for peer, filling up to Config.MTU bytes. It returns
// nil only when Config.MTU leaves no room past the frame header; otherwise
// the frame holds at least the header, and, while the peer's window has
// space, a sync-tree block (the root heartbeat if nothing else is queued).
func (e *Engine) BuildFrame(senderSID [6]byte, peerSID [6]byte, now time.Time) []byte {
	peer := e.getOrCreatePeer(peerSID)
	budget := e.cfg.MTU
	if budget <= wire.FrameHeaderSize {
		return nil
	}

	if peer.RetransmitRequested {
		scheduler.ClearRetransmit(peer)
		if frame, ok := peer.GetRetransmit(peer.RetransmitSeq); ok {
			return wire.PatchRetransmitAck(frame, peer.RemoteSeqAck, peer.RemoteSeqBitmap)
		}
	}

	sentSeq := peer.LocalSeq
	buf := wire.EncodeFrameHeader(nil, wire.FrameHeader{SenderSIDPrefix: senderSID, MsgNumber: uint16(sentSeq)})
	remaining := budget - len(buf)

	if reqs := e.pendingRequests[peerSID]; len(reqs) > 0 {
		for len(reqs) > 0 && remaining >= wire.RequestSize {
			buf = wire.EncodeRequest(buf, reqs[0])
			remaining -= wire.RequestSize
			reqs = reqs[1:]
		}
		e.pendingRequests[peerSID] = reqs
	}

	if pieces := e.pendingPieces[peerSID]; len(pieces) > 0 {
		for len(pieces) > 0 {
			p := pieces[0]
			need := pieceHeaderSize(p.header) + len(p.payload)
			if remaining < need {
				break
			}
			buf = wire.EncodePieceHeader(buf, p.header)
			buf = append(buf, p.payload...)
			remaining -= need
			pieces = pieces[1:]
		}
		e.pendingPieces[peerSID] = pieces
	}

	if scheduler.WindowHasSpace(peer) && remaining >= wire.SyncTreeHeaderSize+treewire.RecordSize {
		shBuf := wire.EncodeSyncTreeHeader(nil, wire.SyncTreeHeader{
			RecipientSIDPrefix: truncate3(peerSID),
			LocalSeq:           sentSeq,
			RemoteSeqAck:       peer.RemoteSeqAck,
			RemoteSeqBitmap:    peer.RemoteSeqBitmap,
		})
		treeBudget := remaining - len(shBuf)
		treeMsg := treewire.BuildMessage(peer.Tree, make([]byte, 0, treeBudget))
		buf = append(buf, shBuf...)
		buf = append(buf, treeMsg...)
		remaining -= len(shBuf) + len(treeMsg)
		scheduler.AdvanceLocalSeq(peer)
	}

	buf, remaining = e.appendTransferRecords(peer, buf, remaining)

	peer.PutRetransmit(sentSeq, append([]byte(nil), buf...))
	return buf
}

// maxManifestBytes bounds how much of a bundle's manifest the active push
// transfer ever sends, per §4.6 ("up to 1024 bytes of manifest").
const maxManifestBytes = 1024

// appendTransferRecords drives peer's active push transfer (if any)
// forward by one step, appending whatever fits in the remaining budget:
// a manifest slice, a length advertisement, or a body slice, tracking
// TxManifestOffset/TxBodyOffset as it goes. It advances peer.TxPhase
// through Manifest → Length → Body → Done as each stage is exhausted.
func (e *Engine) appendTransferRecords(peer *scheduler.Peer, buf []byte, remaining int) ([]byte, int) {
	for {
		switch peer.TxPhase {
		case scheduler.TxPhaseManifest:
			manifest, err := e.store.FetchManifest(peer.TxBid, peer.TxVersion)
			if err != nil {
				scheduler.AdvancePhase(peer)
				scheduler.AdvancePhase(peer)
				continue
			}
			total := len(manifest)
			if total > maxManifestBytes {
				total = maxManifestBytes
			}
			if peer.TxManifestOffset == 0 && remaining >= wire.LengthSize {
				buf = wire.EncodeLength(buf, wire.Length{
					BidPrefix: peer.TxBid, Version: peer.TxVersion,
					IsManifest: true, PartLength: uint32(total),
				})
				remaining -= wire.LengthSize
			}
			if int(peer.TxManifestOffset) >= total {
				scheduler.AdvancePhase(peer)
				continue
			}
			header := wire.PieceHeader{IsManifest: true, BidPrefix: peer.TxBid, Version: peer.TxVersion, Offset: peer.TxManifestOffset}
			headerSize := pieceHeaderSize(header)
			if remaining < headerSize+1 {
				return buf, remaining
			}
			length := total - int(peer.TxManifestOffset)
			if max := remaining - headerSize; length > max {
				length = max
			}
			if length > wire.MaxPieceLength {
				length = wire.MaxPieceLength
			}
			header.Length = uint16(length)
			header.IsEnd = int(peer.TxManifestOffset)+length >= total
			buf = wire.EncodePieceHeader(buf, header)
			buf = append(buf, manifest[peer.TxManifestOffset:int(peer.TxManifestOffset)+length]...)
			remaining -= headerSize + length
			peer.TxManifestOffset += uint64(length)
			return buf, remaining

		case scheduler.TxPhaseLength:
			meta, ok := e.store.Lookup(peer.TxBid)
			if !ok {
				scheduler.AdvancePhase(peer)
				continue
			}
			if remaining < wire.LengthSize {
				return buf, remaining
			}
			buf = wire.EncodeLength(buf, wire.Length{
				BidPrefix: peer.TxBid, Version: peer.TxVersion,
				IsManifest: false, PartLength: uint32(meta.Length),
			})
			remaining -= wire.LengthSize
			scheduler.AdvancePhase(peer)
			return buf, remaining

		case scheduler.TxPhaseBody:
			meta, ok := e.store.Lookup(peer.TxBid)
			if !ok || peer.TxBodyOffset >= meta.Length {
				scheduler.AdvancePhase(peer)
				continue
			}
			header := wire.PieceHeader{IsManifest: false, BidPrefix: peer.TxBid, Version: peer.TxVersion, Offset: peer.TxBodyOffset}
			headerSize := pieceHeaderSize(header)
			if remaining < headerSize+1 {
				return buf, remaining
			}
			length := wire.MaxPieceLength
			if max := remaining - headerSize; length > max {
				length = max
			}
			payload, err := e.store.FetchBodyRange(peer.TxBid, peer.TxVersion, peer.TxBodyOffset, length)
			if err != nil || len(payload) == 0 {
				scheduler.AdvancePhase(peer)
				continue
			}
			header.Length = uint16(len(payload))
			header.IsEnd = peer.TxBodyOffset+uint64(len(payload)) >= meta.Length
			buf = wire.EncodePieceHeader(buf, header)
			buf = append(buf, payload...)
			remaining -= headerSize + len(payload)
			peer.TxBodyOffset += uint64(len(payload))
			return buf, remaining

		default:
			return buf, remaining
		}
	}
}

func pieceHeaderSize(h wire.PieceHeader) int {
	if h.Offset >= 1<<20 {
		return wire.PieceHeaderSizeLarge
	}
	return wire.PieceHeaderSizeSmall
}

func truncate3(sid [6]byte) [3]byte { return [3]byte{sid[0], sid[1], sid[2]} }
