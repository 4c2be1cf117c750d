// Package reassembly tracks the byte ranges of a bundle's manifest and body
// received so far from pieces that can arrive out of order, overlapping,
// or duplicated, and reports when each is complete.
package reassembly

import "sort"

// Segment is one contiguous, received byte range [Start, Start+len(Bytes)).
type Segment struct {
	Start uint64
	Bytes []byte
}

// end returns the exclusive end offset of the segment.
func (s Segment) end() uint64 { return s.Start + uint64(len(s.Bytes)) }

// absorb inserts [off, off+len(data)) into segs, preserving the invariant
// that segs is sorted by Start with no two segments overlapping or
// touching. Bytes already present for an offset are never overwritten by a
// later, possibly stale, delivery of the same range.
func absorb(segs []Segment, off uint64, data []byte) []Segment {
	if len(data) == 0 {
		return segs
	}
	end := off + uint64(len(data))

	idx := sort.Search(len(segs), func(i int) bool { return segs[i].Start >= off })

	if idx > 0 {
		left := segs[idx-1]
		if off >= left.Start && end <= left.end() {
			return segs // fully covered already
		}
	}
	if idx < len(segs) {
		right := segs[idx]
		if off >= right.Start && end <= right.end() {
			return segs
		}
	}

	if idx > 0 {
		li := idx - 1
		left := &segs[li]
		if off <= left.end() {
			if end > left.end() {
				overlap := left.end() - off
				left.Bytes = append(left.Bytes, data[overlap:]...)
			}
			return mergeFrom(segs, li)
		}
	}

	if idx < len(segs) {
		right := &segs[idx]
		if end >= right.Start {
			rightEnd := right.end()
			if off < right.Start {
				prefixLen := right.Start - off
				merged := make([]byte, 0, prefixLen+uint64(len(right.Bytes)))
				merged = append(merged, data[:prefixLen]...)
				merged = append(merged, right.Bytes...)
				right.Start = off
				right.Bytes = merged
			}
			if end > rightEnd {
				right.Bytes = append(right.Bytes, data[rightEnd-off:]...)
			}
			return mergeFrom(segs, idx)
		}
	}

	newSeg := Segment{Start: off, Bytes: append([]byte(nil), data...)}
	segs = append(segs, Segment{})
	copy(segs[idx+1:], segs[idx:])
	segs[idx] = newSeg
	return segs
}

// mergeFrom coalesces segs[i] with any immediately following segment whose
// range touches or overlaps it, repeating until no more merges apply.
func mergeFrom(segs []Segment, i int) []Segment {
	for i+1 < len(segs) {
		a, b := segs[i], segs[i+1]
		if b.Start > a.end() {
			break
		}
		copy(segs[i].Bytes[b.Start-a.Start:], b.Bytes)
		if b.end() > a.end() {
			overlap := a.end() - b.Start
			segs[i].Bytes = append(segs[i].Bytes, b.Bytes[overlap:]...)
		}
		segs = append(segs[:i+1], segs[i+2:]...)
	}
	return segs
}

// complete reports whether segs holds exactly [0, length) as one segment.
func complete(segs []Segment, length uint64) bool {
	if length == 0 {
		return true
	}
	return len(segs) == 1 && segs[0].Start == 0 && uint64(len(segs[0].Bytes)) == length
}
