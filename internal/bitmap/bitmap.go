// Package bitmap implements the compact, compressed set-of-block-ids
// container backing the change-tracking indices.
//
// A 64-bit block id is split into a high and low 32-bit half (see
// internal/numutil.SplitID64): the high half selects one of up to 2^32
// 32-bit RoaringBitmap containers, and the low half is the element added
// to that container. Every operation stays backed by roaring's compressed
// array/run/bitmap containers while covering the full 64-bit id space.
package bitmap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/taosdata/tsbackup-core/internal/numutil"
)

// magic identifies the portable on-disk layout produced by Serialize.
const magic = uint32(0x424D3634) // "BM64"

// Set is a compressed set of 64-bit block ids. The zero value is not usable;
// use New. Set is not safe for concurrent use — callers (the bitmap engine)
// hold their own lock around mutating operations.
type Set struct {
	containers map[uint32]*roaring.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{containers: make(map[uint32]*roaring.Bitmap)}
}

func (s *Set) containerFor(hi uint32, create bool) *roaring.Bitmap {
	c, ok := s.containers[hi]
	if !ok {
		if !create {
			return nil
		}
		c = roaring.New()
		s.containers[hi] = c
	}
	return c
}

// Add inserts id into the set.
func (s *Set) Add(id uint64) {
	hi, lo := numutil.SplitID64(id)
	s.containerFor(hi, true).Add(lo)
}

// Remove deletes id from the set, dropping the backing container once it
// becomes empty so Cardinality/serialization cost tracks live content.
func (s *Set) Remove(id uint64) {
	hi, lo := numutil.SplitID64(id)
	c := s.containerFor(hi, false)
	if c == nil {
		return
	}
	c.Remove(lo)
	if c.IsEmpty() {
		delete(s.containers, hi)
	}
}

// Contains reports whether id is a member. O(log N) via the container map
// lookup plus the roaring container's own O(log N) membership test.
func (s *Set) Contains(id uint64) bool {
	hi, lo := numutil.SplitID64(id)
	c := s.containerFor(hi, false)
	return c != nil && c.Contains(lo)
}

// Cardinality returns the number of members.
func (s *Set) Cardinality() uint64 {
	var total uint64
	for _, c := range s.containers {
		total += c.GetCardinality()
	}
	return total
}

// Clear empties the set in place.
func (s *Set) Clear() {
	s.containers = make(map[uint32]*roaring.Bitmap)
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := New()
	for hi, c := range s.containers {
		out.containers[hi] = c.Clone()
	}
	return out
}

// sortedKeys returns the set's hi32 container keys in ascending order, the
// iteration order every set-algebra and serialization routine below uses so
// behavior never depends on Go's randomized map order.
func (s *Set) sortedKeys() []uint32 {
	keys := make([]uint32, 0, len(s.containers))
	for hi := range s.containers {
		keys = append(keys, hi)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// UnionInPlace mutates s to be the union of s and other.
func (s *Set) UnionInPlace(other *Set) {
	for hi, oc := range other.containers {
		c := s.containerFor(hi, true)
		c.Or(oc)
	}
}

// IntersectInPlace mutates s to be the intersection of s and other.
func (s *Set) IntersectInPlace(other *Set) {
	for hi, c := range s.containers {
		oc, ok := other.containers[hi]
		if !ok {
			delete(s.containers, hi)
			continue
		}
		c.And(oc)
		if c.IsEmpty() {
			delete(s.containers, hi)
		}
	}
}

// SubtractInPlace mutates s to remove every member also present in other.
func (s *Set) SubtractInPlace(other *Set) {
	for hi, c := range s.containers {
		oc, ok := other.containers[hi]
		if !ok {
			continue
		}
		c.AndNot(oc)
		if c.IsEmpty() {
			delete(s.containers, hi)
		}
	}
}

// Extract writes up to len(out) member ids, in ascending order, into out
// and returns the count written.
func (s *Set) Extract(out []uint64) int {
	return s.ExtractFrom(0, out)
}

// ExtractFrom is Extract restricted to members >= start. Resuming with
// start = previous last id + 1 pages through a large set without
// re-reading already-delivered members.
func (s *Set) ExtractFrom(start uint64, out []uint64) int {
	hiStart, loStart := numutil.SplitID64(start)
	n := 0
	for _, hi := range s.sortedKeys() {
		if hi < hiStart {
			continue
		}
		if n >= len(out) {
			break
		}
		it := s.containers[hi].Iterator()
		if hi == hiStart {
			it.AdvanceIfNeeded(loStart)
		}
		for it.HasNext() && n < len(out) {
			out[n] = numutil.JoinID64(hi, it.Next())
			n++
		}
	}
	return n
}

// ToSlice materializes the full member set in ascending order. Prefer
// Extract when a caller-provided buffer with a max count is available.
func (s *Set) ToSlice() []uint64 {
	out := make([]uint64, s.Cardinality())
	s.Extract(out)
	return out
}

// Serialize writes a portable, endianness-stable encoding of s: a small
// fixed header followed by each container's key and its own portable
// Roaring serialization (RoaringBitmap/roaring/v2's MarshalBinary, which
// follows the published Roaring format spec and is itself stable across
// processes and machines), in ascending key order so the byte stream is
// deterministic.
func (s *Set) Serialize(w io.Writer) error {
	keys := s.sortedKeys()
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(keys)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, hi := range keys {
		c := s.containers[hi]
		buf, err := c.MarshalBinary()
		if err != nil {
			return fmt.Errorf("bitmap: marshal container %d: %w", hi, err)
		}
		var entryHdr [8]byte
		binary.LittleEndian.PutUint32(entryHdr[0:4], hi)
		binary.LittleEndian.PutUint32(entryHdr[4:8], uint32(len(buf)))
		if _, err := w.Write(entryHdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a set encoded by Serialize into a new Set.
func Deserialize(r io.Reader) (*Set, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("bitmap: read header: %w", err)
	}
	if got := binary.LittleEndian.Uint32(hdr[0:4]); got != magic {
		return nil, fmt.Errorf("bitmap: bad magic %#x", got)
	}
	count := binary.LittleEndian.Uint32(hdr[4:8])
	out := New()
	for i := uint32(0); i < count; i++ {
		var entryHdr [8]byte
		if _, err := io.ReadFull(r, entryHdr[:]); err != nil {
			return nil, fmt.Errorf("bitmap: read entry %d header: %w", i, err)
		}
		hi := binary.LittleEndian.Uint32(entryHdr[0:4])
		n := binary.LittleEndian.Uint32(entryHdr[4:8])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("bitmap: read entry %d body: %w", i, err)
		}
		c := roaring.New()
		if err := c.UnmarshalBinary(buf); err != nil {
			return nil, fmt.Errorf("bitmap: unmarshal container %d: %w", hi, err)
		}
		out.containers[hi] = c
	}
	return out, nil
}

// Bytes is a convenience wrapper around Serialize for callers that want a
// []byte rather than an io.Writer.
func (s *Set) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes is the inverse of Bytes.
func FromBytes(b []byte) (*Set, error) {
	return Deserialize(bytes.NewReader(b))
}
