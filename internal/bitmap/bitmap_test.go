package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddContainsRemove(t *testing.T) {
	s := New()
	s.Add(1001)
	s.Add(1<<40 + 7)
	require.True(t, s.Contains(1001))
	require.True(t, s.Contains(1<<40+7))
	require.False(t, s.Contains(2002))
	require.EqualValues(t, 2, s.Cardinality())

	s.Remove(1001)
	require.False(t, s.Contains(1001))
	require.EqualValues(t, 1, s.Cardinality())
}

func TestSetAlgebra(t *testing.T) {
	a := New()
	for _, id := range []uint64{1, 2, 3, 1 << 33} {
		a.Add(id)
	}
	b := New()
	for _, id := range []uint64{2, 3, 4, 1 << 33} {
		b.Add(id)
	}

	inter := a.Clone()
	inter.IntersectInPlace(b)
	require.ElementsMatch(t, []uint64{2, 3, 1 << 33}, inter.ToSlice())

	union := a.Clone()
	union.UnionInPlace(b)
	require.ElementsMatch(t, []uint64{1, 2, 3, 4, 1 << 33}, union.ToSlice())

	sub := a.Clone()
	sub.SubtractInPlace(b)
	require.ElementsMatch(t, []uint64{1}, sub.ToSlice())
}

func TestExtractRespectsMaxAndOrder(t *testing.T) {
	s := New()
	ids := []uint64{5, 1, 1 << 35, 3, 1 << 35 + 1}
	for _, id := range ids {
		s.Add(id)
	}
	out := make([]uint64, 2)
	n := s.Extract(out)
	require.Equal(t, 2, n)
	require.Less(t, out[0], out[1])
}

func TestExtractFromResumesPastDeliveredIDs(t *testing.T) {
	s := New()
	for id := uint64(0); id < 100; id++ {
		s.Add(id * 3)
	}
	s.Add(1<<40 + 5)

	out := make([]uint64, 10)
	var got []uint64
	from := uint64(0)
	for {
		n := s.ExtractFrom(from, out)
		if n == 0 {
			break
		}
		got = append(got, out[:n]...)
		from = out[n-1] + 1
	}
	require.Equal(t, s.ToSlice(), got)
}

func TestSerializeRoundTrip(t *testing.T) {
	s := New()
	for _, id := range []uint64{0, 1, 42, 1 << 20, 1<<40 + 9, numutilMax()} {
		s.Add(id)
	}
	b, err := s.Bytes()
	require.NoError(t, err)

	out, err := FromBytes(b)
	require.NoError(t, err)
	require.Equal(t, s.Cardinality(), out.Cardinality())
	require.ElementsMatch(t, s.ToSlice(), out.ToSlice())
}

func numutilMax() uint64 {
	return ^uint64(0)
}

func TestCloneIsIndependent(t *testing.T) {
	a := New()
	a.Add(1)
	b := a.Clone()
	b.Add(2)
	require.False(t, a.Contains(2))
	require.True(t, b.Contains(2))
}
