package lin

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingOverflowAndEmpty(t *testing.T) {
	r := NewRing[byte](4)
	_, err := r.Read()
	require.ErrorIs(t, err, ErrBufferEmpty)
	require.Equal(t, 0, r.Len())

	for i := byte(0); i < 4; i++ {
		require.NoError(t, r.Write(i))
	}
	require.ErrorIs(t, r.Write(9), ErrBufferOverflow)
	require.Equal(t, 4, r.Len())

	for i := byte(0); i < 4; i++ {
		v, err := r.Read()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err = r.Read()
	require.ErrorIs(t, err, ErrBufferEmpty)
	require.Equal(t, 0, r.Len())
}

func TestRingLengthInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	r := NewRing[int](8)
	var writes, reads, next, expect int
	for i := 0; i < 1000; i++ {
		if rnd.Intn(2) == 0 {
			if r.Write(next) == nil {
				writes++
				next++
			} else {
				require.Equal(t, r.Cap(), r.Len())
			}
		} else {
			v, err := r.Read()
			if err == nil {
				reads++
				require.Equal(t, expect, v)
				expect++
			} else {
				require.Equal(t, 0, r.Len())
			}
		}
		require.Equal(t, writes-reads, r.Len())
		if r.Len() < r.Cap() {
			require.Equal(t, r.Len(), (r.Tail()-r.Head()+r.Cap())%r.Cap())
		}
	}
}

func TestRingDistanceAndDiscard(t *testing.T) {
	r := NewRing[byte](4)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Write(byte(i)))
	}
	r.Read()
	r.Read()
	require.NoError(t, r.Write(3))
	require.NoError(t, r.Write(4))
	// head at 2, tail wrapped to 1
	require.Equal(t, 2, r.Head())
	require.Equal(t, 1, r.Tail())
	require.Equal(t, 0, r.Distance(2))
	require.Equal(t, 2, r.Distance(0))
	require.Equal(t, 3, r.Distance(1))
	require.True(t, r.Distance(1) <= r.Len())

	require.Equal(t, 2, r.Discard(2))
	v, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, byte(3), v)
	require.Equal(t, 1, r.Discard(5))
	require.Equal(t, 0, r.Len())

	r.Reset()
	require.Equal(t, 0, r.Head())
	require.Equal(t, 0, r.Tail())
}
