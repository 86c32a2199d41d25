package ident

import (
	"encoding/binary"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	id := Generate()
	require.Len(t, id, 11)
	for _, r := range id {
		require.Contains(t, orderedAlphabet, string(r))
	}
}

func TestGenerateDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := Generate()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %q", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateOrderedAcrossTime(t *testing.T) {
	a := Generate()
	time.Sleep(3 * time.Millisecond)
	b := Generate()
	require.Less(t, a, b)
}

// Two calls inside one millisecond must still yield distinct ids that sort
// in generation order: the counter occupies higher bits than the random
// tail. The counter is pinned away from its wrap point so the pair always
// carries consecutive counter values.
func TestGenerateOrderedWithinMillisecond(t *testing.T) {
	for i := 0; i < 1000; i++ {
		atomic.StoreUint64(&counter, 0)
		before := time.Now().UnixMilli()
		a := Generate()
		b := Generate()
		if time.Now().UnixMilli() != before {
			continue
		}
		require.NotEqual(t, a, b)
		require.Less(t, a, b)
		return
	}
	t.Fatal("no generation pair landed inside a single millisecond")
}

// The alphabet must be ASCII-ordered for encoded ids to compare like the
// packed integers they carry.
func TestAlphabetIsSorted(t *testing.T) {
	for i := 1; i < len(orderedAlphabet); i++ {
		require.Less(t, orderedAlphabet[i-1], orderedAlphabet[i])
	}
	require.True(t, strings.IndexByte(orderedAlphabet, '=') < 0)
}

func TestEncodingPreservesNumericOrder(t *testing.T) {
	values := []uint64{0, 1, 1023, 1 << 20, 1<<40 | 7, 1<<63 - 1, 1 << 63}
	var prev string
	for i, v := range values {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		enc := encoding.EncodeToString(buf[:])
		if i > 0 {
			require.Less(t, prev, enc, "encoding of %d must sort after its predecessor", v)
		}
		prev = enc
	}
}
