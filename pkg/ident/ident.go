// Package ident generates sortable, collision-resistant entity identifiers.
//
// An id packs the current time in milliseconds into the high bits of a
// uint64, followed by a 10-bit rolling counter and 10 random bits, and is
// rendered as 11 unpadded characters from the URL-safe base64 set. The
// alphabet is arranged in ASCII order so plain byte comparison of two ids
// matches the numeric order of the packed values: ids generated by one
// process sort non-decreasingly in time order. Cross-process uniqueness is
// probabilistic, not guaranteed.
package ident

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	mrand "math/rand"
	"sync/atomic"
	"time"
)

const (
	counterBits = 10
	randomBits  = 10
	counterMask = (1 << counterBits) - 1
	randomMask  = (1 << randomBits) - 1
)

// URL-safe base64 characters in ASCII order, so encoded ids compare the
// same way as the packed integers they carry.
const orderedAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

var encoding = base64.NewEncoding(orderedAlphabet).WithPadding(base64.NoPadding)

// counter is process-local; the increment is atomic so concurrent callers
// keep the non-decreasing-within-a-millisecond property. It wraps to 0
// after 1023.
var counter uint64

// Generate returns a new identifier. Generation cannot fail.
func Generate() string {
	ms := uint64(time.Now().UnixMilli())
	c := atomic.AddUint64(&counter, 1) & counterMask
	r := randomBits10()

	v := ms<<(counterBits+randomBits) | c<<randomBits | r

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return encoding.EncodeToString(buf[:])
}

// randomBits10 draws 10 bits from crypto/rand, falling back to math/rand if
// the system source is unavailable.
func randomBits10() uint64 {
	n, err := rand.Int(rand.Reader, big.NewInt(randomMask+1))
	if err != nil {
		return uint64(mrand.Intn(randomMask + 1))
	}
	return n.Uint64()
}
