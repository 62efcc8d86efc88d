package main

import (
	"testing"

	"golang.org/x/crypto/sha3"
)

func TestEpochOf(t *testing.T) {
	cases := []struct {
		height uint32
		epoch  uint64
	}{
		{0, 0},
		{kawpowEpochLength - 1, 0},
		{kawpowEpochLength, 1},
		{kawpowEpochLength*3 + 10, 3},
	}
	for _, c := range cases {
		if got := epochOf(c.height); got != c.epoch {
			t.Errorf("epochOf(%d) = %d, want %d", c.height, got, c.epoch)
		}
	}
}

func TestSeedHashEpochZero(t *testing.T) {
	var zero [32]byte
	if got := seedHash(0); got != zero {
		t.Fatalf("seedHash(0) = %x, want all zero", got)
	}
}

func TestSeedHashDeterministicAndDistinct(t *testing.T) {
	a := seedHash(1)
	b := seedHash(1)
	if a != b {
		t.Fatal("seedHash must be deterministic for the same epoch")
	}
	c := seedHash(2)
	if a == c {
		t.Fatal("seedHash must differ across epochs")
	}
}

func TestSeedHashChainsFromPriorEpoch(t *testing.T) {
	// seedHash(n+1) is defined as one more Keccak-256 iteration over
	// seedHash(n).
	s1 := seedHash(1)
	s2 := seedHash(2)
	h := sha3.NewLegacyKeccak256()
	h.Write(s1[:])
	var want [32]byte
	h.Sum(want[:0])
	if want != s2 {
		t.Fatalf("seedHash(2) does not chain from seedHash(1)")
	}
}

func TestHeaderHashDeterministic(t *testing.T) {
	f := headerFields{Version: 1, Time: 100, Bits: 0x1d00ffff, Height: 1000}
	a := headerHash(f)
	b := headerHash(f)
	if a != b {
		t.Fatal("headerHash must be deterministic")
	}
	f.Height = 1001
	c := headerHash(f)
	if a == c {
		t.Fatal("headerHash must change when a field changes")
	}
}

func TestReferenceVerifierConsistent(t *testing.T) {
	v := referenceVerifier{}
	hHash := headerHash(headerFields{Height: 1})
	var mix [32]byte
	mix[0] = 0x42
	r1, ok1 := v.Verify(hHash, 12345, 1, mix)
	r2, ok2 := v.Verify(hHash, 12345, 1, mix)
	if !ok1 || !ok2 {
		t.Fatal("referenceVerifier should always report ok=true")
	}
	if r1 != r2 {
		t.Fatal("referenceVerifier must be deterministic for identical inputs")
	}
	r3, _ := v.Verify(hHash, 54321, 1, mix)
	if r1 == r3 {
		t.Fatal("different nonces must produce different result hashes")
	}
}
