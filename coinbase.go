package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
)

// Coinbase, merkle and target arithmetic. KawPoW submit has no
// extranonce2 field the miner grinds through: the coinbase transaction
// (and therefore the merkle root) is fully fixed at job-build time, and
// nonce-space uniqueness across miners comes from binding the high bytes
// of the 8-byte KawPoW nonce to each client's extraNonce1 (validator.go),
// not from a mutable coinbase. The merkle-tree and varint techniques
// below are still the standard Bitcoin-family ones; only the
// extranonce2-grinding placeholder logic from a generic Bitcoin pool
// does not apply here and is dropped.

var diff1Target = func() *big.Int {
	n, _ := new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return n
}()

var maxUint256 = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 256)
	return n.Sub(n, big.NewInt(1))
}()

// targetFromBits expands a compact ("nBits") target representation into a
// full 256-bit integer.
func targetFromBits(bits uint32) *big.Int {
	exp := byte(bits >> 24)
	mantissa := big.NewInt(int64(bits & 0x007fffff))
	if exp <= 3 {
		return mantissa.Rsh(mantissa, 8*uint(3-exp))
	}
	return mantissa.Lsh(mantissa, 8*uint(exp-3))
}

// targetFromDifficulty converts a Stratum difficulty value into the
// 256-bit share target a miner's found hash must be <= to count as a
// valid share at that difficulty.
func targetFromDifficulty(diff float64) *big.Int {
	if diff <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	r := new(big.Rat).SetFloat64(diff)
	if r == nil || r.Sign() <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	target := new(big.Rat).SetInt(diff1Target)
	target.Quo(target, r)
	tgt := new(big.Int).Quo(target.Num(), target.Denom())
	if tgt.Sign() == 0 {
		tgt = big.NewInt(1)
	}
	if tgt.Cmp(maxUint256) > 0 {
		tgt = new(big.Int).Set(maxUint256)
	}
	return tgt
}

// difficultyFromHash converts a 32-byte result hash (big-endian) into a
// difficulty value relative to diff=1, using the top 64 significant bits
// plus a power-of-two scale to avoid big.Int allocation on the share hot
// path.
func difficultyFromHash(hash [32]byte) float64 {
	msb := -1
	for i := len(hash) - 1; i >= 0; i-- {
		if hash[i] != 0 {
			msb = i
			break
		}
	}
	if msb < 0 {
		return math.MaxFloat64
	}
	var top uint64
	for j := 0; j < 8; j++ {
		idx := msb - j
		var b byte
		if idx >= 0 {
			b = hash[idx]
		}
		top = (top << 8) | uint64(b)
	}
	if top == 0 {
		return math.MaxFloat64
	}
	exponentBits := 8 * (msb - 7)
	diff := math.Ldexp(65535.0/float64(top), 208-exponentBits)
	if diff <= 0 || math.IsNaN(diff) {
		return 0
	}
	if math.IsInf(diff, 0) {
		return math.MaxFloat64
	}
	return diff
}

func bytesToBigIntBE(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func hexToLEBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], reverseBytes(b))
	return out, nil
}

// doubleSHA256 is the standard Bitcoin-family merkle/txid hash: the
// KawPoW-specific sha3/Keccak hashing in kawpow.go is reserved for the
// proof-of-work header binding, not transaction hashing.
func doubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// appendVarInt appends a Bitcoin-style varint encoding of n.
func appendVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		return append(dst, b[:]...)
	case n <= 0xffffffff:
		dst = append(dst, 0xfe)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		return append(dst, b[:]...)
	default:
		dst = append(dst, 0xff)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		return append(dst, b[:]...)
	}
}

// buildCoinbaseTx assembles a minimal fully-fixed coinbase transaction
// paying the pool's configured address, with a BIP34-style height push in
// the scriptSig so the height is unambiguously recoverable from the raw
// transaction bytes.
func buildCoinbaseTx(height uint32, value int64, payoutScript []byte) []byte {
	var tx []byte
	// version
	tx = append(tx, 0x01, 0x00, 0x00, 0x00)
	// input count
	tx = append(tx, 0x01)
	// prevout hash (32 zero bytes) + index (0xffffffff)
	tx = append(tx, make([]byte, 32)...)
	tx = append(tx, 0xff, 0xff, 0xff, 0xff)

	scriptSig := bip34HeightPush(height)
	tag := []byte("/kawpow-solo/")
	scriptSig = append(scriptSig, byte(len(tag)))
	scriptSig = append(scriptSig, tag...)

	tx = appendVarInt(tx, uint64(len(scriptSig)))
	tx = append(tx, scriptSig...)
	// sequence
	tx = append(tx, 0xff, 0xff, 0xff, 0xff)

	// outputs: single output paying the full coinbase value to the pool.
	tx = append(tx, 0x01)
	var valBuf [8]byte
	binary.LittleEndian.PutUint64(valBuf[:], uint64(value))
	tx = append(tx, valBuf[:]...)
	tx = appendVarInt(tx, uint64(len(payoutScript)))
	tx = append(tx, payoutScript...)

	// locktime
	tx = append(tx, 0x00, 0x00, 0x00, 0x00)
	return tx
}

// bip34HeightPush encodes height as a minimal-length little-endian push,
// per BIP34.
func bip34HeightPush(height uint32) []byte {
	var raw []byte
	h := height
	for h > 0 {
		raw = append(raw, byte(h&0xff))
		h >>= 8
	}
	if len(raw) == 0 {
		raw = []byte{0}
	}
	if raw[len(raw)-1]&0x80 != 0 {
		raw = append(raw, 0x00)
	}
	return append([]byte{byte(len(raw))}, raw...)
}

// merkleRootFromTxIDs computes the Bitcoin-family merkle root from the
// coinbase transaction plus the template's other transactions, given as
// raw tx bytes / hex-decoded txids in natural (RPC) byte order.
func merkleRootFromTxIDs(coinbaseTx []byte, otherTxIDs [][]byte) [32]byte {
	coinbaseHash := doubleSHA256(coinbaseTx)
	level := make([][32]byte, 0, 1+len(otherTxIDs))
	level = append(level, coinbaseHash)
	for _, id := range otherTxIDs {
		var h [32]byte
		copy(h[:], id)
		level = append(level, h)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			buf := make([]byte, 64)
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, doubleSHA256(buf))
		}
		level = next
	}
	return level[0]
}

// buildCoinbaseAndMerkle builds the fixed coinbase transaction for a
// block template and the resulting merkle root (little-endian, ready for
// header assembly).
func buildCoinbaseAndMerkle(tmpl *blockTemplateResult, payoutScript []byte, height uint32) ([]byte, [32]byte, error) {
	if len(payoutScript) == 0 {
		return nil, [32]byte{}, fmt.Errorf("no payout script configured")
	}
	coinbaseTx := buildCoinbaseTx(height, tmpl.CoinbaseValue, payoutScript)

	otherTxIDs := make([][]byte, 0, len(tmpl.Transactions))
	for _, t := range tmpl.Transactions {
		id := t.Txid
		b, err := hex.DecodeString(id)
		if err != nil || len(b) != 32 {
			return nil, [32]byte{}, fmt.Errorf("bad txid %q: %w", id, err)
		}
		// RPC txids are big-endian display order; internal hashing uses the
		// natural (little-endian) byte order.
		otherTxIDs = append(otherTxIDs, reverseBytes(b))
	}

	root := merkleRootFromTxIDs(coinbaseTx, otherTxIDs)
	return coinbaseTx, root, nil
}
