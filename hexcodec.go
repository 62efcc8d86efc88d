package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Hex codec helpers built on precomputed lookup tables. mining.submit and
// mining.notify are on the hottest path in the server; avoiding
// encoding/hex's per-call allocation and branch overhead here measurably
// matters at scale.

var hexPairByteLUT [65536]uint16

func init() {
	var nibble [256]byte
	for i := range nibble {
		nibble[i] = 0xff
	}
	for c := byte('0'); c <= '9'; c++ {
		nibble[c] = c - '0'
	}
	for c := byte('a'); c <= 'f'; c++ {
		nibble[c] = c - 'a' + 10
	}
	for c := byte('A'); c <= 'F'; c++ {
		nibble[c] = c - 'A' + 10
	}
	for i := range hexPairByteLUT {
		hexPairByteLUT[i] = 0x100
	}
	for hi := 0; hi < 256; hi++ {
		h := nibble[hi]
		if h == 0xff {
			continue
		}
		for lo := 0; lo < 256; lo++ {
			l := nibble[lo]
			if l == 0xff {
				continue
			}
			hexPairByteLUT[(hi<<8)|lo] = uint16((h << 4) | l)
		}
	}
}

func decodeHexToFixedBytes(dst []byte, src string) error {
	if len(src) != len(dst)*2 {
		return fmt.Errorf("expected %d hex characters, got %d", len(dst)*2, len(src))
	}
	for i := range dst {
		v := hexPairByteLUT[int(src[i*2])<<8|int(src[i*2+1])]
		if v > 0xff {
			return fmt.Errorf("invalid hex digit in %q", src)
		}
		dst[i] = byte(v)
	}
	return nil
}

func appendHexBytes(dst []byte, src []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, len(src)*2)...)
	hex.Encode(dst[n:], src)
	return dst
}

func parseUint32BEHex(hexStr string) (uint32, error) {
	if len(hexStr) != 8 {
		return 0, fmt.Errorf("expected 8 hex characters, got %d", len(hexStr))
	}
	var out uint32
	for i := 0; i < 4; i++ {
		v := hexPairByteLUT[int(hexStr[i*2])<<8|int(hexStr[i*2+1])]
		if v > 0xff {
			return 0, fmt.Errorf("invalid hex digit in %q", hexStr)
		}
		out = out<<8 | uint32(v)
	}
	return out, nil
}

func parseUint64BEHex(hexStr string) (uint64, error) {
	if len(hexStr) != 16 {
		return 0, fmt.Errorf("expected 16 hex characters, got %d", len(hexStr))
	}
	var out uint64
	for i := 0; i < 8; i++ {
		v := hexPairByteLUT[int(hexStr[i*2])<<8|int(hexStr[i*2+1])]
		if v > 0xff {
			return 0, fmt.Errorf("invalid hex digit in %q", hexStr)
		}
		out = out<<8 | uint64(v)
	}
	return out, nil
}

func uint32ToBEHex(v uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

func uint64ToBEHex(v uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return hex.EncodeToString(buf[:])
}
