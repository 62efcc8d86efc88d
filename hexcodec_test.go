package main

import "testing"

func TestDecodeHexToFixedBytes(t *testing.T) {
	var dst [4]byte
	if err := decodeHexToFixedBytes(dst[:], "deadbeef"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [4]byte{0xde, 0xad, 0xbe, 0xef}
	if dst != want {
		t.Fatalf("got %x, want %x", dst, want)
	}
}

func TestDecodeHexToFixedBytesWrongLength(t *testing.T) {
	var dst [4]byte
	if err := decodeHexToFixedBytes(dst[:], "dead"); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestDecodeHexToFixedBytesInvalidDigit(t *testing.T) {
	var dst [4]byte
	if err := decodeHexToFixedBytes(dst[:], "zzzzzzzz"); err == nil {
		t.Fatal("expected error for invalid hex digit")
	}
}

func TestAppendHexBytesRoundTrip(t *testing.T) {
	src := []byte{0x01, 0x23, 0x45, 0xff}
	got := string(appendHexBytes(nil, src))
	if got != "012345ff" {
		t.Fatalf("got %q", got)
	}
}

func TestParseUint32BEHex(t *testing.T) {
	v, err := parseUint32BEHex("00abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x00abcdef {
		t.Fatalf("got %x", v)
	}
}

func TestParseUint64BEHex(t *testing.T) {
	v, err := parseUint64BEHex("0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x0123456789abcdef {
		t.Fatalf("got %x", v)
	}
}

func TestUint32ToBEHexRoundTrip(t *testing.T) {
	hexStr := uint32ToBEHex(0xdeadbeef)
	v, err := parseUint32BEHex(hexStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("got %x", v)
	}
}

func TestUint64ToBEHexRoundTrip(t *testing.T) {
	hexStr := uint64ToBEHex(0x0102030405060708)
	v, err := parseUint64BEHex(hexStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x0102030405060708 {
		t.Fatalf("got %x", v)
	}
}
