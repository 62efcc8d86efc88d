package main

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// KawPoW-family coins (Ravencoin and its derivatives) use base58check
// P2PKH addresses with a coin-specific version byte rather than Bitcoin's
// standard network table, so address handling here is a direct
// base58check decode against a configured version byte instead of the
// btcsuite chaincfg/txscript network-matching machinery.

// payoutScriptForAddress decodes a base58check P2PKH address against the
// configured version byte and returns the scriptPubKey
// (OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG) used as the
// coinbase output's paying script.
func payoutScriptForAddress(addr string, pubKeyHashVersion byte) ([]byte, error) {
	if addr == "" {
		return nil, errors.New("empty address")
	}
	decoded, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if version != pubKeyHashVersion {
		return nil, fmt.Errorf("address %s has version byte 0x%02x, want 0x%02x", addr, version, pubKeyHashVersion)
	}
	if len(decoded) != 20 {
		return nil, fmt.Errorf("address %s decodes to %d bytes, want 20", addr, len(decoded))
	}
	return buildP2PKHScript(decoded), nil
}

func buildP2PKHScript(pubKeyHash []byte) []byte {
	script := make([]byte, 0, 25)
	script = append(script, 0x76, 0xa9, 0x14) // OP_DUP OP_HASH160 PUSH(20)
	script = append(script, pubKeyHash...)
	script = append(script, 0x88, 0xac) // OP_EQUALVERIFY OP_CHECKSIG
	return script
}

// addressFromPubKeyHash is the inverse of payoutScriptForAddress, used by
// config validation to echo back a human-readable form of the configured
// payout script for logging.
func addressFromPubKeyHash(pubKeyHash []byte, pubKeyHashVersion byte) string {
	if len(pubKeyHash) != 20 {
		return ""
	}
	return base58.CheckEncode(pubKeyHash, pubKeyHashVersion)
}
