package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// DecodeNsec decodes a bech32 "nsec1..." private key.
func DecodeNsec(nsec string) (*btcec.PrivateKey, error) {
	hrp, data, err := bech32.Decode(nsec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nsec: %w", err)
	}
	if hrp != "nsec" {
		return nil, fmt.Errorf("unexpected bech32 prefix %q, want nsec", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert nsec bits: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid nsec payload length: %d", len(raw))
	}
	sk, _ := btcec.PrivKeyFromBytes(raw)
	return sk, nil
}

// EncodeNpub encodes a 32-byte hex public key as "npub1...".
func EncodeNpub(pubkeyHex string) (string, error) {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode pubkey hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("invalid pubkey length: %d", len(raw))
	}
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert pubkey bits: %w", err)
	}
	return bech32.Encode("npub", data)
}

// PubkeyHex returns the x-only public key of sk, hex encoded.
func PubkeyHex(sk *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey()))
}

// PayerLabel renders a pubkey for display: npub form when it decodes,
// truncated hex otherwise.
func PayerLabel(pubkeyHex string) string {
	npub, err := EncodeNpub(pubkeyHex)
	if err != nil {
		if len(pubkeyHex) > 12 {
			return pubkeyHex[:12] + "…"
		}
		return pubkeyHex
	}
	return npub
}
