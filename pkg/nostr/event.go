// Package nostr implements the minimal subset of the Nostr protocol the
// service needs: event id computation, schnorr signing and the bech32
// key encodings.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds the service deals with.
const (
	KindTextNote   = 1
	KindZapReceipt = 9735
)

// Event is a Nostr wire event as defined by NIP-01.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize returns the canonical NIP-01 serialization
// [0, pubkey, created_at, kind, tags, content] used for id computation.
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode([]interface{}{0, e.Pubkey, e.CreatedAt, e.Kind, tags, e.Content})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	// json.Encoder appends a trailing newline that is not part of the serialization
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the sha256 of the canonical serialization, hex encoded.
func (e *Event) ComputeID() (string, error) {
	raw, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Sign fills in Pubkey, ID and Sig using the given private key.
func (e *Event) Sign(sk *btcec.PrivateKey) error {
	e.Pubkey = hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey()))

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("failed to decode event id: %w", err)
	}
	sig, err := schnorr.Sign(sk, digest)
	if err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks the event signature against its pubkey and recomputed id.
func (e *Event) Verify() (bool, error) {
	id, err := e.ComputeID()
	if err != nil {
		return false, err
	}
	if id != e.ID {
		return false, nil
	}
	pkBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil {
		return false, fmt.Errorf("failed to decode pubkey: %w", err)
	}
	pk, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return false, fmt.Errorf("failed to parse pubkey: %w", err)
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("failed to parse signature: %w", err)
	}
	digest, err := hex.DecodeString(e.ID)
	if err != nil {
		return false, fmt.Errorf("failed to decode event id: %w", err)
	}
	return sig.Verify(digest, pk), nil
}

// TagValues returns the second element of every tag whose first element is key.
func (e *Event) TagValues(key string) []string {
	var out []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == key {
			out = append(out, tag[1])
		}
	}
	return out
}
