package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

type LedgerID [16]byte

const (
	ledgerTokenRawSize = 48
	ledgerSecretSize   = 32
)

func NewLedgerID() (LedgerID, error) {
	var id LedgerID
	_, err := rand.Read(id[:])
	return id, err
}

func (id LedgerID) Bytes() []byte {
	return id[:]
}

func (id LedgerID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseLedgerID(s string) (LedgerID, error) {
	var id LedgerID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid ledger id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewLedgerSecret() ([ledgerSecretSize]byte, error) {
	var secret [ledgerSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashLedgerSecret(secret [ledgerSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeLedgerToken packs id and secret into the opaque token handed to
// the end user. Only the recipient ever holds the secret; the server keeps
// a hash of it.
func EncodeLedgerToken(ledgerID string, secret [ledgerSecretSize]byte) (string, error) {
	id, err := ParseLedgerID(ledgerID)
	if err != nil {
		return "", err
	}

	var raw [ledgerTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeLedgerToken(token string) (string, [ledgerSecretSize]byte, error) {
	var secret [ledgerSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != ledgerTokenRawSize {
		return "", secret, errors.New("invalid ledger token size")
	}

	var id LedgerID
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id.String(), secret, nil
}
