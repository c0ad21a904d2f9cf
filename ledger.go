package authcore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finity-labs/authcore/internal"
)

const (
	ledgerRecordVersionV1 = 1
	ledgerMaxAttempts     = 5
)

// tokenKind partitions the ledger: a token issued for one purpose can
// never redeem the other.
type tokenKind uint8

const (
	kindEmailVerification tokenKind = iota + 1
	kindPasswordReset
)

func (k tokenKind) String() string {
	switch k {
	case kindEmailVerification:
		return "email_verification"
	case kindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

var (
	errLedgerNotFound         = errors.New("ledger record not found")
	errLedgerSecretMismatch   = errors.New("ledger secret mismatch")
	errLedgerRedisUnavailable = errors.New("ledger redis unavailable")
)

// ledgerRecord is what Redis holds per outstanding token. The opaque
// token handed to the user is id||secret; only the secret's SHA-256 is
// stored, so a ledger dump alone cannot redeem anything.
type ledgerRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
	Kind       tokenKind
}

// tokenLedger is the Redis-backed single-use store behind email
// verification and password reset tokens.
type tokenLedger struct {
	redis  *redis.Client
	prefix string
}

func newTokenLedger(redisClient *redis.Client, prefix string) *tokenLedger {
	return &tokenLedger{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *tokenLedger) key(ledgerID string) string {
	return l.prefix + ":tok:" + ledgerID
}

// Issue mints a new opaque token for the user, stores its record with the
// given TTL, and returns the token. The plaintext secret exists only in
// the returned string.
func (l *tokenLedger) Issue(ctx context.Context, userID string, kind tokenKind, ttl time.Duration) (string, error) {
	id, err := internal.NewLedgerID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewLedgerSecret()
	if err != nil {
		return "", err
	}

	record := &ledgerRecord{
		UserID:     userID,
		SecretHash: internal.HashLedgerSecret(secret),
		ExpiresAt:  time.Now().Add(ttl).Unix(),
		Kind:       kind,
	}

	encoded, err := encodeLedgerRecord(record)
	if err != nil {
		return "", err
	}

	if err := l.redis.Set(ctx, l.key(id.String()), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errLedgerRedisUnavailable, err)
	}

	return internal.EncodeLedgerToken(id.String(), secret)
}

// Consume atomically redeems the opaque token: under concurrent redemption
// exactly one caller receives the user ID, every other caller gets
// errLedgerNotFound. Expired records, kind mismatches, and unknown ids are
// indistinguishable to the caller.
func (l *tokenLedger) Consume(ctx context.Context, opaque string, kind tokenKind) (string, error) {
	ledgerID, secret, err := internal.DecodeLedgerToken(opaque)
	if err != nil {
		return "", errLedgerNotFound
	}
	providedHash := internal.HashLedgerSecret(secret)

	const maxRetries = 4
	key := l.key(ledgerID)

	for i := 0; i < maxRetries; i++ {
		var matched *ledgerRecord

		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeLedgerRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return errLedgerNotFound
			}

			if record.Kind != kind {
				// Wrong-kind redemption burns the token: a reset token
				// leaked into the verification endpoint stays single-use.
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return errLedgerNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= ledgerMaxAttempts {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return errLedgerSecretMismatch
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return errLedgerNotFound
				}

				updated, err := encodeLedgerRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errLedgerSecretMismatch
			}

			if err := txDelete(ctx, tx, key); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil),
				errors.Is(err, errLedgerNotFound),
				errors.Is(err, errLedgerSecretMismatch):
				return "", errLedgerNotFound
			default:
				return "", fmt.Errorf("%w: %v", errLedgerRedisUnavailable, err)
			}
		}

		return matched.UserID, nil
	}

	return "", errLedgerNotFound
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeLedgerRecord(record *ledgerRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(ledgerRecordVersionV1)
	buf.WriteByte(byte(record.Kind))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("ledger record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeLedgerRecord(data []byte) (*ledgerRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != ledgerRecordVersionV1 {
		return nil, errors.New("invalid ledger record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ledgerRecord{
		Kind: tokenKind(kind),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
