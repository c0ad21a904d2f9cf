package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/finity-labs/authcore/internal"
)

func newTestLedger(t *testing.T) (*tokenLedger, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return newTokenLedger(rdb, "ac"), mr
}

func TestLedgerIssueConsumeRoundTrip(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, err := ledger.Consume(ctx, opaque, kindEmailVerification)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("Consume user = %q, want user-1", userID)
	}
}

func TestLedgerTokenIsSingleUse(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindPasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := ledger.Consume(ctx, opaque, kindPasswordReset); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if _, err := ledger.Consume(ctx, opaque, kindPasswordReset); !errors.Is(err, errLedgerNotFound) {
		t.Fatalf("second Consume err = %v, want errLedgerNotFound", err)
	}
}

func TestLedgerWrongKindBurnsToken(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Redeeming a verification token as a reset token must fail.
	if _, err := ledger.Consume(ctx, opaque, kindPasswordReset); !errors.Is(err, errLedgerNotFound) {
		t.Fatalf("wrong-kind Consume err = %v, want errLedgerNotFound", err)
	}

	// And the failed attempt destroys it for the right kind too.
	if _, err := ledger.Consume(ctx, opaque, kindEmailVerification); !errors.Is(err, errLedgerNotFound) {
		t.Fatalf("post-burn Consume err = %v, want errLedgerNotFound", err)
	}
}

func TestLedgerExpiredTokenRejected(t *testing.T) {
	ledger, mr := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindPasswordReset, time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := ledger.Consume(ctx, opaque, kindPasswordReset); !errors.Is(err, errLedgerNotFound) {
		t.Fatalf("expired Consume err = %v, want errLedgerNotFound", err)
	}
}

func TestLedgerTamperedSecretRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	id, secret, err := internal.DecodeLedgerToken(opaque)
	if err != nil {
		t.Fatalf("DecodeLedgerToken failed: %v", err)
	}
	secret[0] ^= 0xFF
	tampered, err := internal.EncodeLedgerToken(id, secret)
	if err != nil {
		t.Fatalf("EncodeLedgerToken failed: %v", err)
	}

	if _, err := ledger.Consume(ctx, tampered, kindEmailVerification); !errors.Is(err, errLedgerNotFound) {
		t.Fatalf("tampered Consume err = %v, want errLedgerNotFound", err)
	}

	// The original token survives a bad guess.
	if _, err := ledger.Consume(ctx, opaque, kindEmailVerification); err != nil {
		t.Fatalf("original Consume failed after tampered attempt: %v", err)
	}
}

func TestLedgerMalformedTokens(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, opaque := range []string{
		"",
		"not-base64!!!",
		strings.Repeat("A", 10),
		strings.Repeat("A", 200),
	} {
		if _, err := ledger.Consume(ctx, opaque, kindEmailVerification); !errors.Is(err, errLedgerNotFound) {
			t.Errorf("Consume(%q) err = %v, want errLedgerNotFound", opaque, err)
		}
	}
}

func TestLedgerConcurrentConsumeSingleWinner(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	opaque, err := ledger.Issue(ctx, "user-1", kindPasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const goroutines = 16
	var (
		wg   sync.WaitGroup
		wins = make(chan struct{}, goroutines)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Consume(ctx, opaque, kindPasswordReset); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
}

func TestLedgerKindString(t *testing.T) {
	if got := kindEmailVerification.String(); got != "email_verification" {
		t.Errorf("kindEmailVerification = %q", got)
	}
	if got := kindPasswordReset.String(); got != "password_reset" {
		t.Errorf("kindPasswordReset = %q", got)
	}
}
