package escrow

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_Transfer(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Transfer(ctx, "alice", 100, "refund:a:0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Transfer(ctx, "alice", 50, "refund:a:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Balance("alice"); got != 150 {
		t.Errorf("expected balance 150, got %d", got)
	}
	if got := len(m.Payouts()); got != 2 {
		t.Errorf("expected 2 payouts, got %d", got)
	}
	if err := m.Transfer(ctx, "", 1, "x"); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestMemory_FailNext(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailNext(boom)

	if err := m.Transfer(context.Background(), "alice", 10, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if m.Balance("alice") != 0 {
		t.Error("failed transfer must not credit")
	}
	if err := m.Transfer(context.Background(), "alice", 10, "x"); err != nil {
		t.Fatalf("failure should apply once, got %v", err)
	}
}

func TestMemory_OnTransferHook(t *testing.T) {
	m := NewMemory()
	m.OnTransfer(func(ctx context.Context) error { return errors.New("vetoed") })

	if err := m.Transfer(context.Background(), "alice", 10, "x"); err == nil {
		t.Fatal("expected hook error")
	}
	if len(m.Payouts()) != 0 {
		t.Error("vetoed transfer must not be recorded")
	}
}

func TestMemory_IdempotentOnMemo(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Transfer(ctx, "alice", 100, "refund:0xabc:0"); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
	}
	if got := m.Balance("alice"); got != 100 {
		t.Errorf("expected balance 100 after retries, got %d", got)
	}
	if got := len(m.Payouts()); got != 1 {
		t.Errorf("expected 1 payout, got %d", got)
	}

	if err := m.Transfer(ctx, "alice", 250, "refund:0xabc:0"); err == nil {
		t.Error("expected error reusing a memo for a different amount")
	}
	if err := m.Transfer(ctx, "mallory", 100, "refund:0xabc:0"); err == nil {
		t.Error("expected error reusing a memo for a different recipient")
	}
	if got := m.Balance("mallory"); got != 0 {
		t.Errorf("expected no credit for mallory, got %d", got)
	}
}
