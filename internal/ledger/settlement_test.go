package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markedRefund(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	h.submitMany(t, modelKey, 3, 5)
	require.NoError(t, h.l.Slash(ctx, admin, modelKey, 0))
	require.NoError(t, h.l.MarkRefundable(ctx, admin, modelKey, []uint64{0}))
}

func TestClaimRefund_JournaledBeforeTransfer(t *testing.T) {
	ctx := context.Background()
	h := newTestLedger(t)
	markedRefund(t, h)

	var lastOp Op
	var flag RefundFlag
	h.escrow.OnTransfer(func(context.Context) error {
		entries := h.journal.Entries()
		lastOp = entries[len(entries)-1].Op
		flag, _ = h.l.RefundStatus(modelKey, 0)
		return nil
	})

	amount, err := h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), amount)
	assert.Equal(t, OpClaimRefund, lastOp)
	assert.Equal(t, RefundFlag{Marked: true, Claimed: true}, flag)

	_, err = h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Len(t, h.escrow.Payouts(), 1)
	assert.Equal(t, uint64(100), h.escrow.Balance(rater(0)))
}

func TestClaimRefund_UnrecordedReversalKeepsClaim(t *testing.T) {
	ctx := context.Background()
	h := newTestLedger(t)
	markedRefund(t, h)

	h.escrow.OnTransfer(func(context.Context) error {
		h.journal.FailNext(errors.New("commit: connection reset"))
		return errors.New("settlement timeout")
	})

	_, err := h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)

	// The journal says claimed, so memory must agree and a second claim must
	// not pay again.
	flag, err := h.l.RefundStatus(modelKey, 0)
	require.NoError(t, err)
	assert.True(t, flag.Claimed)
	_, err = h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Empty(t, h.escrow.Payouts())
	h.assertConsistent(t, modelKey)

	fresh, err := New(DefaultParams(), NewAdminSet(admin), nil, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(h.journal.Entries()))
	assert.Equal(t, h.l.ModelStats(modelKey), fresh.ModelStats(modelKey))
	assert.Equal(t, h.l.Account(rater(0)), fresh.Account(rater(0)))
}

func TestClaimRefund_RetryAfterReversalPaysOnce(t *testing.T) {
	ctx := context.Background()
	h := newTestLedger(t)
	markedRefund(t, h)

	h.escrow.FailNext(errors.New("settlement offline"))
	_, err := h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	require.ErrorIs(t, err, ErrTransfer)

	_, err = h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	require.NoError(t, err)
	_, err = h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	assert.Len(t, h.escrow.Payouts(), 1)
	assert.Equal(t, uint64(100), h.escrow.Balance(rater(0)))
	assert.Equal(t, uint64(0), h.l.Account(rater(0)).TotalStaked)

	fresh, err := New(DefaultParams(), NewAdminSet(admin), nil, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(h.journal.Entries()))
	assert.Equal(t, h.l.ModelStats(modelKey), fresh.ModelStats(modelKey))
	flag, err := fresh.RefundStatus(modelKey, 0)
	require.NoError(t, err)
	assert.True(t, flag.Claimed)
}

func TestClaimRefund_TransferDoesNotBlockLedger(t *testing.T) {
	ctx := context.Background()
	h := newTestLedger(t)
	markedRefund(t, h)
	before := h.l.ModelStats(modelKey)

	entered := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	h.escrow.OnTransfer(func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.l.ClaimRefund(ctx, rater(0), modelKey, 0)
		done <- err
	}()
	<-entered

	promptly := func(name string, fn func()) {
		t.Helper()
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			fn()
		}()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s blocked while a refund transfer was in flight", name)
		}
	}

	promptly("reads", func() {
		assert.Equal(t, before.TrustScore, h.l.TrustScore(modelKey))
		assert.Equal(t, before.TotalStaked-100, h.l.ModelStats(modelKey).TotalStaked)
		flag, err := h.l.RefundStatus(modelKey, 0)
		assert.NoError(t, err)
		assert.True(t, flag.Claimed)
		_, err = h.l.RatingsRange(modelKey, 0, 3)
		assert.NoError(t, err)
	})
	promptly("submit", func() {
		_, err := h.l.Submit(context.Background(), "newcomer", modelKey, 4, ref(9), 50)
		assert.NoError(t, err)
	})
	promptly("second claim", func() {
		_, err := h.l.ClaimRefund(context.Background(), rater(0), modelKey, 0)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	unblock()
	require.NoError(t, <-done)
	assert.Len(t, h.escrow.Payouts(), 1)
	h.assertConsistent(t, modelKey)
}
