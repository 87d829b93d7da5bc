package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomy/internal/model"
	"tokenomy/internal/repository"
	"tokenomy/internal/repository/memory"
)

func newTestLedger() (*Ledger, *memory.Store) {
	store := memory.NewStore()
	return NewLedger(store, nil, nil), store
}

func TestLedgerBalanceInvariant(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "alice", "c1", 1000, "", "chat reward")
	require.NoError(t, err)
	account, err := ledger.Debit(ctx, "alice", "c1", 300, "send_dm", "dm")
	require.NoError(t, err)

	assert.Equal(t, int64(700), account.Balance)
	assert.Equal(t, int64(1000), account.TotalEarned)
	assert.Equal(t, int64(300), account.TotalSpent)
	assert.Equal(t, account.Balance, account.TotalEarned-account.TotalSpent)

	history, err := ledger.GetHistory(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.KindSpend, history[0].Kind)
	assert.Equal(t, int64(-300), history[0].Amount)
	assert.Equal(t, model.KindEarn, history[1].Kind)
	assert.Equal(t, int64(1000), history[1].Amount)
}

func TestLedgerDebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "bob", "c1", 100, "", "")
	require.NoError(t, err)

	_, err = ledger.Debit(ctx, "bob", "c1", 200, "", "")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	account, err := ledger.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	history, err := ledger.GetHistory(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed debit must not log a transaction")
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "carol", "c1", 0, "", "")
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
	_, err = ledger.Credit(ctx, "carol", "c1", -10, "", "")
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
	_, err = ledger.Debit(ctx, "carol", "c1", -10, "", "")
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
}

func TestLedgerConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "dave", "c1", 500, "", "")
	require.NoError(t, err)

	const attempts = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, "dave", "c1", 100, "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok, "exactly the affordable debits succeed")
	assert.Equal(t, attempts-5, rejected)

	account, err := ledger.GetBalance(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
	assert.Equal(t, int64(500), account.TotalSpent)
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "alice", "c1", 1000, "", "")
	require.NoError(t, err)

	require.NoError(t, ledger.Transfer(ctx, "alice", "bob", "c1", 400, "gift"))

	alice, _ := ledger.GetBalance(ctx, "alice")
	bob, _ := ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(600), alice.Balance)
	assert.Equal(t, int64(400), bob.Balance)

	assert.ErrorIs(t, ledger.Transfer(ctx, "alice", "alice", "c1", 10, ""), ErrSelfTransfer)
	assert.ErrorIs(t, ledger.Transfer(ctx, "alice", "bob", "c1", 9999, ""), repository.ErrInsufficientFunds)

	// The failed transfer must not leave a half-applied pair behind.
	bob, _ = ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(400), bob.Balance)
}

func TestLedgerAdminAdjust(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	account, err := ledger.AdminAdjust(ctx, "eve", "c1", 500, "admin-1", "event prize")
	require.NoError(t, err)
	assert.Equal(t, int64(500), account.Balance)

	account, err = ledger.AdminAdjust(ctx, "eve", "c1", -200, "admin-1", "correction")
	require.NoError(t, err)
	assert.Equal(t, int64(300), account.Balance)
	assert.Equal(t, account.Balance, account.TotalEarned-account.TotalSpent)

	_, err = ledger.AdminAdjust(ctx, "eve", "c1", -10000, "admin-1", "overdraw")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	_, err = ledger.AdminAdjust(ctx, "eve", "c1", 0, "admin-1", "noop")
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	history, err := ledger.GetHistory(ctx, "eve", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.KindAdminRemove, history[0].Kind)
	assert.Equal(t, model.KindAdminAdd, history[1].Kind)
	assert.Contains(t, history[0].Description, "admin-1")
}

func TestLedgerTopEarners(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Credit(ctx, "a", "c1", 100, "", "")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "b", "c1", 300, "", "")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "c", "c1", 200, "", "")
	require.NoError(t, err)
	// Spending must not reduce earned totals.
	_, err = ledger.Debit(ctx, "b", "c1", 250, "", "")
	require.NoError(t, err)

	top, err := ledger.TopEarners(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].AccountID)
	assert.Equal(t, int64(300), top[0].Total)
	assert.Equal(t, "c", top[1].AccountID)
}
