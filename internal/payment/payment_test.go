package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds between accounts", func(t *testing.T) {
		ledger := NewLedger()
		ledger.Deposit("a", 100)

		require.NoError(t, ledger.Transfer(ctx, "a", "b", 60))
		assert.Equal(t, int64(40), ledger.Balance("a"))
		assert.Equal(t, int64(60), ledger.Balance("b"))
	})

	t.Run("rejects overdraft", func(t *testing.T) {
		ledger := NewLedger()
		ledger.Deposit("a", 10)

		err := ledger.Transfer(ctx, "a", "b", 11)
		require.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(10), ledger.Balance("a"))
		assert.Zero(t, ledger.Balance("b"))
	})

	t.Run("zero amount is a no-op", func(t *testing.T) {
		ledger := NewLedger()
		require.NoError(t, ledger.Transfer(ctx, "a", "b", 0))
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		ledger := NewLedger()
		require.Error(t, ledger.Transfer(ctx, "a", "b", -5))
	})

	t.Run("unknown account balance is zero", func(t *testing.T) {
		ledger := NewLedger()
		assert.Zero(t, ledger.Balance("ghost"))
	})
}

func TestLedgerConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	const n = 100
	ledger.Deposit("source", n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.Transfer(ctx, "source", "sink", 1)
		}()
	}
	wg.Wait()

	assert.Zero(t, ledger.Balance("source"))
	assert.Equal(t, int64(n), ledger.Balance("sink"), "value must be conserved")
}

func TestLedgerDepositIgnoresNonPositive(t *testing.T) {
	ledger := NewLedger()
	ledger.Deposit("a", 0)
	ledger.Deposit("a", -10)
	assert.Zero(t, ledger.Balance("a"))
}
