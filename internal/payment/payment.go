// Package payment defines the Payment Channel consumed by the registry
// ledger and provides an in-memory ledger implementation for development
// and tests.
package payment

//go:generate mockgen -source=payment.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	id "dplay/pkg/domain"
)

// ErrInsufficientFunds is returned when the source account cannot cover a
// transfer. The ledger treats any channel failure as a hard abort of the
// enclosing operation.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Channel moves value between identities. A transfer is a single bounded
// synchronous operation that either completes or fails atomically; the
// registry only ever moves exactly the amount owed, so excess declared
// payment never leaves the payer.
type Channel interface {
	Transfer(ctx context.Context, from, to id.Identity, amount int64) error
}

// Ledger is an in-memory Channel with per-identity balances. Accounts are
// created on first credit.
type Ledger struct {
	mu       sync.RWMutex
	balances map[id.Identity]int64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[id.Identity]int64)}
}

// Deposit credits an account. Used to fund callers in development setups
// and tests.
func (l *Ledger) Deposit(account id.Identity, amount int64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns the current balance for an account; zero for unknown
// accounts.
func (l *Ledger) Balance(account id.Identity) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// Transfer atomically moves amount from one account to another. A zero
// amount is a no-op so free installs never touch the channel.
func (l *Ledger) Transfer(ctx context.Context, from, to id.Identity, amount int64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientFunds)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
