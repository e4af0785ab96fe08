// Package token is the fungible value-transfer collaborator. The escrow core
// moves funds between sender, custody, and agent accounts through the
// Service interface; transfers are atomic and fail loudly on insufficient
// balance, never partially applied.
package token

import (
	"context"
	"errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid transfer amount")
)

// Service moves fungible value between accounts identified by opaque
// addresses. Mint exists for bootstrap and tests only.
type Service interface {
	Transfer(ctx context.Context, from, to string, amount int64) error
	Balance(ctx context.Context, account string) (int64, error)
	Mint(ctx context.Context, to string, amount int64) error
}
