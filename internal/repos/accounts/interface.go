package accounts

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrAccountNotFound = errors.New("account not found")

type Accounts interface {
	// Ensure creates the account with a zero balance if it does not exist.
	Ensure(tx *sql.Tx, accountID string) error
	GetBalance(ctx context.Context, accountID string) (int64, error)
	LockAndGetBalance(tx *sql.Tx, accountID string) (int64, error)
	IncreaseBalance(tx *sql.Tx, accountID string, amount int64) (int64, error)
	DecreaseBalance(tx *sql.Tx, accountID string, amount int64) (int64, error)
}
