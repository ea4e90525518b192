package transactions

import (
	"database/sql"

	"github.com/fastprodman/coinsync/internal/repos/transactions"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

const selectColumns = `
	SELECT id, account_id, type, amount, reason, metadata,
	       balance_before, balance_after, created_at, recorded_at
	FROM transactions
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (transactions.Record, error) {
	var (
		rec  transactions.Record
		meta []byte
	)

	err := s.Scan(&rec.ID, &rec.AccountID, &rec.Type, &rec.Amount, &rec.Reason, &meta,
		&rec.BalanceBefore, &rec.BalanceAfter, &rec.CreatedAt, &rec.RecordedAt)
	if err != nil {
		return transactions.Record{}, err
	}

	rec.Metadata, err = decodeMetadata(meta)
	if err != nil {
		return transactions.Record{}, err
	}

	return rec, nil
}
