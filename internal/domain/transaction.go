package domain

import "time"

type TxType string

const (
	TxTypeDebit  TxType = "debit"
	TxTypeCredit TxType = "credit"
)

type Transaction struct {
	ID          int64
	OwnerID     UserID
	Amount      int64
	TxType      TxType
	Description string
	CreatedAt   time.Time
}
