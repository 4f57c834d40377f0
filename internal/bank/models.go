package bank

import (
	"errors"
	"time"
)

// Customer is a retail banking customer as seen by the voice agent.
// PINHash is never serialized.
type Customer struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	AccountNumber string     `json:"account_number" db:"account_number"`
	Phone         string     `json:"phone" db:"phone"`
	PINHash       string     `json:"-" db:"pin_hash"`
	BalanceMinor  int64      `json:"balance_minor" db:"balance_minor"`
	Currency      string     `json:"currency" db:"currency"`
	CardID        string     `json:"card_id" db:"card_id"`
	CardStatus    CardStatus `json:"card_status" db:"card_status"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type CardStatus string

const (
	CardStatusActive  CardStatus = "active"
	CardStatusBlocked CardStatus = "blocked"
)

type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Transaction is an immutable account movement.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	CustomerID  string          `json:"customer_id" db:"customer_id"`
	OccurredAt  time.Time       `json:"date" db:"occurred_at"`
	Description string          `json:"description" db:"description"`
	AmountMinor int64           `json:"amount_minor" db:"amount_minor"`
	Type        TransactionType `json:"type" db:"type"`
}

// Credentials identify a caller. One of CustomerID, AccountNumber or Phone
// is required, and PIN always is.
type Credentials struct {
	CustomerID    string
	AccountNumber string
	Phone         string
	PIN           string
}

var (
	ErrNotFound           = errors.New("bank: not found")
	ErrInvalidCredentials = errors.New("bank: invalid credentials")
	ErrInsufficientFunds  = errors.New("bank: insufficient funds")
	ErrInvalidArgument    = errors.New("bank: invalid argument")
	ErrCardAlreadyBlocked = errors.New("bank: card already blocked")
)
