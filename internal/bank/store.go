// Package bank is the banking-records collaborator consulted by the agent's
// tools. It only exposes lookups and narrow updates keyed by identifiers.
package bank

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence contract for banking records.
//
// Invariants:
// - Balance changes happen only together with a Transaction insert.
// - BlockCard and Transfer are scoped to the customer that owns the card/account.
type Store interface {
	VerifyCredentials(ctx context.Context, cred Credentials) (Customer, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListTransactions(ctx context.Context, customerID string, limit int) ([]Transaction, error)
	BlockCard(ctx context.Context, customerID, cardID string) (Customer, error)
	Transfer(ctx context.Context, customerID string, amountMinor int64, beneficiary string) (Transaction, error)

	// UpsertCustomer is used by seeding. pin is plaintext and hashed before storage.
	UpsertCustomer(ctx context.Context, c Customer, pin string, txs []Transaction) error
}

const (
	defaultTransactionLimit = 5
	maxTransactionLimit     = 50
)

func normalizeCredentials(c Credentials) (Credentials, error) {
	c.CustomerID = strings.TrimSpace(c.CustomerID)
	c.AccountNumber = digitsOnly(c.AccountNumber)
	c.Phone = digitsOnly(c.Phone)
	c.PIN = digitsOnly(c.PIN)
	if c.PIN == "" {
		return c, ErrInvalidArgument
	}
	if c.CustomerID == "" && c.AccountNumber == "" && c.Phone == "" {
		return c, ErrInvalidArgument
	}
	return c, nil
}

// digitsOnly keeps the digits of a spoken number ("12 34" -> "1234").
func digitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		return maxTransactionLimit
	}
	return limit
}

// HashPIN hashes a PIN for storage.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(digitsOnly(pin)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func pinMatches(hash, pin string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
