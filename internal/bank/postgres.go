package bank

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"voice-banking/pkg/utils"

	"github.com/google/uuid"
)

// Schema is the DDL applied by EnsureSchema. Re-running it is a no-op.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS bank_customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	account_number TEXT NOT NULL UNIQUE,
	phone TEXT NOT NULL,
	pin_hash TEXT NOT NULL,
	balance_minor BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	card_id TEXT NOT NULL,
	card_status TEXT NOT NULL DEFAULT 'active',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS bank_transactions (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL REFERENCES bank_customers(id),
	occurred_at TIMESTAMPTZ NOT NULL,
	description TEXT NOT NULL,
	amount_minor BIGINT NOT NULL,
	type TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS bank_transactions_customer_idx ON bank_transactions (customer_id, occurred_at DESC)`,
}

// PostgresStore is the Store backed by Postgres through database/sql (pgx stdlib).
//
// Money invariant: balance updates and transaction inserts share one DB
// transaction and the customer row is locked FOR UPDATE first.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return utils.ApplySchema(ctx, s.db, Schema...)
}

const customerColumns = `id, name, account_number, phone, pin_hash, balance_minor, currency, card_id, card_status, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (Customer, error) {
	var c Customer
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.AccountNumber,
		&c.Phone,
		&c.PINHash,
		&c.BalanceMinor,
		&c.Currency,
		&c.CardID,
		&c.CardStatus,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *PostgresStore) VerifyCredentials(ctx context.Context, cred Credentials) (Customer, error) {
	cred, err := normalizeCredentials(cred)
	if err != nil {
		return Customer{}, err
	}

	lookups := []struct {
		value string
		query string
	}{
		{cred.CustomerID, `SELECT ` + customerColumns + ` FROM bank_customers WHERE id = $1`},
		{cred.AccountNumber, `SELECT ` + customerColumns + ` FROM bank_customers WHERE account_number = $1`},
		{cred.Phone, `SELECT ` + customerColumns + ` FROM bank_customers WHERE regexp_replace(phone, '[^0-9]', '', 'g') = $1 LIMIT 1`},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		c, err := scanCustomer(s.db.QueryRowContext(ctx, l.query, l.value))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Customer{}, err
		}
		if !pinMatches(c.PINHash, cred.PIN) {
			return Customer{}, ErrInvalidCredentials
		}
		return c, nil
	}
	return Customer{}, ErrInvalidCredentials
}

func (s *PostgresStore) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return Customer{}, ErrInvalidArgument
	}
	return scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM bank_customers WHERE id = $1`, customerID))
}

func (s *PostgresStore) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM bank_customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	if customerID == "" {
		return nil, ErrInvalidArgument
	}
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	const q = `
SELECT id, customer_id, occurred_at, description, amount_minor, type
FROM bank_transactions
WHERE customer_id = $1
ORDER BY occurred_at DESC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, customerID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.OccurredAt, &t.Description, &t.AmountMinor, &t.Type); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func lockCustomer(ctx context.Context, tx *sql.Tx, customerID string) (Customer, error) {
	return scanCustomer(tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM bank_customers WHERE id = $1 FOR UPDATE`, customerID))
}

func (s *PostgresStore) BlockCard(ctx context.Context, customerID, cardID string) (Customer, error) {
	if customerID == "" {
		return Customer{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	var out Customer
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		c, err := lockCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if cardID != "" && cardID != c.CardID {
			return ErrNotFound
		}
		if c.CardStatus == CardStatusBlocked {
			out = c
			return ErrCardAlreadyBlocked
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bank_customers SET card_status = $2, updated_at = $3 WHERE id = $1`,
			customerID, CardStatusBlocked, now,
		); err != nil {
			return err
		}
		c.CardStatus = CardStatusBlocked
		c.UpdatedAt = now
		out = c
		return nil
	})
	return out, err
}

func (s *PostgresStore) Transfer(ctx context.Context, customerID string, amountMinor int64, beneficiary string) (Transaction, error) {
	beneficiary = strings.TrimSpace(beneficiary)
	if customerID == "" || amountMinor <= 0 || beneficiary == "" {
		return Transaction{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	entry := Transaction{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		OccurredAt:  now,
		Description: "Transfer to " + beneficiary,
		AmountMinor: -amountMinor,
		Type:        TransactionDebit,
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		c, err := lockCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if c.BalanceMinor < amountMinor {
			return ErrInsufficientFunds
		}
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bank_customers SET balance_minor = balance_minor - $2, updated_at = $3 WHERE id = $1`,
			customerID, amountMinor, now,
		)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return entry, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	const q = `
INSERT INTO bank_transactions (id, customer_id, occurred_at, description, amount_minor, type)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`
	_, err := tx.ExecContext(ctx, q, t.ID, t.CustomerID, t.OccurredAt, t.Description, t.AmountMinor, t.Type)
	return err
}

func (s *PostgresStore) UpsertCustomer(ctx context.Context, c Customer, pin string, txs []Transaction) error {
	if c.ID == "" || c.AccountNumber == "" || digitsOnly(pin) == "" {
		return ErrInvalidArgument
	}
	hash, err := HashPIN(pin)
	if err != nil {
		return err
	}
	if c.CardStatus == "" {
		c.CardStatus = CardStatusActive
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	now := s.clock().UTC()

	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO bank_customers (id, name, account_number, phone, pin_hash, balance_minor, currency, card_id, card_status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	account_number = EXCLUDED.account_number,
	phone = EXCLUDED.phone,
	pin_hash = EXCLUDED.pin_hash,
	balance_minor = EXCLUDED.balance_minor,
	currency = EXCLUDED.currency,
	card_id = EXCLUDED.card_id,
	card_status = EXCLUDED.card_status,
	updated_at = EXCLUDED.updated_at
`
		if _, err := tx.ExecContext(ctx, q,
			c.ID, c.Name, c.AccountNumber, c.Phone, hash, c.BalanceMinor, c.Currency, c.CardID, c.CardStatus, now,
		); err != nil {
			return err
		}
		for _, t := range txs {
			t.CustomerID = c.ID
			if err := insertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}
