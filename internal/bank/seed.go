package bank

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk shape of the demo customer fixtures.
type SeedFile struct {
	Customers []SeedCustomer `yaml:"customers"`
}

type SeedCustomer struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	AccountNumber string            `yaml:"account_number"`
	Phone         string            `yaml:"phone"`
	PIN           string            `yaml:"pin"`
	Balance       float64           `yaml:"balance"`
	Currency      string            `yaml:"currency"`
	CardID        string            `yaml:"card_id"`
	CardStatus    CardStatus        `yaml:"card_status"`
	Transactions  []SeedTransaction `yaml:"transactions"`
}

type SeedTransaction struct {
	ID          string          `yaml:"id"`
	Date        string          `yaml:"date"`
	Description string          `yaml:"description"`
	Amount      float64         `yaml:"amount"`
	Type        TransactionType `yaml:"type"`
}

// LoadSeed reads and validates a customers YAML file.
func LoadSeed(path string) (SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, err
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return SeedFile{}, fmt.Errorf("parse customers: %w", err)
	}
	seen := map[string]bool{}
	for i, c := range f.Customers {
		if c.ID == "" || c.AccountNumber == "" || c.PIN == "" {
			return SeedFile{}, fmt.Errorf("customer %d: id, account_number and pin are required", i)
		}
		if seen[c.ID] {
			return SeedFile{}, fmt.Errorf("customer %q: duplicate id", c.ID)
		}
		seen[c.ID] = true
		switch c.CardStatus {
		case "", CardStatusActive, CardStatusBlocked:
		default:
			return SeedFile{}, fmt.Errorf("customer %q: unknown card_status %q", c.ID, c.CardStatus)
		}
		for _, t := range c.Transactions {
			if _, err := time.Parse("2006-01-02", t.Date); err != nil {
				return SeedFile{}, fmt.Errorf("customer %q transaction %q: bad date: %w", c.ID, t.ID, err)
			}
			if t.Type != TransactionDebit && t.Type != TransactionCredit {
				return SeedFile{}, fmt.Errorf("customer %q transaction %q: unknown type %q", c.ID, t.ID, t.Type)
			}
		}
	}
	return f, nil
}

// Seed upserts every fixture customer into store.
func Seed(ctx context.Context, store Store, f SeedFile) error {
	for _, sc := range f.Customers {
		c := Customer{
			ID:            sc.ID,
			Name:          sc.Name,
			AccountNumber: sc.AccountNumber,
			Phone:         sc.Phone,
			BalanceMinor:  ToMinor(sc.Balance),
			Currency:      sc.Currency,
			CardID:        sc.CardID,
			CardStatus:    sc.CardStatus,
		}
		txs := make([]Transaction, 0, len(sc.Transactions))
		for _, st := range sc.Transactions {
			d, _ := time.Parse("2006-01-02", st.Date)
			amount := ToMinor(math.Abs(st.Amount))
			if st.Type == TransactionDebit {
				amount = -amount
			}
			txs = append(txs, Transaction{
				ID:          st.ID,
				CustomerID:  sc.ID,
				OccurredAt:  d.UTC(),
				Description: st.Description,
				AmountMinor: amount,
				Type:        st.Type,
			})
		}
		if err := store.UpsertCustomer(ctx, c, sc.PIN, txs); err != nil {
			return fmt.Errorf("seed customer %q: %w", sc.ID, err)
		}
	}
	return nil
}

// ToMinor converts a major-unit amount to cents, rounding half away from zero.
func ToMinor(major float64) int64 {
	return int64(math.Round(major * 100))
}

// FormatMinor renders cents as "1234.50".
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
