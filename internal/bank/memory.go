package bank

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	customers map[string]Customer
	txs       map[string][]Transaction
	clock     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: map[string]Customer{},
		txs:       map[string][]Transaction{},
		clock:     time.Now,
	}
}

func (s *MemoryStore) VerifyCredentials(_ context.Context, cred Credentials) (Customer, error) {
	cred, err := normalizeCredentials(cred)
	if err != nil {
		return Customer{}, err
	}
	s.mu.Lock()
	c, ok := s.lookupLocked(cred)
	s.mu.Unlock()
	if !ok || !pinMatches(c.PINHash, cred.PIN) {
		return Customer{}, ErrInvalidCredentials
	}
	return c, nil
}

// lookupLocked tries customer id, then account number, then phone.
func (s *MemoryStore) lookupLocked(cred Credentials) (Customer, bool) {
	if cred.CustomerID != "" {
		if c, ok := s.customers[cred.CustomerID]; ok {
			return c, true
		}
	}
	if cred.AccountNumber != "" {
		for _, c := range s.customers {
			if c.AccountNumber == cred.AccountNumber {
				return c, true
			}
		}
	}
	if cred.Phone != "" {
		for _, c := range s.customers {
			if digitsOnly(c.Phone) == cred.Phone {
				return c, true
			}
		}
	}
	return Customer{}, false
}

func (s *MemoryStore) GetCustomer(_ context.Context, customerID string) (Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return Customer{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListCustomers(_ context.Context) ([]Customer, error) {
	s.mu.Lock()
	out := make([]Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, customerID string, limit int) ([]Transaction, error) {
	if customerID == "" {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customerID]; !ok {
		return nil, ErrNotFound
	}
	all := append([]Transaction(nil), s.txs[customerID]...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].OccurredAt.After(all[j].OccurredAt) })
	if n := clampLimit(limit); len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *MemoryStore) BlockCard(_ context.Context, customerID, cardID string) (Customer, error) {
	if customerID == "" {
		return Customer{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return Customer{}, ErrNotFound
	}
	// An empty card id means "the customer's card".
	if cardID != "" && cardID != c.CardID {
		return Customer{}, ErrNotFound
	}
	if c.CardStatus == CardStatusBlocked {
		return c, ErrCardAlreadyBlocked
	}
	c.CardStatus = CardStatusBlocked
	c.UpdatedAt = s.clock().UTC()
	s.customers[customerID] = c
	return c, nil
}

func (s *MemoryStore) Transfer(_ context.Context, customerID string, amountMinor int64, beneficiary string) (Transaction, error) {
	beneficiary = strings.TrimSpace(beneficiary)
	if customerID == "" || amountMinor <= 0 || beneficiary == "" {
		return Transaction{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if c.BalanceMinor < amountMinor {
		return Transaction{}, ErrInsufficientFunds
	}
	now := s.clock().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		OccurredAt:  now,
		Description: "Transfer to " + beneficiary,
		AmountMinor: -amountMinor,
		Type:        TransactionDebit,
	}
	c.BalanceMinor -= amountMinor
	c.UpdatedAt = now
	s.customers[customerID] = c
	s.txs[customerID] = append(s.txs[customerID], tx)
	return tx, nil
}

func (s *MemoryStore) UpsertCustomer(_ context.Context, c Customer, pin string, txs []Transaction) error {
	if c.ID == "" || c.AccountNumber == "" || digitsOnly(pin) == "" {
		return ErrInvalidArgument
	}
	hash, err := HashPIN(pin)
	if err != nil {
		return err
	}
	c.PINHash = hash
	if c.CardStatus == "" {
		c.CardStatus = CardStatusActive
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.clock().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
	s.txs[c.ID] = append([]Transaction(nil), txs...)
	return nil
}
