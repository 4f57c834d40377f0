package bank

import (
	"context"
	"errors"
	"testing"
)

const testSeed = `
customers:
  - id: C1
    name: Alice
    account_number: "1234"
    phone: "+1 555 0101"
    pin: "1111"
    balance: 100.50
    card_id: CARD-1
    transactions:
      - id: T1
        date: "2025-01-10"
        description: Grocery
        amount: 10.25
        type: debit
      - id: T2
        date: "2025-01-12"
        description: Salary
        amount: 500
        type: credit
  - id: C2
    name: Bob
    account_number: "5678"
    phone: "555-0102"
    pin: "2222"
    balance: 5
    card_id: CARD-2
    card_status: blocked
`

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	f, err := ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	s := NewMemoryStore()
	if err := Seed(context.Background(), s, f); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return s
}

func TestVerifyCredentials_LookupOrder(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cred Credentials
		want string
	}{
		{"by customer id", Credentials{CustomerID: "C1", PIN: "1111"}, "C1"},
		{"by account number", Credentials{AccountNumber: "1234", PIN: "1111"}, "C1"},
		{"spoken digits", Credentials{AccountNumber: "12 34", PIN: "1 1 1 1"}, "C1"},
		{"by phone", Credentials{Phone: "5550102", PIN: "2222"}, "C2"},
	}
	for _, tc := range cases {
		c, err := s.VerifyCredentials(ctx, tc.cred)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if c.ID != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, c.ID, tc.want)
		}
	}
}

func TestVerifyCredentials_Failures(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if _, err := s.VerifyCredentials(ctx, Credentials{AccountNumber: "1234", PIN: "9999"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong pin: got %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, Credentials{AccountNumber: "0000", PIN: "1111"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account: got %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, Credentials{AccountNumber: "1234"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing pin: got %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, Credentials{PIN: "1111"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing identifier: got %v", err)
	}
}

func TestSeed_HashesPINAndConvertsAmounts(t *testing.T) {
	s := seededStore(t)
	c, err := s.GetCustomer(context.Background(), "C1")
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if c.PINHash == "" || c.PINHash == "1111" {
		t.Fatalf("expected hashed pin, got %q", c.PINHash)
	}
	if c.BalanceMinor != 10050 {
		t.Fatalf("expected 10050, got %d", c.BalanceMinor)
	}
	if c.Currency != "USD" || c.CardStatus != CardStatusActive {
		t.Fatalf("expected defaults, got %s %s", c.Currency, c.CardStatus)
	}
}

func TestListTransactions_NewestFirstAndSigned(t *testing.T) {
	s := seededStore(t)
	txs, err := s.ListTransactions(context.Background(), "C1", 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2, got %d", len(txs))
	}
	if txs[0].ID != "T2" || txs[0].AmountMinor != 50000 {
		t.Fatalf("unexpected first tx: %+v", txs[0])
	}
	if txs[1].AmountMinor != -1025 {
		t.Fatalf("debit should be negative, got %d", txs[1].AmountMinor)
	}

	if _, err := s.ListTransactions(context.Background(), "nope", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlockCard(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if _, err := s.BlockCard(ctx, "C1", "CARD-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign card must not be blockable, got %v", err)
	}
	c, err := s.BlockCard(ctx, "C1", "")
	if err != nil {
		t.Fatalf("BlockCard: %v", err)
	}
	if c.CardStatus != CardStatusBlocked {
		t.Fatalf("expected blocked, got %s", c.CardStatus)
	}
	if _, err := s.BlockCard(ctx, "C1", "CARD-1"); !errors.Is(err, ErrCardAlreadyBlocked) {
		t.Fatalf("expected ErrCardAlreadyBlocked, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tx, err := s.Transfer(ctx, "C1", 5000, "Dana")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tx.AmountMinor != -5000 || tx.Type != TransactionDebit {
		t.Fatalf("unexpected tx: %+v", tx)
	}
	c, _ := s.GetCustomer(ctx, "C1")
	if c.BalanceMinor != 5050 {
		t.Fatalf("expected 5050, got %d", c.BalanceMinor)
	}
	txs, _ := s.ListTransactions(ctx, "C1", 10)
	if len(txs) != 3 {
		t.Fatalf("transfer must append a transaction, got %d", len(txs))
	}

	if _, err := s.Transfer(ctx, "C2", 10000, "Dana"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := s.Transfer(ctx, "C1", 0, "Dana"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestParseSeed_Rejects(t *testing.T) {
	bad := []string{
		"customers:\n  - id: X\n",
		"customers:\n  - {id: A, account_number: '1', pin: '1'}\n  - {id: A, account_number: '2', pin: '2'}\n",
		"customers:\n  - {id: A, account_number: '1', pin: '1', card_status: lost}\n",
		"customers:\n  - id: A\n    account_number: '1'\n    pin: '1'\n    transactions:\n      - {id: T, date: yesterday, amount: 1, type: debit}\n",
	}
	for i, raw := range bad {
		if _, err := ParseSeed([]byte(raw)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	cases := map[int64]string{0: "0.00", 5: "0.05", 10050: "100.50", -1025: "-10.25"}
	for in, want := range cases {
		if got := FormatMinor(in); got != want {
			t.Fatalf("FormatMinor(%d)=%s want %s", in, got, want)
		}
	}
	if ToMinor(19.999) != 2000 {
		t.Fatalf("ToMinor rounding")
	}
}
