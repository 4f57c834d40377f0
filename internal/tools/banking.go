package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"voice-banking/internal/audit"
	"voice-banking/internal/bank"
	"voice-banking/internal/records"
)

// Tool names. Flow files refer to tools by these names.
const (
	VerifyIdentity      = "verify_identity"
	GetBalance          = "get_balance"
	GetTransactions     = "get_transactions"
	BlockCard           = "block_card"
	EndCall             = "end_call"
	CheckEligibility    = "check_eligibility"
	SupportTicket       = "support_ticket"
	TransferFunds       = "transfer_funds"
	CloseAccountRequest = "close_account_request"
)

const (
	verifyFailedText  = "Identity Verification Failed. Please check the details provided."
	verifyMissingText = "Identity Verification Failed. I need an account number or phone number, and the PIN."
	endCallText       = "Call terminated."
)

type TicketSink interface {
	CreateTicket(ctx context.Context, t records.Ticket) (records.Ticket, error)
}

type Auditor interface {
	LogCallEvent(ctx context.Context, typ audit.EventType, callID, customerID, message string) error
}

// BankingDeps are the collaborators of the banking tools. Tickets and Audit
// are optional.
type BankingDeps struct {
	Bank    bank.Store
	Tickets TicketSink
	Audit   Auditor
	Log     *slog.Logger
}

type banking struct {
	BankingDeps
}

// Banking returns every banking tool.
func Banking(deps BankingDeps) []Tool {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	b := banking{deps}
	return []Tool{
		New(VerifyIdentity,
			"Verifies the caller's identity. Ask for the 4 digit account number and PIN. Phone number or customer id can replace the account number.",
			`{"type":"object","properties":{"account_number":{"type":"string"},"phone":{"type":"string"},"customer_id":{"type":"string"},"pin":{"type":"string"}},"required":["pin"]}`,
			b.verifyIdentity),
		New(GetBalance,
			"Gets the real account balance of the verified caller. Always use this to answer balance questions; never guess.",
			"", b.getBalance),
		New(GetTransactions,
			"Gets the verified caller's most recent transactions.",
			`{"type":"object","properties":{"limit":{"type":"integer","minimum":1,"maximum":20}}}`,
			b.getTransactions),
		New(BlockCard,
			"Blocks the verified caller's card. card_id is optional; the caller's own card is used when omitted.",
			`{"type":"object","properties":{"card_id":{"type":"string"}}}`,
			b.blockCard),
		New(EndCall,
			"Ends the call. Only use this when the caller says goodbye or asks to hang up.",
			"", b.endCall),
		New(CheckEligibility,
			"Checks eligibility for a new account or product.",
			`{"type":"object","properties":{"product_type":{"type":"string"}},"required":["product_type"]}`,
			b.checkEligibility),
		New(SupportTicket,
			"Logs a support ticket for digital banking or app issues.",
			`{"type":"object","properties":{"issue_type":{"type":"string"},"description":{"type":"string"}},"required":["issue_type","description"]}`,
			b.supportTicket),
		New(TransferFunds,
			"Transfers money from the verified caller's account to a beneficiary. Only call after the caller confirmed amount and beneficiary.",
			`{"type":"object","properties":{"amount":{"type":"number","exclusiveMinimum":0},"beneficiary":{"type":"string"}},"required":["amount","beneficiary"]}`,
			b.transferFunds),
		New(CloseAccountRequest,
			"Logs a request to close the verified caller's account.",
			`{"type":"object","properties":{"reason":{"type":"string"}},"required":["reason"]}`,
			b.closeAccountRequest),
	}
}

func (b banking) logEvent(ctx context.Context, typ audit.EventType, callID, customerID, msg string) {
	if b.Audit == nil {
		return
	}
	if err := b.Audit.LogCallEvent(ctx, typ, callID, customerID, msg); err != nil {
		b.Log.Warn("audit append failed", "call_id", callID, "type", typ, "err", err)
	}
}

func (b banking) verifyIdentity(ctx context.Context, inv Invocation) (Result, error) {
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	c, err := b.Bank.VerifyCredentials(ctx, bank.Credentials{
		CustomerID:    a.str("customer_id"),
		AccountNumber: a.str("account_number"),
		Phone:         a.str("phone"),
		PIN:           a.str("pin"),
	})
	switch {
	case errors.Is(err, bank.ErrInvalidArgument):
		return Result{Content: verifyMissingText}, nil
	case errors.Is(err, bank.ErrInvalidCredentials):
		b.logEvent(ctx, audit.EventTypeVerificationFailed, inv.CallID, "", "credentials rejected")
		return Result{Content: verifyFailedText}, nil
	case err != nil:
		return Result{}, err
	}
	b.logEvent(ctx, audit.EventTypeVerificationGranted, inv.CallID, c.ID, "identity verified")
	return Result{
		Content:            "Identity Verified successfully. Customer ID: " + c.ID,
		VerifiedCustomerID: c.ID,
	}, nil
}

func (b banking) getBalance(ctx context.Context, inv Invocation) (Result, error) {
	if inv.CustomerID == "" {
		return Result{}, ErrNotVerified
	}
	c, err := b.Bank.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: "Current balance is " + money(c.BalanceMinor, c.Currency)}, nil
}

type txView struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
}

func (b banking) getTransactions(ctx context.Context, inv Invocation) (Result, error) {
	if inv.CustomerID == "" {
		return Result{}, ErrNotVerified
	}
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	txs, err := b.Bank.ListTransactions(ctx, inv.CustomerID, a.integer("limit", 0))
	if err != nil {
		return Result{}, err
	}
	if len(txs) == 0 {
		return Result{Content: "No recent transactions."}, nil
	}
	views := make([]txView, 0, len(txs))
	for _, t := range txs {
		views = append(views, txView{
			Date:        t.OccurredAt.Format("2006-01-02"),
			Description: t.Description,
			Amount:      bank.FormatMinor(t.AmountMinor),
			Type:        string(t.Type),
		})
	}
	raw, err := json.Marshal(views)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: string(raw)}, nil
}

func (b banking) blockCard(ctx context.Context, inv Invocation) (Result, error) {
	if inv.CustomerID == "" {
		return Result{}, ErrNotVerified
	}
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	c, err := b.Bank.BlockCard(ctx, inv.CustomerID, a.str("card_id"))
	switch {
	case errors.Is(err, bank.ErrCardAlreadyBlocked):
		return Result{Content: "This card is already blocked."}, nil
	case errors.Is(err, bank.ErrNotFound):
		return Result{Content: "Failed to block card. No matching card belongs to this customer.", IsError: true}, nil
	case err != nil:
		return Result{}, err
	}
	b.logEvent(ctx, audit.EventTypeCardBlocked, inv.CallID, inv.CustomerID, "card "+c.CardID+" blocked")
	return Result{Content: "Card blocked successfully."}, nil
}

func (b banking) endCall(context.Context, Invocation) (Result, error) {
	return Result{Content: endCallText}, nil
}

func (b banking) checkEligibility(_ context.Context, inv Invocation) (Result, error) {
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	product := a.str("product_type")
	if product == "" {
		return Result{}, fmt.Errorf("%w: product_type is required", ErrBadArguments)
	}
	return Result{Content: fmt.Sprintf("You are eligible for %s. We can proceed with scheduling an appointment.", product)}, nil
}

func (b banking) supportTicket(ctx context.Context, inv Invocation) (Result, error) {
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	kind, desc := a.str("issue_type"), a.str("description")
	if kind == "" {
		return Result{}, fmt.Errorf("%w: issue_type is required", ErrBadArguments)
	}
	if err := b.ticket(ctx, inv, records.TicketKindSupport, kind+": "+desc); err != nil {
		return Result{}, err
	}
	return Result{Content: fmt.Sprintf("Ticket created for %s: %s. IT will contact you shortly.", kind, desc)}, nil
}

func (b banking) transferFunds(ctx context.Context, inv Invocation) (Result, error) {
	if inv.CustomerID == "" {
		return Result{}, ErrNotVerified
	}
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	amount, ok := a.number("amount")
	beneficiary := a.str("beneficiary")
	if !ok || amount <= 0 || beneficiary == "" {
		return Result{}, fmt.Errorf("%w: amount and beneficiary are required", ErrBadArguments)
	}
	minor := bank.ToMinor(amount)
	_, err = b.Bank.Transfer(ctx, inv.CustomerID, minor, beneficiary)
	if errors.Is(err, bank.ErrInsufficientFunds) {
		return Result{Content: "Transfer declined: insufficient funds.", IsError: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	b.logEvent(ctx, audit.EventTypeFundsTransferred, inv.CallID, inv.CustomerID, bank.FormatMinor(minor)+" to "+beneficiary)
	return Result{Content: fmt.Sprintf("Transfer of $%s to %s initiated successfully.", bank.FormatMinor(minor), beneficiary)}, nil
}

func (b banking) closeAccountRequest(ctx context.Context, inv Invocation) (Result, error) {
	if inv.CustomerID == "" {
		return Result{}, ErrNotVerified
	}
	a, err := parseArgs(inv.Arguments)
	if err != nil {
		return Result{}, err
	}
	reason := a.str("reason")
	if reason == "" {
		reason = "not given"
	}
	if err := b.ticket(ctx, inv, records.TicketKindClosure, reason); err != nil {
		return Result{}, err
	}
	return Result{Content: fmt.Sprintf("Closure request logged. Reason: %s. A retention specialist will call you.", reason)}, nil
}

func (b banking) ticket(ctx context.Context, inv Invocation, kind, desc string) error {
	if b.Tickets == nil {
		return nil
	}
	_, err := b.Tickets.CreateTicket(ctx, records.Ticket{
		CallID:      inv.CallID,
		CustomerID:  inv.CustomerID,
		Kind:        kind,
		Description: desc,
	})
	return err
}

func money(minor int64, currency string) string {
	if currency == "" || currency == "USD" {
		return "$" + bank.FormatMinor(minor)
	}
	return bank.FormatMinor(minor) + " " + currency
}
