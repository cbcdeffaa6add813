package square

import (
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
)

// ChargeOutcome tags the terminal result of a charge attempt.
type ChargeOutcome string

const (
	// ChargeOutcomeApproved means the gateway settled the payment.
	ChargeOutcomeApproved ChargeOutcome = "approved"
	// ChargeOutcomeDeclined means the gateway rejected the card or request.
	ChargeOutcomeDeclined ChargeOutcome = "declined"
	// ChargeOutcomeError means the gateway could not be reached or the
	// credentials were rejected; the charge may or may not have landed.
	ChargeOutcomeError ChargeOutcome = "error"
)

// ChargeParams encapsulates the inputs for one recurring charge.
type ChargeParams struct {
	Amount         decimal.Decimal
	CustomerID     string
	CardID         string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// ChargeResult is the single tagged outcome callers branch on.
type ChargeResult struct {
	Outcome       ChargeOutcome
	TransactionID string
	ErrorCode     string
	ErrorMessage  string
}

// Approved reports whether the charge settled.
func (r ChargeResult) Approved() bool {
	return r.Outcome == ChargeOutcomeApproved
}

func (p ChargeParams) toSquareRequest(locationID, currency, idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(locationID),
		CustomerID:     ptrString(p.CustomerID),
		SourceID:       p.CardID,
	}
	if cents := amountCents(p.Amount); cents > 0 {
		req.AmountMoney = moneyPtr(cents, currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

func amountCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
