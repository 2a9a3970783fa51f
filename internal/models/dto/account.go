package dto

import "github.com/lumibank/backend/internal/ledger"

type CreateAccountRequest struct {
	AccountType string `json:"accountType"`
}

type FundAccountRequest struct {
	AccountID     int64                `json:"accountId"`
	AmountCents   int64                `json:"amountCents"`
	FundingSource ledger.FundingSource `json:"fundingSource"`
}
