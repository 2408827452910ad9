package domain

import (
	"strings"
	"time"
)

type WithdrawalMethodType string

const (
	MethodBank      WithdrawalMethodType = "BANK"
	MethodPayPal    WithdrawalMethodType = "PAYPAL"
	MethodCrypto    WithdrawalMethodType = "CRYPTO"
	MethodMomo      WithdrawalMethodType = "MOMO"
	MethodPix       WithdrawalMethodType = "PIX"
	MethodPromptPay WithdrawalMethodType = "PROMPTPAY"
	MethodMpesa     WithdrawalMethodType = "M_PESA"
	MethodWise      WithdrawalMethodType = "WISE"
	MethodPayoneer  WithdrawalMethodType = "PAYONEER"
)

func (t WithdrawalMethodType) Valid() bool {
	switch t {
	case MethodBank, MethodPayPal, MethodCrypto, MethodMomo, MethodPix,
		MethodPromptPay, MethodMpesa, MethodWise, MethodPayoneer:
		return true
	}
	return false
}

type WithdrawalMethod struct {
	ID               string               `json:"id" db:"id"`
	UserID           string               `json:"user_id" db:"user_id"`
	Type             WithdrawalMethodType `json:"type" db:"type"`
	Provider         string               `json:"provider" db:"provider"`
	AccountNumber    string               `json:"account_number" db:"account_number"`
	AccountName      string               `json:"account_name" db:"account_name"`
	IsDefault        bool                 `json:"is_default" db:"is_default"`
	IsInstantCapable bool                 `json:"is_instant_capable" db:"is_instant_capable"`
	CreatedAt        time.Time            `json:"created_at" db:"created_at"`
}

// MaskAccountNumber keeps the last four characters.
func MaskAccountNumber(n string) string {
	n = strings.TrimSpace(n)
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", 4) + n[len(n)-4:]
}
