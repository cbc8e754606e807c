package presale

import "errors"

var (
	ErrNilState           = errors.New("presale: state not configured")
	ErrNotInitialized     = errors.New("presale: sale not initialized")
	ErrAlreadyInitialized = errors.New("presale: sale already initialized")
	ErrUnauthorized       = errors.New("presale: unauthorized caller")
	ErrSaleInactive       = errors.New("presale: sale is not active")
	ErrAlreadyActive      = errors.New("presale: sale is already active")
	ErrZeroAmount         = errors.New("presale: amount must be greater than zero")
	ErrAmountAboveTier    = errors.New("presale: amount exceeds single purchase limit")
	ErrWalletCapExceeded  = errors.New("presale: purchase exceeds wallet cap")
	ErrHardCapExceeded    = errors.New("presale: purchase exceeds hard cap")
	ErrAllTiersSold       = errors.New("presale: all tiers have been sold")
	ErrMathOverflow       = errors.New("presale: math overflow")
	ErrInvalidTreasury    = errors.New("presale: invalid treasury address")
	ErrInvalidAsset       = errors.New("presale: invalid asset identifier")
	ErrInvalidTimestamp   = errors.New("presale: invalid timestamp")
	ErrInvalidSchedule    = errors.New("presale: invalid price schedule")
	ErrPurchaseNotFound   = errors.New("presale: purchase record not found")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNilState, "state_unavailable"},
	{ErrNotInitialized, "not_initialized"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrUnauthorized, "unauthorized"},
	{ErrSaleInactive, "sale_inactive"},
	{ErrAlreadyActive, "already_active"},
	{ErrZeroAmount, "zero_amount"},
	{ErrAmountAboveTier, "amount_above_tier"},
	{ErrWalletCapExceeded, "wallet_cap_exceeded"},
	{ErrHardCapExceeded, "hard_cap_exceeded"},
	{ErrAllTiersSold, "all_tiers_sold"},
	{ErrMathOverflow, "math_overflow"},
	{ErrInvalidTreasury, "invalid_treasury"},
	{ErrInvalidAsset, "invalid_asset"},
	{ErrInvalidTimestamp, "invalid_timestamp"},
	{ErrInvalidSchedule, "invalid_schedule"},
	{ErrPurchaseNotFound, "purchase_not_found"},
}

// Code maps a presale error to a stable identifier suitable for API clients.
// Errors that are not part of the presale taxonomy yield an empty string.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
