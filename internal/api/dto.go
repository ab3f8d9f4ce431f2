package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/models"
)

// InitializeRequest is the request body for creating the protocol registry.
type InitializeRequest struct {
	Authority string `json:"authority" example:"authority" validate:"required"`
	Treasury  string `json:"treasury" example:"treasury" validate:"required"`
}

// Validate validates the request.
func (r InitializeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Authority, validation.Required),
		validation.Field(&r.Treasury, validation.Required),
	)
}

// CreateLoanRequest is the request body for originating a loan.
type CreateLoanRequest struct {
	Borrower        string `json:"borrower" example:"alice" validate:"required"`
	Lender          string `json:"lender" example:"bob" validate:"required"`
	CollateralAsset string `json:"collateral_asset" example:"nft-1" validate:"required"`
	LoanAmount      uint64 `json:"loan_amount" example:"1000" validate:"required"`
	DurationSeconds int64  `json:"duration_seconds" example:"86400" validate:"required"`
	InterestRateBps uint16 `json:"interest_rate_bps" example:"500" validate:"required"`
}

// Validate checks presence only; term bounds belong to the market policy.
func (r CreateLoanRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Borrower, validation.Required),
		validation.Field(&r.Lender, validation.Required),
		validation.Field(&r.CollateralAsset, validation.Required),
	)
}

func (r CreateLoanRequest) params() market.CreateLoanParams {
	return market.CreateLoanParams{
		Borrower:        r.Borrower,
		Lender:          r.Lender,
		CollateralAsset: r.CollateralAsset,
		LoanAmount:      r.LoanAmount,
		DurationSeconds: r.DurationSeconds,
		InterestRateBps: r.InterestRateBps,
	}
}

// CreateVaultRequest is the request body for opening a loan's vault.
type CreateVaultRequest struct {
	CollateralAsset string `json:"collateral_asset" example:"nft-1" validate:"required"`
}

// Validate validates the request.
func (r CreateVaultRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CollateralAsset, validation.Required),
	)
}

// LiquidateRequest is the optional request body for liquidation. A missing
// oracle_value makes the server appraise the collateral.
type LiquidateRequest struct {
	OracleValue *uint64 `json:"oracle_value,omitempty" example:"500"`
}

// BidRequest is the request body for placing a bid.
type BidRequest struct {
	Bidder string `json:"bidder" example:"carol" validate:"required"`
	Amount uint64 `json:"amount" example:"501" validate:"required"`
}

// Validate validates the request.
func (r BidRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Bidder, validation.Required),
	)
}

// CreditRequest is the request body for funding an account.
type CreditRequest struct {
	Amount uint64 `json:"amount" example:"1000000" validate:"required"`
}

// Validate validates the request.
func (r CreditRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Amount, validation.Required),
	)
}

// MintAssetRequest is the request body for registering a collateral asset.
type MintAssetRequest struct {
	Asset string `json:"asset" example:"nft-1" validate:"required"`
	Owner string `json:"owner" example:"alice" validate:"required"`
}

// Validate validates the request.
func (r MintAssetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Asset, validation.Required),
		validation.Field(&r.Owner, validation.Required),
	)
}

// LoanListResponse wraps loan listings.
type LoanListResponse struct {
	Loans []models.Loan `json:"loans" validate:"required"`
}

// AuctionListResponse wraps auction listings.
type AuctionListResponse struct {
	Auctions []models.Auction `json:"auctions" validate:"required"`
}

// BidListResponse wraps an auction's bid history.
type BidListResponse struct {
	Bids []models.Bid `json:"bids" validate:"required"`
}

// LoanHealth is the valuation response type (aliased from the domain layer).
type LoanHealth = market.LoanHealth
