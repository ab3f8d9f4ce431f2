package market

import (
	"fmt"

	"github.com/starford/pledge/internal/apperr"
)

var (
	ErrInvalidLoanDuration    = fmt.Errorf("%w: invalid loan duration", apperr.ErrInvalidInput)
	ErrInvalidInterestRate    = fmt.Errorf("%w: invalid interest rate", apperr.ErrInvalidInput)
	ErrInsufficientLoanAmount = fmt.Errorf("%w: loan amount outside policy bounds", apperr.ErrInvalidInput)
	ErrCollateralMismatch     = fmt.Errorf("%w: collateral asset does not match loan", apperr.ErrInvalidInput)
	ErrAmountOverflow         = fmt.Errorf("%w: amount overflows 64 bits", apperr.ErrInvalidInput)

	ErrMissingSignature = fmt.Errorf("%w: required signature missing", apperr.ErrUnauthorized)
	ErrNotAssetHolder   = fmt.Errorf("%w: borrower does not hold the collateral asset", apperr.ErrUnauthorized)

	ErrLoanNotActive      = fmt.Errorf("%w: loan is not active", apperr.ErrInvalidState)
	ErrLoanNotInAuction   = fmt.Errorf("%w: loan is not in auction", apperr.ErrInvalidState)
	ErrNotLiquidatable    = fmt.Errorf("%w: loan is not liquidatable", apperr.ErrInvalidState)
	ErrAuctionStillActive = fmt.Errorf("%w: auction is still active", apperr.ErrInvalidState)
	ErrAuctionClosed      = fmt.Errorf("%w: auction is not accepting bids", apperr.ErrInvalidState)
	ErrAuctionNotActive   = fmt.Errorf("%w: auction is not active", apperr.ErrInvalidState)
	ErrNoBids             = fmt.Errorf("%w: auction has no bids to settle", apperr.ErrInvalidState)
	ErrVaultMismatch      = fmt.Errorf("%w: vault does not belong to loan", apperr.ErrInvalidState)
	ErrVaultEmpty         = fmt.Errorf("%w: vault does not hold the collateral", apperr.ErrInvalidState)

	ErrBidTooLow = fmt.Errorf("%w: bid must exceed the current bid", apperr.ErrBidTooLow)

	// ErrInvalidOraclePrice is returned when no usable collateral valuation
	// exists. Appraisers wrap it for out-of-bounds values.
	ErrInvalidOraclePrice = fmt.Errorf("%w: invalid oracle price", apperr.ErrInvalidInput)
)

// No market operation returns these yet.
var (
	ErrNotProgrammableNFT      = fmt.Errorf("%w: asset is not a programmable NFT", apperr.ErrInvalidInput)
	ErrUnauthorizedLiquidation = fmt.Errorf("%w: unauthorized liquidation attempt", apperr.ErrUnauthorized)
)
