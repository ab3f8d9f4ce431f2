package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/pledge/internal/market"
)

// marketRules renders the lending rules an agent needs before it
// reasons about loan health or auction outcomes.
func marketRules(params market.Params, policy market.Policy) string {
	var b strings.Builder
	b.WriteString(`# Pledge Market Rules

## Loan lifecycle

active -> repaid | in_auction -> liquidated

1. A loan is created by borrower and lender together. The borrower must hold
   the collateral asset.
2. The borrower opens the loan's vault and deposits the asset into it.
3. Repayment moves principal plus interest from borrower to lender and
   returns the asset to the borrower. Both parties must sign.
4. Anyone may liquidate an active loan that has expired or whose
   collateral ratio fell below the liquidation threshold.

## Arithmetic

All amounts are unsigned 64-bit integers and every division floors.

- interest = loan_amount * rate_bps * elapsed_seconds / (10000 * 31536000)
- collateral_ratio_bps = collateral_value * 10000 / outstanding
- liquidatable = now > start + duration OR ratio < threshold

## Auctions

- Starting price is half the outstanding amount.
- A bid must be strictly greater than the current bid. Bid funds go to the
  protocol treasury immediately and are never refunded.
- Settlement is open to anyone once the end time has passed and at least
  one bid exists. The asset goes to the highest bidder.

`)
	b.WriteString("## Current parameters\n\n")
	fmt.Fprintf(&b, "- liquidation_threshold_bps: %d\n", params.LiquidationThresholdBps)
	fmt.Fprintf(&b, "- auction_duration: %s\n", params.AuctionDuration)
	fmt.Fprintf(&b, "- fee_rate_bps: %d (recorded, not charged)\n", params.FeeRateBps)
	fmt.Fprintf(&b, "- min_loan_amount: %d\n", policy.MinLoanAmount)
	fmt.Fprintf(&b, "- max_loan_amount: %s\n", unbounded(policy.MaxLoanAmount))
	fmt.Fprintf(&b, "- min_duration: %s\n", policy.MinDuration)
	fmt.Fprintf(&b, "- max_duration: %s\n", unboundedDuration(policy))
	fmt.Fprintf(&b, "- max_interest_rate_bps: %s\n", unbounded(uint64(policy.MaxInterestRateBps)))
	return b.String()
}

func unbounded(v uint64) string {
	if v == 0 {
		return "unbounded"
	}
	return fmt.Sprint(v)
}

func unboundedDuration(p market.Policy) string {
	if p.MaxDuration == 0 {
		return "unbounded"
	}
	return p.MaxDuration.String()
}
