package models

import "time"

// Event types emitted after a market operation commits.
const (
	EventLoanCreated         = "loan.created"
	EventCollateralDeposited = "collateral.deposited"
	EventLoanRepaid          = "loan.repaid"
	EventLoanLiquidated      = "loan.liquidated"
	EventAuctionStarted      = "auction.started"
	EventBidPlaced           = "bid.placed"
	EventAuctionSettled      = "auction.settled"
)

// Event is an informational record of a committed state change.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}
