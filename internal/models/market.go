// Package models defines the domain types for Pledge.
package models

import "time"

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive     LoanStatus = "active"
	LoanRepaid     LoanStatus = "repaid"
	LoanInAuction  LoanStatus = "in_auction"
	LoanLiquidated LoanStatus = "liquidated"
)

// Terminal reports whether no further transition is possible from s.
func (s LoanStatus) Terminal() bool {
	return s == LoanRepaid || s == LoanLiquidated
}

// AuctionStatus is the lifecycle state of a liquidation auction.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionSettled   AuctionStatus = "settled"
	AuctionCancelled AuctionStatus = "cancelled" // declared, no operation reaches it
)

// Loan is a collateralized loan between a borrower and a lender.
type Loan struct {
	ID                      string     `json:"id"`
	Borrower                string     `json:"borrower"`
	Lender                  string     `json:"lender"`
	CollateralAsset         string     `json:"collateral_asset"`
	LoanAmount              uint64     `json:"loan_amount"`
	OutstandingAmount       uint64     `json:"outstanding_amount"`
	InterestRateBps         uint16     `json:"interest_rate_bps"`
	DurationSeconds         int64      `json:"duration_seconds"`
	StartTime               int64      `json:"start_time"`
	LiquidationThresholdBps uint16     `json:"liquidation_threshold_bps"`
	Status                  LoanStatus `json:"status"`
	Version                 int64      `json:"version"`
}

// Maturity returns the unix second after which the loan is expired.
func (l *Loan) Maturity() int64 {
	return l.StartTime + l.DurationSeconds
}

// Vault is the custody record holding the collateral of exactly one loan.
// Authority is the only party allowed to move the held asset out.
type Vault struct {
	ID              string `json:"id"`
	LoanID          string `json:"loan_id"`
	CollateralAsset string `json:"collateral_asset"`
	Authority       string `json:"authority"`
	Version         int64  `json:"version"`
}

// Auction is the liquidation sale of a defaulted loan's collateral.
// CurrentBidder is empty until the first accepted bid.
type Auction struct {
	ID              string        `json:"id"`
	LoanID          string        `json:"loan_id"`
	CollateralAsset string        `json:"collateral_asset"`
	StartingPrice   uint64        `json:"starting_price"`
	CurrentBid      uint64        `json:"current_bid"`
	CurrentBidder   string        `json:"current_bidder,omitempty"`
	EndTime         int64         `json:"end_time"`
	Status          AuctionStatus `json:"status"`
	Version         int64         `json:"version"`
}

// Open reports whether the auction accepts bids at now.
func (a *Auction) Open(now int64) bool {
	return a.Status == AuctionActive && now < a.EndTime
}

// Bid is one accepted bid in an auction's history.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	Bidder    string    `json:"bidder"`
	Amount    uint64    `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

// Protocol is the process-wide registry record.
type Protocol struct {
	Authority   string `json:"authority"`
	Treasury    string `json:"treasury"`
	FeeRateBps  uint16 `json:"fee_rate_bps"`
	TotalLoans  uint64 `json:"total_loans"`
	TotalVolume uint64 `json:"total_volume"`
	Version     int64  `json:"version"`
}

// Account is a value balance in the stable unit.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}
