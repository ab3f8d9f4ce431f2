package market

import (
	"context"
	"time"

	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Loan returns a loan by ID.
func (e *Engine) Loan(ctx context.Context, id string) (*models.Loan, error) {
	var l *models.Loan
	err := e.view(ctx, func(tx store.Tx) (err error) {
		l, err = tx.Loan(id)
		return err
	})
	return l, err
}

// ListLoans returns loans matching f.
func (e *Engine) ListLoans(ctx context.Context, f store.LoanFilter) ([]models.Loan, error) {
	var out []models.Loan
	err := e.view(ctx, func(tx store.Tx) (err error) {
		out, err = tx.ListLoans(f)
		return err
	})
	return out, err
}

// Vault returns the vault bound to a loan.
func (e *Engine) Vault(ctx context.Context, loanID string) (*models.Vault, error) {
	var v *models.Vault
	err := e.view(ctx, func(tx store.Tx) error {
		l, err := tx.Loan(loanID)
		if err != nil {
			return err
		}
		v, err = loanVault(tx, l)
		return err
	})
	return v, err
}

// Auction returns an auction by ID.
func (e *Engine) Auction(ctx context.Context, id string) (*models.Auction, error) {
	var a *models.Auction
	err := e.view(ctx, func(tx store.Tx) (err error) {
		a, err = tx.Auction(id)
		return err
	})
	return a, err
}

// ListAuctions returns auctions, optionally narrowed to one status.
func (e *Engine) ListAuctions(ctx context.Context, status models.AuctionStatus, limit, offset int) ([]models.Auction, error) {
	var out []models.Auction
	err := e.view(ctx, func(tx store.Tx) (err error) {
		out, err = tx.ListAuctions(status, limit, offset)
		return err
	})
	return out, err
}

// Bids returns the accepted bids of an auction, lowest first.
func (e *Engine) Bids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	var out []models.Bid
	err := e.view(ctx, func(tx store.Tx) error {
		if _, err := tx.Auction(auctionID); err != nil {
			return err
		}
		var err error
		out, err = tx.Bids(auctionID)
		return err
	})
	return out, err
}

// Account returns an address's stable-unit balance.
func (e *Engine) Account(ctx context.Context, address string) (*models.Account, error) {
	acct := &models.Account{Address: address}
	err := e.view(ctx, func(tx store.Tx) (err error) {
		acct.Balance, err = tx.Balance(address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// AssetOwner returns the current holder of an asset.
func (e *Engine) AssetOwner(ctx context.Context, asset string) (string, error) {
	var owner string
	err := e.view(ctx, func(tx store.Tx) (err error) {
		owner, err = tx.AssetOwner(asset)
		return err
	})
	return owner, err
}

// RecentEvents returns persisted events, newest first.
func (e *Engine) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var out []models.Event
	err := e.view(ctx, func(tx store.Tx) (err error) {
		out, err = tx.RecentEvents(limit)
		return err
	})
	return out, err
}

// LoanHealth is a point-in-time valuation of a loan.
type LoanHealth struct {
	LoanID           string            `json:"loan_id"`
	Status           models.LoanStatus `json:"status"`
	OracleValue      uint64            `json:"oracle_value"`
	HealthRatioBps   uint64            `json:"health_ratio_bps"`
	Healthy          bool              `json:"healthy"`
	Expired          bool              `json:"expired"`
	Liquidatable     bool              `json:"liquidatable"`
	AccruedInterest  uint64            `json:"accrued_interest"`
	RepaymentDue     uint64            `json:"repayment_due"`
	LiquidationPrice uint64            `json:"liquidation_price"`
	Maturity         int64             `json:"maturity"`
	AsOf             time.Time         `json:"as_of"`
}

// LoanHealth values a loan at the current time. oracleValue may be nil to use
// the appraiser. Only Active loans report as liquidatable.
func (e *Engine) LoanHealth(ctx context.Context, loanID string, oracleValue *uint64) (*LoanHealth, error) {
	value, err := e.valuation(ctx, loanID, oracleValue)
	if err != nil {
		return nil, err
	}
	l, err := e.Loan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	h := &LoanHealth{
		LoanID:           l.ID,
		Status:           l.Status,
		OracleValue:      value,
		Expired:          Expired(l, now.Unix()),
		LiquidationPrice: LiquidationPrice(l.OutstandingAmount, l.LiquidationThresholdBps),
		Maturity:         l.Maturity(),
		AsOf:             now.UTC(),
	}
	if ratio, ok := CollateralRatioBps(value, l.OutstandingAmount); ok {
		h.HealthRatioBps = ratio
		h.Healthy = ratio >= uint64(l.LiquidationThresholdBps)
	} else {
		h.Healthy = true
	}
	if l.Status == models.LoanActive {
		h.Liquidatable = IsLiquidatable(l, now.Unix(), value)
		total, interest, err := RepaymentDue(l, now.Unix())
		if err != nil {
			return nil, err
		}
		h.AccruedInterest = interest
		h.RepaymentDue = total
	}
	return h, nil
}
