package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/pledge/internal/keys"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Liquidation is the outcome of a successful Liquidate call.
type Liquidation struct {
	Loan           *models.Loan    `json:"loan"`
	Auction        *models.Auction `json:"auction"`
	OracleValue    uint64          `json:"oracle_value"`
	CollateralBps  uint64          `json:"collateral_ratio_bps"`
	ExpiredAtStart bool            `json:"expired"`
}

// Liquidate opens an auction against an Active loan that is expired or
// undercollateralized. oracleValue may be nil, in which case the configured
// appraiser values the collateral. Any signer may liquidate.
func (e *Engine) Liquidate(ctx context.Context, signers Signers, loanID string, oracleValue *uint64) (*Liquidation, error) {
	liquidator := signers.First()
	if liquidator == "" {
		return nil, ErrMissingSignature
	}
	value, err := e.valuation(ctx, loanID, oracleValue)
	if err != nil {
		return nil, err
	}

	var res Liquidation
	err = e.run(ctx, "liquidate_loan", func(o *op) error {
		loan, err := o.tx.Loan(loanID)
		if err != nil {
			return err
		}
		if err := requireLoanStatus(loan, models.LoanActive); err != nil {
			return err
		}
		vault, err := loanVault(o.tx, loan)
		if err != nil {
			return err
		}
		// An auction must be able to hand the collateral to its winner.
		holder, err := o.tx.AssetOwner(loan.CollateralAsset)
		if err != nil {
			return err
		}
		if holder != vault.ID {
			return fmt.Errorf("%w: %s", ErrVaultEmpty, vault.ID)
		}
		now := o.unix()
		if !IsLiquidatable(loan, now, value) {
			return fmt.Errorf("%w: %s", ErrNotLiquidatable, loan.ID)
		}

		auction := &models.Auction{
			ID:              keys.Auction(loan.ID),
			LoanID:          loan.ID,
			CollateralAsset: loan.CollateralAsset,
			StartingPrice:   loan.OutstandingAmount / 2,
			EndTime:         now + int64(e.params.AuctionDuration.Seconds()),
			Status:          models.AuctionActive,
		}
		if err := o.tx.CreateAuction(auction); err != nil {
			return err
		}
		loan.Status = models.LoanInAuction
		if err := o.tx.UpdateLoan(loan); err != nil {
			return err
		}

		ratio, _ := CollateralRatioBps(value, loan.OutstandingAmount)
		res = Liquidation{Loan: loan, Auction: auction, OracleValue: value, CollateralBps: ratio, ExpiredAtStart: Expired(loan, now)}
		o.emit(models.EventLoanLiquidated, map[string]any{
			"loan":             loan.ID,
			"liquidator":       liquidator,
			"collateral_asset": loan.CollateralAsset,
			"oracle_value":     value,
		})
		o.emit(models.EventAuctionStarted, map[string]any{
			"auction":          auction.ID,
			"loan":             loan.ID,
			"collateral_asset": auction.CollateralAsset,
			"starting_price":   auction.StartingPrice,
			"end_time":         auction.EndTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: loan liquidated",
		slog.String("loan", loanID),
		slog.String("auction", res.Auction.ID),
		slog.String("liquidator", liquidator),
		slog.Uint64("oracle_value", value))
	return &res, nil
}

// valuation returns the caller's value or asks the appraiser. Appraisal
// happens outside the write transaction.
func (e *Engine) valuation(ctx context.Context, loanID string, supplied *uint64) (uint64, error) {
	if supplied != nil {
		return *supplied, nil
	}
	if e.appraiser == nil {
		return 0, fmt.Errorf("%w: no oracle value supplied and no appraiser configured", ErrInvalidOraclePrice)
	}
	var asset string
	if err := e.view(ctx, func(tx store.Tx) error {
		l, err := tx.Loan(loanID)
		if err != nil {
			return err
		}
		asset = l.CollateralAsset
		return nil
	}); err != nil {
		return 0, err
	}
	return e.appraiser.Appraise(ctx, asset)
}

// PlaceBid accepts a strictly higher bid while the auction is open and moves
// the bid amount from the bidder to the treasury. Outbid bidders are not
// refunded.
func (e *Engine) PlaceBid(ctx context.Context, signers Signers, auctionID, bidder string, amount uint64) (*models.Auction, error) {
	if err := requireSigners(signers, bidder); err != nil {
		return nil, err
	}
	var auction *models.Auction
	err := e.run(ctx, "place_bid", func(o *op) error {
		var err error
		auction, err = o.tx.Auction(auctionID)
		if err != nil {
			return err
		}
		if !auction.Open(o.unix()) {
			return fmt.Errorf("%w: %s", ErrAuctionClosed, auction.ID)
		}
		if amount <= auction.CurrentBid {
			return fmt.Errorf("%w: %d <= %d", ErrBidTooLow, amount, auction.CurrentBid)
		}
		proto, err := o.tx.Protocol()
		if err != nil {
			return err
		}
		if err := o.tx.Transfer(bidder, proto.Treasury, amount, bidder); err != nil {
			return err
		}
		auction.CurrentBid = amount
		auction.CurrentBidder = bidder
		if err := o.tx.UpdateAuction(auction); err != nil {
			return err
		}
		if err := o.tx.AddBid(&models.Bid{
			ID:        uuid.NewString(),
			AuctionID: auction.ID,
			Bidder:    bidder,
			Amount:    amount,
			PlacedAt:  o.now.UTC(),
		}); err != nil {
			return err
		}
		o.emit(models.EventBidPlaced, map[string]any{
			"auction": auction.ID,
			"bidder":  bidder,
			"amount":  amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recorder.ObserveBid(amount)
	e.logger.Info("market: bid placed",
		slog.String("auction", auctionID),
		slog.String("bidder", bidder),
		slog.Uint64("amount", amount))
	return auction, nil
}

// Settlement is the outcome of a settled auction.
type Settlement struct {
	Auction *models.Auction `json:"auction"`
	Loan    *models.Loan    `json:"loan"`
}

// SettleAuction releases the collateral to the highest bidder once the
// auction window has elapsed. Anyone may settle. Bid proceeds stay with the
// treasury.
func (e *Engine) SettleAuction(ctx context.Context, auctionID string) (*Settlement, error) {
	var res Settlement
	err := e.run(ctx, "settle_auction", func(o *op) error {
		auction, err := o.tx.Auction(auctionID)
		if err != nil {
			return err
		}
		if auction.Status != models.AuctionActive {
			return fmt.Errorf("%w: %s is %s", ErrAuctionNotActive, auction.ID, auction.Status)
		}
		if auction.Open(o.unix()) {
			return fmt.Errorf("%w: ends at %d", ErrAuctionStillActive, auction.EndTime)
		}
		if auction.CurrentBidder == "" {
			return fmt.Errorf("%w: %s", ErrNoBids, auction.ID)
		}
		loan, err := o.tx.Loan(auction.LoanID)
		if err != nil {
			return err
		}
		if err := requireLoanStatus(loan, models.LoanInAuction); err != nil {
			return err
		}
		vault, err := loanVault(o.tx, loan)
		if err != nil {
			return err
		}
		if err := o.tx.TransferAsset(auction.CollateralAsset, vault.ID, auction.CurrentBidder, vault.Authority); err != nil {
			return err
		}
		auction.Status = models.AuctionSettled
		if err := o.tx.UpdateAuction(auction); err != nil {
			return err
		}
		loan.Status = models.LoanLiquidated
		if err := o.tx.UpdateLoan(loan); err != nil {
			return err
		}
		res = Settlement{Auction: auction, Loan: loan}
		o.emit(models.EventAuctionSettled, map[string]any{
			"auction":     auction.ID,
			"loan":        loan.ID,
			"winner":      auction.CurrentBidder,
			"winning_bid": auction.CurrentBid,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: auction settled",
		slog.String("auction", auctionID),
		slog.String("winner", res.Auction.CurrentBidder),
		slog.Uint64("winning_bid", res.Auction.CurrentBid))
	return &res, nil
}
