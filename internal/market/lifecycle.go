package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/keys"
	"github.com/starford/pledge/internal/models"
)

// CreateLoanParams are the terms of a new loan.
type CreateLoanParams struct {
	Borrower        string
	Lender          string
	CollateralAsset string
	LoanAmount      uint64
	DurationSeconds int64
	InterestRateBps uint16
}

// CreateLoan originates an Active loan. Borrower and lender must both sign
// and the borrower must currently hold the collateral.
func (e *Engine) CreateLoan(ctx context.Context, signers Signers, p CreateLoanParams) (*models.Loan, error) {
	if p.Borrower == "" || p.Lender == "" || p.CollateralAsset == "" {
		return nil, fmt.Errorf("%w: borrower, lender and collateral asset are required", apperr.ErrInvalidInput)
	}
	if err := e.Policy().Check(p.LoanAmount, p.DurationSeconds, p.InterestRateBps); err != nil {
		return nil, err
	}
	if err := requireSigners(signers, p.Borrower, p.Lender); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := e.run(ctx, "create_loan", func(o *op) error {
		proto, err := o.tx.Protocol()
		if err != nil {
			return err
		}
		owner, err := o.tx.AssetOwner(p.CollateralAsset)
		if err != nil {
			return err
		}
		if owner != p.Borrower {
			return ErrNotAssetHolder
		}

		loan = &models.Loan{
			ID:                      keys.Loan(p.Borrower, p.CollateralAsset),
			Borrower:                p.Borrower,
			Lender:                  p.Lender,
			CollateralAsset:         p.CollateralAsset,
			LoanAmount:              p.LoanAmount,
			OutstandingAmount:       p.LoanAmount,
			InterestRateBps:         p.InterestRateBps,
			DurationSeconds:         p.DurationSeconds,
			StartTime:               o.unix(),
			LiquidationThresholdBps: e.params.LiquidationThresholdBps,
			Status:                  models.LoanActive,
		}
		if err := o.tx.CreateLoan(loan); err != nil {
			return err
		}

		volume, carry := bits.Add64(proto.TotalVolume, p.LoanAmount, 0)
		if carry != 0 {
			return ErrAmountOverflow
		}
		proto.TotalLoans++
		proto.TotalVolume = volume
		if err := o.tx.UpdateProtocol(proto); err != nil {
			return err
		}

		o.emit(models.EventLoanCreated, map[string]any{
			"loan":              loan.ID,
			"borrower":          loan.Borrower,
			"lender":            loan.Lender,
			"collateral_asset":  loan.CollateralAsset,
			"amount":            loan.LoanAmount,
			"duration_seconds":  loan.DurationSeconds,
			"interest_rate_bps": loan.InterestRateBps,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recorder.ObserveLoanCreated(loan.LoanAmount)
	e.logger.Info("market: loan created",
		slog.String("loan", loan.ID),
		slog.String("borrower", loan.Borrower),
		slog.String("lender", loan.Lender),
		slog.Uint64("amount", loan.LoanAmount))
	return loan, nil
}

// CreateVault opens the custody record for a loan. The vault is its own
// custody authority.
func (e *Engine) CreateVault(ctx context.Context, signers Signers, loanID, asset string) (*models.Vault, error) {
	var vault *models.Vault
	err := e.run(ctx, "create_vault", func(o *op) error {
		loan, err := o.tx.Loan(loanID)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, loan.Borrower); err != nil {
			return err
		}
		if asset != loan.CollateralAsset {
			return fmt.Errorf("%w: %q", ErrCollateralMismatch, asset)
		}
		id := keys.Vault(loan.ID)
		vault = &models.Vault{
			ID:              id,
			LoanID:          loan.ID,
			CollateralAsset: loan.CollateralAsset,
			Authority:       id,
		}
		return o.tx.CreateVault(vault)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: vault created", slog.String("loan", loanID), slog.String("vault", vault.ID))
	return vault, nil
}

// DepositCollateral moves the collateral unit from the borrower into the
// loan's vault.
func (e *Engine) DepositCollateral(ctx context.Context, signers Signers, loanID string) (*models.Vault, error) {
	var vault *models.Vault
	err := e.run(ctx, "deposit_collateral", func(o *op) error {
		loan, err := o.tx.Loan(loanID)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, loan.Borrower); err != nil {
			return err
		}
		if err := requireLoanStatus(loan, models.LoanActive); err != nil {
			return err
		}
		vault, err = loanVault(o.tx, loan)
		if err != nil {
			return err
		}
		if err := o.tx.TransferAsset(loan.CollateralAsset, loan.Borrower, vault.ID, loan.Borrower); err != nil {
			return err
		}
		o.emit(models.EventCollateralDeposited, map[string]any{
			"loan":             loan.ID,
			"collateral_asset": loan.CollateralAsset,
			"amount":           1,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: collateral deposited", slog.String("loan", loanID), slog.String("vault", vault.ID))
	return vault, nil
}

// Repayment is the settled amount of a repaid loan.
type Repayment struct {
	Loan     *models.Loan `json:"loan"`
	Interest uint64       `json:"interest"`
	Total    uint64       `json:"total"`
}

// RepayLoan pays principal plus accrued interest from borrower to lender and
// returns the collateral to the borrower. Both parties must sign.
func (e *Engine) RepayLoan(ctx context.Context, signers Signers, loanID string) (*Repayment, error) {
	var rep Repayment
	err := e.run(ctx, "repay_loan", func(o *op) error {
		loan, err := o.tx.Loan(loanID)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, loan.Borrower, loan.Lender); err != nil {
			return err
		}
		if err := requireLoanStatus(loan, models.LoanActive); err != nil {
			return err
		}
		vault, err := loanVault(o.tx, loan)
		if err != nil {
			return err
		}
		total, interest, err := RepaymentDue(loan, o.unix())
		if err != nil {
			return err
		}
		if err := o.tx.Transfer(loan.Borrower, loan.Lender, total, loan.Borrower); err != nil {
			return err
		}
		if err := o.tx.TransferAsset(loan.CollateralAsset, vault.ID, loan.Borrower, vault.Authority); err != nil {
			return err
		}
		loan.Status = models.LoanRepaid
		loan.OutstandingAmount = 0
		if err := o.tx.UpdateLoan(loan); err != nil {
			return err
		}
		rep = Repayment{Loan: loan, Interest: interest, Total: total}
		o.emit(models.EventLoanRepaid, map[string]any{
			"loan":     loan.ID,
			"borrower": loan.Borrower,
			"amount":   total,
			"interest": interest,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: loan repaid",
		slog.String("loan", loanID),
		slog.Uint64("total", rep.Total),
		slog.Uint64("interest", rep.Interest))
	return &rep, nil
}
