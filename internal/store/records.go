package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/models"
)

// casResult turns the outcome of a versioned UPDATE into the right error.
func (t *txn) casResult(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := t.queryRow(`SELECT count(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("store: check %s: %w", table, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return fmt.Errorf("%w: %s %s was modified concurrently", apperr.ErrConflict, strings.TrimSuffix(table, "s"), id)
}

// Protocol returns the registry record.
func (t *txn) Protocol() (*models.Protocol, error) {
	var p models.Protocol
	var loans, volume int64
	err := t.queryRow(`SELECT authority, treasury, fee_rate_bps, total_loans, total_volume, version FROM protocol WHERE id = 1`).
		Scan(&p.Authority, &p.Treasury, &p.FeeRateBps, &loans, &volume, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: protocol not initialized", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get protocol: %w", err)
	}
	p.TotalLoans, p.TotalVolume = uint64(loans), uint64(volume)
	return &p, nil
}

// CreateProtocol inserts the registry record.
func (t *txn) CreateProtocol(p *models.Protocol) error {
	_, err := t.exec(`INSERT INTO protocol (id, authority, treasury, fee_rate_bps, total_loans, total_volume, version)
		VALUES (1, ?, ?, ?, 0, 0, 1)`, p.Authority, p.Treasury, p.FeeRateBps)
	if isConstraint(err) {
		return fmt.Errorf("%w: protocol already initialized", apperr.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("store: create protocol: %w", err)
	}
	p.Version = 1
	return nil
}

// UpdateProtocol writes the counters and fee rate if p.Version is current.
func (t *txn) UpdateProtocol(p *models.Protocol) error {
	loans, err := dbAmount(p.TotalLoans)
	if err != nil {
		return err
	}
	volume, err := dbAmount(p.TotalVolume)
	if err != nil {
		return err
	}
	res, err := t.exec(`UPDATE protocol SET treasury = ?, fee_rate_bps = ?, total_loans = ?, total_volume = ?, version = version + 1
		WHERE id = 1 AND version = ?`, p.Treasury, p.FeeRateBps, loans, volume, p.Version)
	if err != nil {
		return fmt.Errorf("store: update protocol: %w", err)
	}
	if err := t.casResult(res, "protocol", "1"); err != nil {
		return err
	}
	p.Version++
	return nil
}

const loanColumns = `id, borrower, lender, collateral_asset, loan_amount, outstanding_amount, interest_rate_bps,
	duration_seconds, start_time, liquidation_threshold_bps, status, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (*models.Loan, error) {
	var l models.Loan
	var amount, outstanding int64
	if err := row.Scan(&l.ID, &l.Borrower, &l.Lender, &l.CollateralAsset, &amount, &outstanding,
		&l.InterestRateBps, &l.DurationSeconds, &l.StartTime, &l.LiquidationThresholdBps, &l.Status, &l.Version); err != nil {
		return nil, err
	}
	l.LoanAmount, l.OutstandingAmount = uint64(amount), uint64(outstanding)
	return &l, nil
}

// Loan returns the loan with the given id.
func (t *txn) Loan(id string) (*models.Loan, error) {
	l, err := scanLoan(t.queryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get loan: %w", err)
	}
	return l, nil
}

// CreateLoan inserts a new loan; the id must not exist yet.
func (t *txn) CreateLoan(l *models.Loan) error {
	amount, err := dbAmount(l.LoanAmount)
	if err != nil {
		return err
	}
	outstanding, err := dbAmount(l.OutstandingAmount)
	if err != nil {
		return err
	}
	_, err = t.exec(`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		l.ID, l.Borrower, l.Lender, l.CollateralAsset, amount, outstanding, l.InterestRateBps,
		l.DurationSeconds, l.StartTime, l.LiquidationThresholdBps, l.Status)
	if isConstraint(err) {
		return fmt.Errorf("%w: loan %s", apperr.ErrAlreadyExists, l.ID)
	}
	if err != nil {
		return fmt.Errorf("store: create loan: %w", err)
	}
	l.Version = 1
	return nil
}

// UpdateLoan persists the mutable loan fields if l.Version is current.
func (t *txn) UpdateLoan(l *models.Loan) error {
	outstanding, err := dbAmount(l.OutstandingAmount)
	if err != nil {
		return err
	}
	res, err := t.exec(`UPDATE loans SET outstanding_amount = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`, outstanding, l.Status, l.ID, l.Version)
	if err != nil {
		return fmt.Errorf("store: update loan: %w", err)
	}
	if err := t.casResult(res, "loans", l.ID); err != nil {
		return err
	}
	l.Version++
	return nil
}

// ListLoans returns loans matching f, oldest first.
func (t *txn) ListLoans(f LoanFilter) ([]models.Loan, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Borrower != "" {
		where = append(where, "borrower = ?")
		args = append(args, f.Borrower)
	}
	if f.Lender != "" {
		where = append(where, "lender = ?")
		args = append(args, f.Lender)
	}
	q := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_time, id LIMIT ? OFFSET ?`
	args = append(args, pageLimit(f.Limit), max(f.Offset, 0))

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list loans: %w", err)
	}
	defer rows.Close()

	out := []models.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Vault returns the vault with the given id.
func (t *txn) Vault(id string) (*models.Vault, error) {
	var v models.Vault
	err := t.queryRow(`SELECT id, loan_id, collateral_asset, authority, version FROM vaults WHERE id = ?`, id).
		Scan(&v.ID, &v.LoanID, &v.CollateralAsset, &v.Authority, &v.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vault %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get vault: %w", err)
	}
	return &v, nil
}

// CreateVault inserts a vault; one per loan.
func (t *txn) CreateVault(v *models.Vault) error {
	_, err := t.exec(`INSERT INTO vaults (id, loan_id, collateral_asset, authority, version) VALUES (?, ?, ?, ?, 1)`,
		v.ID, v.LoanID, v.CollateralAsset, v.Authority)
	if isConstraint(err) {
		return fmt.Errorf("%w: vault %s", apperr.ErrAlreadyExists, v.ID)
	}
	if err != nil {
		return fmt.Errorf("store: create vault: %w", err)
	}
	v.Version = 1
	return nil
}

const auctionColumns = `id, loan_id, collateral_asset, starting_price, current_bid, current_bidder, end_time, status, version`

func scanAuction(row scanner) (*models.Auction, error) {
	var a models.Auction
	var start, bid int64
	if err := row.Scan(&a.ID, &a.LoanID, &a.CollateralAsset, &start, &bid, &a.CurrentBidder,
		&a.EndTime, &a.Status, &a.Version); err != nil {
		return nil, err
	}
	a.StartingPrice, a.CurrentBid = uint64(start), uint64(bid)
	return &a, nil
}

// Auction returns the auction with the given id.
func (t *txn) Auction(id string) (*models.Auction, error) {
	a, err := scanAuction(t.queryRow(`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: auction %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get auction: %w", err)
	}
	return a, nil
}

// CreateAuction inserts an auction; one per loan.
func (t *txn) CreateAuction(a *models.Auction) error {
	start, err := dbAmount(a.StartingPrice)
	if err != nil {
		return err
	}
	bid, err := dbAmount(a.CurrentBid)
	if err != nil {
		return err
	}
	_, err = t.exec(`INSERT INTO auctions (`+auctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		a.ID, a.LoanID, a.CollateralAsset, start, bid, a.CurrentBidder, a.EndTime, a.Status)
	if isConstraint(err) {
		return fmt.Errorf("%w: auction %s", apperr.ErrAlreadyExists, a.ID)
	}
	if err != nil {
		return fmt.Errorf("store: create auction: %w", err)
	}
	a.Version = 1
	return nil
}

// UpdateAuction persists bid and status fields if a.Version is current.
func (t *txn) UpdateAuction(a *models.Auction) error {
	bid, err := dbAmount(a.CurrentBid)
	if err != nil {
		return err
	}
	res, err := t.exec(`UPDATE auctions SET current_bid = ?, current_bidder = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`, bid, a.CurrentBidder, a.Status, a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("store: update auction: %w", err)
	}
	if err := t.casResult(res, "auctions", a.ID); err != nil {
		return err
	}
	a.Version++
	return nil
}

// ListAuctions returns auctions, optionally filtered by status, soonest ending first.
func (t *txn) ListAuctions(status models.AuctionStatus, limit, offset int) ([]models.Auction, error) {
	q := `SELECT ` + auctionColumns + ` FROM auctions`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY end_time, id LIMIT ? OFFSET ?`
	args = append(args, pageLimit(limit), max(offset, 0))

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list auctions: %w", err)
	}
	defer rows.Close()

	out := []models.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AddBid appends to an auction's bid history.
func (t *txn) AddBid(b *models.Bid) error {
	amount, err := dbAmount(b.Amount)
	if err != nil {
		return err
	}
	if _, err := t.exec(`INSERT INTO bids (id, auction_id, bidder, amount, placed_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.AuctionID, b.Bidder, amount, b.PlacedAt); err != nil {
		return fmt.Errorf("store: add bid: %w", err)
	}
	return nil
}

// Bids returns an auction's bid history in acceptance order.
func (t *txn) Bids(auctionID string) ([]models.Bid, error) {
	rows, err := t.query(`SELECT id, auction_id, bidder, amount, placed_at FROM bids
		WHERE auction_id = ? ORDER BY placed_at, rowid`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("store: list bids: %w", err)
	}
	defer rows.Close()

	out := []models.Bid{}
	for rows.Next() {
		var b models.Bid
		var amount int64
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.Bidder, &amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		b.Amount = uint64(amount)
		out = append(out, b)
	}
	return out, rows.Err()
}
