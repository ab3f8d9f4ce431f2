package store

import (
	"context"
	"database/sql"

	"github.com/starford/pledge/internal/models"
)

// LoanFilter narrows ListLoans. Zero fields match everything.
type LoanFilter struct {
	Status   models.LoanStatus
	Borrower string
	Lender   string
	Limit    int
	Offset   int
}

// Tx is the set of record and ledger operations available inside a
// transaction. Consumers should depend on this interface rather than
// the concrete implementation.
type Tx interface {
	Protocol() (*models.Protocol, error)
	CreateProtocol(p *models.Protocol) error
	UpdateProtocol(p *models.Protocol) error

	Loan(id string) (*models.Loan, error)
	CreateLoan(l *models.Loan) error
	UpdateLoan(l *models.Loan) error
	ListLoans(f LoanFilter) ([]models.Loan, error)

	Vault(id string) (*models.Vault, error)
	CreateVault(v *models.Vault) error

	Auction(id string) (*models.Auction, error)
	CreateAuction(a *models.Auction) error
	UpdateAuction(a *models.Auction) error
	ListAuctions(status models.AuctionStatus, limit, offset int) ([]models.Auction, error)
	AddBid(b *models.Bid) error
	Bids(auctionID string) ([]models.Bid, error)

	Balance(address string) (uint64, error)
	Credit(address string, amount uint64) error
	Transfer(from, to string, amount uint64, authorizer string) error
	AssetOwner(asset string) (string, error)
	MintAsset(asset, owner string) error
	TransferAsset(asset, from, to, authorizer string) error

	AppendEvent(e models.Event) error
	RecentEvents(limit int) ([]models.Event, error)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txn struct {
	ctx context.Context
	q   querier
}

// Verify *txn satisfies Tx at compile time.
var _ Tx = (*txn)(nil)

func (t *txn) exec(query string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(t.ctx, query, args...)
}

func (t *txn) query(query string, args ...any) (*sql.Rows, error) {
	return t.q.QueryContext(t.ctx, query, args...)
}

func (t *txn) queryRow(query string, args ...any) *sql.Row {
	return t.q.QueryRowContext(t.ctx, query, args...)
}

// DefaultPageSize is the listing size used when a caller passes no limit
// or one above MaxPageSize.
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

func pageLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return DefaultPageSize
	}
	return limit
}
